package task

import (
	"context"
	"time"

	"snaptrail/document"
	"snaptrail/errors"
	"snaptrail/logging"
	"snaptrail/metrics"
	"snaptrail/requestctx"
)

// IPublisher 发布与取消发布，*document.Pipeline 满足该接口，因此任务的写操作同样被审计
type IPublisher interface {
	Publish(ctx context.Context, typeUID, documentID, locale string) (document.Document, error)
	Unpublish(ctx context.Context, typeUID, documentID, locale string) (document.Document, error)
}

// Executor 执行任务
type Executor struct {
	store     IStore
	publisher IPublisher
	clock     func() time.Time
	logger    logging.Logger
}

// ExecutorOption 配置 Executor
type ExecutorOption func(*Executor)

// WithClock 设置时钟
func WithClock(clock func() time.Time) ExecutorOption {
	return func(e *Executor) { e.clock = clock }
}

// WithLogger 设置日志
func WithLogger(logger logging.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = logger }
}

// NewExecutor 创建 Executor
func NewExecutor(store IStore, publisher IPublisher, opts ...ExecutorOption) *Executor {
	e := &Executor{
		store:     store,
		publisher: publisher,
		clock:     time.Now,
		logger:    logging.GetLogger().WithFields(logging.Component("task.executor")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute 执行一个任务并保存结果。
// 非 pending 的任务只记录警告并跳过；没有文档的任务标记为 failed 并返回错误。
// 单个文档失败不影响其余文档。
func (e *Executor) Execute(ctx context.Context, id string) ([]Result, error) {
	t, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusPending {
		e.logger.Warn(ctx, "task is not pending, skipped",
			logging.String("task_id", id), logging.String("status", string(t.Status)))
		return nil, nil
	}
	if len(t.Documents) == 0 {
		err := errors.Errorf(errors.ErrCodeValidation, "task %s has no documents to process", id)
		e.fail(ctx, t, err)
		return nil, err
	}

	e.logger.Info(ctx, "executing task",
		logging.String("task_id", id), logging.Int("documents", len(t.Documents)))

	// 任务以系统身份执行，不继承触发者的请求信息
	sysCtx := requestctx.WithMeta(ctx, requestctx.Meta{})
	results := make([]Result, 0, len(t.Documents))
	for _, d := range t.Documents {
		r := Result{ContentType: d.ContentType, DocumentID: d.DocumentID, Operation: d.Operation, Success: true}
		if err := e.run(sysCtx, d); err != nil {
			r.Success = false
			r.Error = err.Error()
			e.logger.Error(ctx, "task document failed",
				logging.String("task_id", id),
				logging.String("type", d.ContentType),
				logging.String("document_id", d.DocumentID),
				logging.Error(err))
		}
		results = append(results, r)
	}

	now := e.clock().UTC()
	t.Status = finalStatus(results)
	t.Results = results
	t.ExecutedAt = &now
	t.UpdatedAt = now
	if err := e.store.Update(ctx, t); err != nil {
		return results, err
	}

	metrics.TaskRuns.WithLabelValues(string(t.Status)).Inc()
	e.logger.Info(ctx, "task finished",
		logging.String("task_id", id), logging.String("status", string(t.Status)))
	return results, nil
}

// ProcessPending 按计划时间顺序执行所有到期任务，返回到期任务数
func (e *Executor) ProcessPending(ctx context.Context, now time.Time) (int, error) {
	due, err := e.store.List(ctx, ListFilter{Status: StatusPending, DueBefore: now})
	if err != nil {
		return 0, err
	}
	if len(due) > 0 {
		e.logger.Info(ctx, "processing due tasks", logging.Int("count", len(due)))
	}

	for _, t := range due {
		if ctx.Err() != nil {
			return len(due), ctx.Err()
		}
		if _, err := e.Execute(ctx, t.ID); err != nil {
			e.logger.Error(ctx, "task execution failed",
				logging.String("task_id", t.ID), logging.Error(err))
		}
	}
	return len(due), nil
}

func (e *Executor) run(ctx context.Context, d DocumentRef) error {
	switch d.Operation {
	case OperationPublish:
		_, err := e.publisher.Publish(ctx, d.ContentType, d.DocumentID, d.Locale)
		return err
	case OperationUnpublish:
		_, err := e.publisher.Unpublish(ctx, d.ContentType, d.DocumentID, d.Locale)
		return err
	default:
		return errors.Errorf(errors.ErrCodeValidation, "unsupported task operation %q", d.Operation)
	}
}

func (e *Executor) fail(ctx context.Context, t *Task, cause error) {
	now := e.clock().UTC()
	t.Status = StatusFailed
	t.ExecutedAt = &now
	t.UpdatedAt = now
	t.ErrorMessage = cause.Error()
	metrics.TaskRuns.WithLabelValues(string(StatusFailed)).Inc()
	if err := e.store.Update(ctx, t); err != nil {
		e.logger.Error(ctx, "mark task failed", logging.String("task_id", t.ID), logging.Error(err))
	}
}
