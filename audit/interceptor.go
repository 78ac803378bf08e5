package audit

import (
	"context"
	"time"

	"snaptrail/document"
	"snaptrail/logging"
	"snaptrail/metrics"
	"snaptrail/populate"
	"snaptrail/requestctx"
)

// IPlanner 提供类型的完整展开计划
type IPlanner interface {
	Plan(typeUID string) *populate.Plan
}

// IDispatcher 把 Capture 交给后台处理，不得阻塞调用方等待持久化完成
type IDispatcher interface {
	Dispatch(ctx context.Context, c Capture) error
}

// Interceptor 文档管道中的审计中间件
type Interceptor struct {
	planner    IPlanner
	reader     document.IReader
	dispatcher IDispatcher
	recordType string
	clock      func() time.Time
	logger     logging.Logger
}

// InterceptorOption 配置 Interceptor
type InterceptorOption func(*Interceptor)

// WithRecordType 设置审计记录自身的类型
func WithRecordType(typeUID string) InterceptorOption {
	return func(i *Interceptor) { i.recordType = typeUID }
}

// WithClock 设置时钟
func WithClock(clock func() time.Time) InterceptorOption {
	return func(i *Interceptor) { i.clock = clock }
}

// WithInterceptorLogger 设置日志
func WithInterceptorLogger(logger logging.Logger) InterceptorOption {
	return func(i *Interceptor) { i.logger = logger }
}

// NewInterceptor 创建审计中间件。reader 必须绕开中间件直接读引擎。
func NewInterceptor(planner IPlanner, reader document.IReader, dispatcher IDispatcher, opts ...InterceptorOption) *Interceptor {
	i := &Interceptor{
		planner:    planner,
		reader:     reader,
		dispatcher: dispatcher,
		recordType: DefaultRecordType,
		clock:      time.Now,
		logger:     logging.GetLogger().WithFields(logging.Component("audit.interceptor")),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Interceptor) Name() string {
	return "audit"
}

// Handle 对需要审计的写操作：先读变更前快照，再带着完整展开计划执行操作，
// 最后把前后快照交给 dispatcher。操作自身的结果和错误原样返回。
func (i *Interceptor) Handle(ctx context.Context, action *document.Action, next document.Next) (document.Document, error) {
	if action.TypeUID == i.recordType || !action.Kind.Audited() {
		return next(ctx, action)
	}

	plan := i.planner.Plan(action.TypeUID)

	var before map[string]any
	if action.Kind.TargetsExisting() && action.DocumentID != "" {
		before = i.fetchBefore(ctx, action, plan)
	}

	original := action.Populate
	action.Populate = populate.Merge(original, plan)
	result, err := next(ctx, action)
	action.Populate = original
	if err != nil {
		return result, err
	}

	var after map[string]any
	if action.Kind != document.KindDelete {
		if after, err = Snapshot(result); err != nil {
			i.logger.Warn(ctx, "snapshot of mutation result failed, recording as absent",
				logging.String("type", action.TypeUID), logging.Error(err))
			after = nil
		}
	}

	capture := Capture{
		TypeUID:   action.TypeUID,
		Operation: action.Kind,
		Before:    before,
		After:     after,
		Locale:    action.Locale,
		Meta:      requestctx.FromContext(ctx),
		At:        i.clock(),
	}
	metrics.CapturesTotal.WithLabelValues(string(action.Kind)).Inc()
	if dispatchErr := i.dispatcher.Dispatch(ctx, capture); dispatchErr != nil {
		metrics.CaptureFailures.WithLabelValues("dispatch").Inc()
		i.logger.Error(ctx, "dispatch audit capture failed",
			logging.String("type", action.TypeUID),
			logging.String("operation", string(action.Kind)),
			logging.Error(dispatchErr))
	}

	return result, nil
}

// fetchBefore 读取失败时记录为缺失，不影响操作本身
func (i *Interceptor) fetchBefore(ctx context.Context, action *document.Action, plan *populate.Plan) map[string]any {
	doc, err := i.reader.FetchExpanded(ctx, action.TypeUID, action.DocumentID, plan)
	if err != nil {
		metrics.BeforeFetchFailures.Inc()
		i.logger.Warn(ctx, "fetch pre-mutation snapshot failed",
			logging.String("type", action.TypeUID),
			logging.String("document_id", action.DocumentID),
			logging.Error(err))
		return nil
	}
	before, err := Snapshot(doc)
	if err != nil {
		metrics.BeforeFetchFailures.Inc()
		i.logger.Warn(ctx, "snapshot of pre-mutation document failed",
			logging.String("type", action.TypeUID), logging.Error(err))
		return nil
	}
	return before
}
