// Package dispatch 把审计 Capture 交给后台执行：进程内协程，或经消息传输由消费者持久化
package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"snaptrail/audit"
	"snaptrail/errors"
	"snaptrail/logging"
	"snaptrail/messaging"
	"snaptrail/metrics"
	"snaptrail/patterns/retry"
)

// Topic 审计 Capture 使用的消息主题
const Topic = "audit.capture"

// ICapturer 接收 Capture 的一端，*audit.Recorder 满足该接口
type ICapturer interface {
	Capture(ctx context.Context, c audit.Capture)
}

// IPersister 可返回错误的持久化，供需要重试的消费者使用
type IPersister interface {
	Persist(ctx context.Context, c audit.Capture) error
}

// Detached 每个 Capture 在独立协程中写入，与请求的取消信号解绑
type Detached struct {
	capturer ICapturer
	wg       sync.WaitGroup
}

// NewDetached 创建 Detached
func NewDetached(capturer ICapturer) *Detached {
	return &Detached{capturer: capturer}
}

func (d *Detached) Dispatch(ctx context.Context, c audit.Capture) error {
	bg := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.capturer.Capture(bg, c)
	}()
	return nil
}

// Wait 等待所有已派发的 Capture 写完，用于关闭流程与测试
func (d *Detached) Wait() {
	d.wg.Wait()
}

// Queued 把 Capture 编码后发布到消息传输，持久化由 Consumer 完成
type Queued struct {
	transport messaging.ITransport
	timeout   time.Duration
	logger    logging.Logger
}

// NewQueued 创建 Queued，timeout 限制单次发布耗时
func NewQueued(transport messaging.ITransport, timeout time.Duration) *Queued {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Queued{
		transport: transport,
		timeout:   timeout,
		logger:    logging.GetLogger().WithFields(logging.Component("dispatch.queued")),
	}
}

func (q *Queued) Dispatch(ctx context.Context, c audit.Capture) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeQueue, "encode capture")
	}
	message := messaging.NewMessage(Topic, payload)
	message.SetMetadata("type_uid", c.TypeUID)
	message.SetMetadata("operation", string(c.Operation))

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), q.timeout)
	defer cancel()
	if err := q.transport.Publish(pubCtx, message); err != nil {
		metrics.QueueJobs.WithLabelValues(q.transport.Stats().Name, "publish_failed").Inc()
		return errors.WrapError(err, errors.ErrCodeQueue, "publish capture")
	}
	metrics.QueueJobs.WithLabelValues(q.transport.Stats().Name, "published").Inc()
	return nil
}

// Consumer 从传输接收 Capture 并持久化，失败按 retry 配置重试，
// 重试耗尽后把错误返回给传输，由支持重投的传输再次投递
type Consumer struct {
	persister IPersister
	retry     retry.Config
	transport string
	logger    logging.Logger
}

// NewConsumer 创建 Consumer，transportName 只用于指标标签
func NewConsumer(persister IPersister, cfg retry.Config, transportName string) *Consumer {
	return &Consumer{
		persister: persister,
		retry:     cfg,
		transport: transportName,
		logger:    logging.GetLogger().WithFields(logging.Component("dispatch.consumer")),
	}
}

// Register 在传输上订阅审计主题
func (c *Consumer) Register(transport messaging.ITransport) error {
	return transport.Subscribe(Topic, c)
}

func (c *Consumer) Handle(ctx context.Context, message *messaging.Message) error {
	var capture audit.Capture
	if err := json.Unmarshal(message.Payload, &capture); err != nil {
		// 坏消息重投也不会成功，记录后丢弃
		metrics.QueueJobs.WithLabelValues(c.transport, "discarded").Inc()
		c.logger.Error(ctx, "discard undecodable capture",
			logging.String("message_id", message.ID), logging.Error(err))
		return nil
	}

	cfg := c.retry
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.logger.Warn(ctx, "persist capture failed, retrying",
			logging.String("message_id", message.ID),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err))
	}
	err := retry.Do(ctx, func(ctx context.Context, _ int) error {
		return c.persister.Persist(ctx, capture)
	}, cfg)
	if err != nil {
		metrics.QueueJobs.WithLabelValues(c.transport, "failed").Inc()
		c.logger.Error(ctx, "persist capture exhausted retries",
			logging.String("message_id", message.ID),
			logging.String("type", capture.TypeUID),
			logging.Error(err))
		return err
	}
	metrics.QueueJobs.WithLabelValues(c.transport, "persisted").Inc()
	return nil
}
