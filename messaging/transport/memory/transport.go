// Package memory 基于内存队列的消息传输，适用于单机部署与测试
package memory

import (
	"context"
	"fmt"
	"sync"

	"snaptrail/logging"
	"snaptrail/messaging"
)

const (
	defaultQueueSize   = 1000
	defaultWorkerCount = 4
)

// MemoryTransport 内存消息传输：有界队列加固定数量的 worker。
// 处理失败只记录日志，不重投；进程退出时队列中的消息丢失。
type MemoryTransport struct {
	handlers    messaging.Registry
	queue       chan *messaging.Message
	queueSize   int
	workerCount int
	running     bool
	closed      bool
	mutex       sync.RWMutex
	wg          sync.WaitGroup
	logger      logging.Logger
}

// NewMemoryTransport 创建内存传输，非正参数使用默认值
func NewMemoryTransport(queueSize, workerCount int) *MemoryTransport {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if workerCount <= 0 {
		workerCount = defaultWorkerCount
	}
	return newMemoryTransport(queueSize, workerCount)
}

// NewMemoryTransportForTest 允许 0 个 worker，用于验证排空语义
func NewMemoryTransportForTest(queueSize int) *MemoryTransport {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return newMemoryTransport(queueSize, 0)
}

func newMemoryTransport(queueSize, workerCount int) *MemoryTransport {
	return &MemoryTransport{
		handlers:    messaging.Registry{},
		queue:       make(chan *messaging.Message, queueSize),
		queueSize:   queueSize,
		workerCount: workerCount,
		logger:      logging.GetLogger().WithFields(logging.Component("transport.memory")),
	}
}

// Publish 入队，队列已满时立即返回错误而不是阻塞调用方
func (t *MemoryTransport) Publish(ctx context.Context, message *messaging.Message) error {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	if !t.running {
		return fmt.Errorf("memory transport is not running")
	}

	select {
	case t.queue <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("message queue is full")
	}
}

// Subscribe 注册主题处理器
func (t *MemoryTransport) Subscribe(topic string, handler messaging.IHandler) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.handlers.Add(topic, handler)
	return nil
}

// Stats 统计信息
func (t *MemoryTransport) Stats() messaging.TransportStats {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	stats := messaging.TransportStats{
		Name:        "memory",
		Running:     t.running,
		QueueSize:   t.queueSize,
		QueueDepth:  len(t.queue),
		WorkerCount: t.workerCount,
	}
	t.handlers.Fill(&stats)
	return stats
}

func (t *MemoryTransport) dispatch(ctx context.Context, message *messaging.Message) {
	t.mutex.RLock()
	handlers := t.handlers.For(message.Topic)
	t.mutex.RUnlock()

	if len(handlers) == 0 {
		t.logger.Debug(ctx, "no handler for topic", logging.String("topic", message.Topic))
		return
	}
	if err := messaging.HandleAll(ctx, handlers, message); err != nil {
		t.logger.Warn(ctx, "message handler failed",
			logging.String("topic", message.Topic),
			logging.String("message_id", message.ID),
			logging.Error(err))
	}
}
