package memory

import (
	"context"
	"fmt"
	"time"

	"snaptrail/messaging"
)

// Start 启动 worker 池，ctx 取消时 worker 退出
func (t *MemoryTransport) Start(ctx context.Context) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.running {
		return fmt.Errorf("memory transport is already running")
	}
	if t.closed {
		return fmt.Errorf("memory transport is closed")
	}
	t.running = true

	for i := 0; i < t.workerCount; i++ {
		t.wg.Add(1)
		go t.worker(ctx)
	}
	return nil
}

// Close 停止接收新消息，等待 worker 处理完队列中已有的消息
func (t *MemoryTransport) Close() error {
	_, err := t.CloseWithContext(context.Background())
	return err
}

// CloseWithTimeout 带超时的 Close
func (t *MemoryTransport) CloseWithTimeout(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_, err := t.CloseWithContext(ctx)
	return err
}

// CloseWithContext 关闭并等待 worker 退出。
// 没有 worker 时返回仍在队列中的消息；ctx 先结束时返回其错误。
func (t *MemoryTransport) CloseWithContext(ctx context.Context) ([]*messaging.Message, error) {
	t.mutex.Lock()
	if !t.running {
		t.mutex.Unlock()
		return nil, fmt.Errorf("memory transport is not running")
	}
	t.running = false
	t.closed = true
	close(t.queue)
	t.mutex.Unlock()

	if t.workerCount == 0 {
		var pending []*messaging.Message
		for m := range t.queue {
			pending = append(pending, m)
		}
		return pending, nil
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *MemoryTransport) worker(ctx context.Context) {
	defer t.wg.Done()
	for {
		select {
		case message, ok := <-t.queue:
			if !ok {
				return
			}
			t.dispatch(ctx, message)
		case <-ctx.Done():
			return
		}
	}
}
