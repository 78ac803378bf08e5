package messaging

import (
	"context"
	"sort"
)

// ITransport 消息传输接口
type ITransport interface {
	Publish(ctx context.Context, message *Message) error
	Subscribe(topic string, handler IHandler) error
	Start(ctx context.Context) error
	Close() error
	Stats() TransportStats
}

// TransportStats 传输层统计信息
type TransportStats struct {
	Name         string   `json:"name"`
	Running      bool     `json:"running"`
	HandlerCount int      `json:"handler_count"`
	Topics       []string `json:"topics"`
	QueueSize    int      `json:"queue_size,omitempty"`
	QueueDepth   int      `json:"queue_depth,omitempty"`
	WorkerCount  int      `json:"worker_count,omitempty"`
}

// Registry 主题到处理器的映射，各传输实现共用，调用方负责加锁
type Registry map[string][]IHandler

// Add 追加处理器
func (r Registry) Add(topic string, handler IHandler) {
	r[topic] = append(r[topic], handler)
}

// For 返回主题的处理器副本
func (r Registry) For(topic string) []IHandler {
	hs := r[topic]
	out := make([]IHandler, len(hs))
	copy(out, hs)
	return out
}

// Fill 把计数与排序后的主题写入 stats
func (r Registry) Fill(stats *TransportStats) {
	stats.Topics = make([]string, 0, len(r))
	for topic, hs := range r {
		stats.Topics = append(stats.Topics, topic)
		stats.HandlerCount += len(hs)
	}
	sort.Strings(stats.Topics)
}

// HandleAll 依次调用处理器，返回第一个错误，其余处理器仍会执行
func HandleAll(ctx context.Context, handlers []IHandler, message *Message) error {
	var first error
	for _, h := range handlers {
		if err := h.Handle(ctx, message); err != nil && first == nil {
			first = err
		}
	}
	return first
}
