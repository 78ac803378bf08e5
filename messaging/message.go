// Package messaging 后台任务消息的传输抽象，具体实现见 transport 子包
package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Message 一条待投递的消息，Payload 为调用方自行编码的 JSON
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   json.RawMessage   `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewMessage 创建消息，ID 为随机 UUID
func NewMessage(topic string, payload []byte) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Topic:     topic,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// SetMetadata 设置元数据
func (m *Message) SetMetadata(key, value string) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]string)
	}
	m.Metadata[key] = value
}

// Encode 编码为线上格式
func Encode(m *Message) ([]byte, error) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	return json.Marshal(m)
}

// Decode 从线上格式解码，缺少主题时使用 fallbackTopic
func Decode(data []byte, fallbackTopic string) (*Message, error) {
	m := &Message{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, err
	}
	if m.Topic == "" {
		m.Topic = fallbackTopic
	}
	return m, nil
}
