// Package natsjetstream NATS JetStream 传输：持久化消费者加手动确认，
// 处理失败时 Nak，由服务端按 AckWait 与 MaxDeliver 重投。
package natsjetstream

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"snaptrail/logging"
	"snaptrail/messaging"
)

// Config JetStream 传输配置
type Config struct {
	URL           string
	Stream        string
	SubjectPrefix string
	DurablePrefix string
	AckWait       time.Duration
	MaxAckPending int
	MaxDeliver    int
	Logger        logging.Logger
	Conn          *nats.Conn

	Retention string // workqueue|limits|interest，默认 workqueue
	MaxBytes  int64
	Replicas  int
}

// Transport 基于 JetStream 的传输
type Transport struct {
	cfg      Config
	logger   logging.Logger
	conn     *nats.Conn
	js       nats.JetStreamContext
	ownsConn bool

	handlers messaging.Registry
	subs     map[string]*nats.Subscription

	mu      sync.RWMutex
	running bool
}

// NewTransport 创建传输，连接在 Start 时建立
func NewTransport(cfg Config) *Transport {
	if cfg.Stream == "" {
		cfg.Stream = "SNAPTRAIL"
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "snaptrail."
	}
	if cfg.DurablePrefix == "" {
		cfg.DurablePrefix = "snaptrail-"
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = 30 * time.Second
	}
	if cfg.MaxAckPending <= 0 {
		cfg.MaxAckPending = 1024
	}
	if cfg.MaxDeliver <= 0 {
		cfg.MaxDeliver = 5
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.GetLogger().WithFields(logging.Component("transport.nats"))
	}
	return &Transport{
		cfg:      cfg,
		logger:   cfg.Logger,
		handlers: messaging.Registry{},
		subs:     make(map[string]*nats.Subscription),
	}
}

func (t *Transport) Publish(ctx context.Context, message *messaging.Message) error {
	t.mu.RLock()
	js := t.js
	running := t.running
	t.mu.RUnlock()
	if !running || js == nil {
		return errors.New("nats transport not running")
	}
	data, err := messaging.Encode(message)
	if err != nil {
		return err
	}
	_, err = js.Publish(t.subjectName(message.Topic), data, nats.Context(ctx), nats.MsgId(message.ID))
	return err
}

func (t *Transport) Subscribe(topic string, handler messaging.IHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers.Add(topic, handler)
	if t.running {
		return t.subscribeLocked(topic)
	}
	return nil
}

func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return errors.New("nats transport already running")
	}
	if err := t.ensureConnection(); err != nil {
		return err
	}
	if err := t.ensureStream(); err != nil {
		return err
	}
	for topic := range t.handlers {
		if err := t.subscribeLocked(topic); err != nil {
			return err
		}
	}
	t.running = true
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	for topic, sub := range t.subs {
		_ = sub.Drain()
		delete(t.subs, topic)
	}
	if t.ownsConn && t.conn != nil {
		t.conn.Close()
	}
	t.conn = nil
	t.js = nil
	return nil
}

func (t *Transport) Stats() messaging.TransportStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	stats := messaging.TransportStats{Name: "nats-jetstream", Running: t.running}
	t.handlers.Fill(&stats)
	return stats
}

func (t *Transport) ensureConnection() error {
	if t.conn != nil && t.js != nil {
		return nil
	}
	if t.cfg.Conn != nil {
		t.conn = t.cfg.Conn
	} else {
		url := t.cfg.URL
		if url == "" {
			url = nats.DefaultURL
		}
		conn, err := nats.Connect(url, nats.Name("snaptrail"))
		if err != nil {
			return err
		}
		t.conn = conn
		t.ownsConn = true
	}
	js, err := t.conn.JetStream()
	if err != nil {
		return err
	}
	t.js = js
	return nil
}

func (t *Transport) ensureStream() error {
	_, err := t.js.StreamInfo(t.cfg.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) && !strings.Contains(err.Error(), "stream not found") {
		return err
	}
	_, err = t.js.AddStream(t.streamConfig())
	return err
}

func (t *Transport) streamConfig() *nats.StreamConfig {
	retention := nats.WorkQueuePolicy
	switch strings.ToLower(t.cfg.Retention) {
	case "limits":
		retention = nats.LimitsPolicy
	case "interest":
		retention = nats.InterestPolicy
	}
	sc := &nats.StreamConfig{
		Name:      t.cfg.Stream,
		Subjects:  []string{t.cfg.SubjectPrefix + ">"},
		Retention: retention,
	}
	if t.cfg.MaxBytes > 0 {
		sc.MaxBytes = t.cfg.MaxBytes
	}
	if t.cfg.Replicas > 0 {
		sc.Replicas = t.cfg.Replicas
	}
	return sc
}

func (t *Transport) subscribeLocked(topic string) error {
	if _, exists := t.subs[topic]; exists {
		return nil
	}
	durable := t.durableName(topic)
	sub, err := t.js.QueueSubscribe(t.subjectName(topic), durable, t.handleMessage(topic),
		nats.ManualAck(),
		nats.Durable(durable),
		nats.AckWait(t.cfg.AckWait),
		nats.MaxAckPending(t.cfg.MaxAckPending),
		nats.MaxDeliver(t.cfg.MaxDeliver))
	if err != nil {
		return err
	}
	t.subs[topic] = sub
	return nil
}

// acker nats.Msg 的确认子集
type acker interface {
	Ack(opts ...nats.AckOpt) error
	Nak(opts ...nats.AckOpt) error
}

func (t *Transport) handleMessage(topic string) nats.MsgHandler {
	return func(msg *nats.Msg) {
		t.process(context.Background(), topic, msg.Data, msg)
	}
}

func (t *Transport) process(ctx context.Context, topic string, data []byte, ack acker) {
	message, err := messaging.Decode(data, topic)
	if err != nil {
		t.logger.Warn(ctx, "decode nats message failed", logging.Error(err))
		_ = ack.Ack()
		return
	}

	t.mu.RLock()
	handlers := t.handlers.For(topic)
	t.mu.RUnlock()

	if err := messaging.HandleAll(ctx, handlers, message); err != nil {
		t.logger.Warn(ctx, "message handler failed, requesting redelivery",
			logging.String("message_id", message.ID), logging.Error(err))
		if nakErr := ack.Nak(); nakErr != nil {
			t.logger.Warn(ctx, "nats nak failed", logging.Error(nakErr))
		}
		return
	}
	if err := ack.Ack(); err != nil {
		t.logger.Warn(ctx, "nats ack failed", logging.Error(err))
	}
}

func (t *Transport) subjectName(topic string) string {
	return t.cfg.SubjectPrefix + topic
}

// durableName 持久化消费者名不允许出现点号
func (t *Transport) durableName(topic string) string {
	return t.cfg.DurablePrefix + strings.ReplaceAll(topic, ".", "_")
}
