// Package redisstreams Redis Streams 消费组传输：处理成功才 XACK，失败的条目留在
// pending 列表中，空闲超过 ClaimMinIdle 后由本消费者重新认领并投递。
package redisstreams

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"snaptrail/logging"
	"snaptrail/messaging"
)

const payloadField = "message"

// client 传输用到的 go-redis 命令子集
type client interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	XAutoClaim(ctx context.Context, a *redis.XAutoClaimArgs) *redis.XAutoClaimCmd
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	Close() error
}

// Config Redis Streams 传输配置
type Config struct {
	Client       redis.UniversalClient
	Addr         string
	Username     string
	Password     string
	DB           int
	StreamPrefix string
	GroupName    string
	ConsumerName string
	BlockTimeout time.Duration
	ReadCount    int64
	MaxLen       int64
	ClaimMinIdle time.Duration
	Logger       logging.Logger

	MinReadBackoff time.Duration
	MaxReadBackoff time.Duration
}

// Transport 基于 Redis Streams 消费组的传输
type Transport struct {
	cfg       Config
	client    client
	ownClient bool
	logger    logging.Logger

	handlers messaging.Registry
	readers  map[string]bool

	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewTransport 创建传输，未提供 Client 时按 Addr 自建连接并在 Close 时关闭
func NewTransport(cfg Config) (*Transport, error) {
	if cfg.StreamPrefix == "" {
		cfg.StreamPrefix = "snaptrail:"
	}
	if cfg.GroupName == "" {
		cfg.GroupName = "snaptrail"
	}
	if cfg.ConsumerName == "" {
		cfg.ConsumerName = "consumer-" + uuid.NewString()
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.ReadCount <= 0 {
		cfg.ReadCount = 10
	}
	if cfg.ClaimMinIdle <= 0 {
		cfg.ClaimMinIdle = time.Minute
	}
	if cfg.MinReadBackoff <= 0 {
		cfg.MinReadBackoff = 100 * time.Millisecond
	}
	if cfg.MaxReadBackoff <= 0 {
		cfg.MaxReadBackoff = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.GetLogger().WithFields(logging.Component("transport.redisstreams"))
	}

	t := &Transport{
		cfg:      cfg,
		logger:   cfg.Logger,
		handlers: messaging.Registry{},
		readers:  make(map[string]bool),
	}
	if cfg.Client != nil {
		t.client = cfg.Client
	} else {
		if cfg.Addr == "" {
			return nil, errors.New("redis address not configured")
		}
		t.client = redis.NewClient(&redis.Options{Addr: cfg.Addr, Username: cfg.Username, Password: cfg.Password, DB: cfg.DB})
		t.ownClient = true
	}
	return t, nil
}

// Publish 以 XADD 写入主题对应的流
func (t *Transport) Publish(ctx context.Context, message *messaging.Message) error {
	data, err := messaging.Encode(message)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: t.streamName(message.Topic),
		Values: map[string]any{payloadField: string(data)},
	}
	if t.cfg.MaxLen > 0 {
		args.MaxLen = t.cfg.MaxLen
		args.Approx = true
	}
	return t.client.XAdd(ctx, args).Err()
}

// Subscribe 注册处理器，运行中订阅会立即启动该主题的读取协程
func (t *Transport) Subscribe(topic string, handler messaging.IHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers.Add(topic, handler)
	if t.running {
		t.startReaderLocked(topic)
	}
	return nil
}

// Start 为每个已订阅主题启动读取协程
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return fmt.Errorf("redis streams transport already running")
	}
	t.ctx, t.cancel = context.WithCancel(ctx)
	t.running = true
	for topic := range t.handlers {
		t.startReaderLocked(topic)
	}
	return nil
}

// Close 停止读取协程，自建的连接一并关闭
func (t *Transport) Close() error {
	t.mu.Lock()
	running := t.running
	t.running = false
	cancel := t.cancel
	t.readers = make(map[string]bool)
	t.mu.Unlock()

	if running && cancel != nil {
		cancel()
		t.wg.Wait()
	}
	if t.ownClient {
		return t.client.Close()
	}
	return nil
}

func (t *Transport) Stats() messaging.TransportStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	stats := messaging.TransportStats{Name: "redis-streams", Running: t.running}
	t.handlers.Fill(&stats)
	return stats
}

func (t *Transport) startReaderLocked(topic string) {
	if t.readers[topic] {
		return
	}
	t.readers[topic] = true
	t.wg.Add(1)
	go t.readLoop(t.ctx, topic)
}

func (t *Transport) readLoop(ctx context.Context, topic string) {
	defer t.wg.Done()
	stream := t.streamName(topic)
	if err := t.ensureGroup(ctx, stream); err != nil {
		t.logger.Warn(ctx, "ensure group failed", logging.String("stream", stream), logging.Error(err))
	}

	args := &redis.XReadGroupArgs{
		Group:    t.cfg.GroupName,
		Consumer: t.cfg.ConsumerName,
		Streams:  []string{stream, ">"},
		Count:    t.cfg.ReadCount,
		Block:    t.cfg.BlockTimeout,
	}
	backoff := t.cfg.MinReadBackoff
	lastClaim := time.Now()
	for {
		if ctx.Err() != nil {
			return
		}

		if time.Since(lastClaim) >= t.cfg.ClaimMinIdle {
			t.reclaim(ctx, stream, topic)
			lastClaim = time.Now()
		}

		res, err := t.client.XReadGroup(ctx, args).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			t.logger.Warn(ctx, "xreadgroup failed", logging.Duration("backoff", backoff), logging.Error(err))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff *= 2
			if backoff > t.cfg.MaxReadBackoff {
				backoff = t.cfg.MaxReadBackoff
			}
			continue
		}
		backoff = t.cfg.MinReadBackoff

		for _, s := range res {
			for _, entry := range s.Messages {
				t.handleEntry(ctx, s.Stream, topic, entry)
			}
		}
	}
}

// reclaim 认领空闲过久的 pending 条目，通常是之前处理失败或消费者宕机留下的
func (t *Transport) reclaim(ctx context.Context, stream, topic string) {
	start := "0-0"
	for {
		entries, next, err := t.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   stream,
			Group:    t.cfg.GroupName,
			Consumer: t.cfg.ConsumerName,
			MinIdle:  t.cfg.ClaimMinIdle,
			Start:    start,
			Count:    t.cfg.ReadCount,
		}).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				t.logger.Warn(ctx, "xautoclaim failed", logging.String("stream", stream), logging.Error(err))
			}
			return
		}
		for _, entry := range entries {
			t.handleEntry(ctx, stream, topic, entry)
		}
		if next == "0-0" || next == "" || len(entries) == 0 {
			return
		}
		start = next
	}
}

func (t *Transport) handleEntry(ctx context.Context, stream, topic string, entry redis.XMessage) {
	message, err := decodeEntry(entry, topic)
	if err != nil {
		// 无法解码的条目永远无法处理成功，直接确认避免反复认领
		t.logger.Warn(ctx, "decode redis stream entry failed",
			logging.String("entry_id", entry.ID), logging.Error(err))
		t.ack(ctx, stream, entry.ID)
		return
	}

	t.mu.RLock()
	handlers := t.handlers.For(topic)
	t.mu.RUnlock()

	if err := messaging.HandleAll(ctx, handlers, message); err != nil {
		t.logger.Warn(ctx, "message handler failed, leaving entry pending",
			logging.String("entry_id", entry.ID),
			logging.String("message_id", message.ID),
			logging.Error(err))
		return
	}
	t.ack(ctx, stream, entry.ID)
}

func (t *Transport) ack(ctx context.Context, stream, id string) {
	if err := t.client.XAck(ctx, stream, t.cfg.GroupName, id).Err(); err != nil {
		t.logger.Warn(ctx, "xack failed", logging.String("entry_id", id), logging.Error(err))
	}
}

func (t *Transport) ensureGroup(ctx context.Context, stream string) error {
	err := t.client.XGroupCreateMkStream(ctx, stream, t.cfg.GroupName, "0").Err()
	if err == nil || strings.Contains(strings.ToUpper(err.Error()), "BUSYGROUP") {
		return nil
	}
	return err
}

func (t *Transport) streamName(topic string) string {
	return t.cfg.StreamPrefix + topic
}

func decodeEntry(entry redis.XMessage, topic string) (*messaging.Message, error) {
	raw, ok := entry.Values[payloadField].(string)
	if !ok {
		return nil, fmt.Errorf("entry %s has no %q field", entry.ID, payloadField)
	}
	m, err := messaging.Decode([]byte(raw), topic)
	if err != nil {
		return nil, err
	}
	if m.ID == "" {
		m.ID = entry.ID
	}
	return m, nil
}
