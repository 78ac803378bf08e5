package audit

import (
	"context"
	"fmt"
	"time"

	"snaptrail/logging"
	"snaptrail/metrics"
	"snaptrail/redact"
	"snaptrail/snowflake"
)

// Recorder 把 Capture 转成审计记录并写入存储
type Recorder struct {
	store         IStore
	ids           *snowflake.Generator
	omit          redact.OmitSet
	schemaVersion string
	logger        logging.Logger
}

// RecorderOption 配置 Recorder
type RecorderOption func(*Recorder)

// WithOmitSet 设置快照中剔除的字段
func WithOmitSet(omit redact.OmitSet) RecorderOption {
	return func(r *Recorder) { r.omit = omit }
}

// WithSchemaVersion 设置记录格式版本
func WithSchemaVersion(version string) RecorderOption {
	return func(r *Recorder) { r.schemaVersion = version }
}

// WithRecorderLogger 设置日志
func WithRecorderLogger(logger logging.Logger) RecorderOption {
	return func(r *Recorder) { r.logger = logger }
}

// NewRecorder 创建 Recorder
func NewRecorder(store IStore, ids *snowflake.Generator, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:         store,
		ids:           ids,
		omit:          redact.NewOmitSet(redact.DefaultOmitFields...),
		schemaVersion: DefaultSchemaVersion,
		logger:        logging.GetLogger().WithFields(logging.Component("audit.recorder")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Build 生成审计记录，不写入
func (r *Recorder) Build(c Capture) (*Record, error) {
	id, err := r.ids.NextID()
	if err != nil {
		return nil, fmt.Errorf("allocate audit id: %w", err)
	}

	before := redact.Object(c.Before, r.omit)
	after := redact.Object(c.After, r.omit)

	// 回退取值读未剔除的快照，locale 与 documentId 可能在 omit 集合中
	locale := c.Locale
	if locale == "" {
		locale = stringField(c.After, "locale")
	}

	createdAt := c.At
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return &Record{
		ID:               id,
		SchemaVersion:    r.schemaVersion,
		ContentType:      c.TypeUID,
		TargetDocumentID: targetDocumentID(c.Before, c.After),
		Locale:           locale,
		Operation:        c.Operation,
		OperationStatus:  StatusSuccess,
		UserID:           c.Meta.UserID,
		UserEmail:        c.Meta.UserEmail,
		UserName:         c.Meta.UserName,
		SnapshotBefore:   before,
		SnapshotAfter:    after,
		IPAddress:        c.Meta.IPAddress,
		UserAgent:        c.Meta.UserAgent,
		CreatedAt:        createdAt.UTC(),
	}, nil
}

// Persist 生成并写入记录，失败时返回错误，供需要重试的调用方使用
func (r *Recorder) Persist(ctx context.Context, c Capture) error {
	record, err := r.Build(c)
	if err != nil {
		metrics.CaptureFailures.WithLabelValues("build").Inc()
		return err
	}

	start := time.Now()
	err = r.store.Save(ctx, record)
	metrics.PersistDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PersistFailures.Inc()
		return err
	}
	return nil
}

// Capture 写入审计记录，任何失败都只记录日志，不会传播给调用方
func (r *Recorder) Capture(ctx context.Context, c Capture) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error(ctx, "audit capture panicked",
				logging.String("type", c.TypeUID),
				logging.String("operation", string(c.Operation)),
				logging.Any("panic", p))
		}
	}()

	if err := r.Persist(ctx, c); err != nil {
		r.logger.Error(ctx, "audit capture failed",
			logging.String("type", c.TypeUID),
			logging.String("operation", string(c.Operation)),
			logging.Error(err))
	}
}

func targetDocumentID(before, after map[string]any) string {
	if id := stringField(after, "documentId"); id != "" {
		return id
	}
	if id := stringField(before, "documentId"); id != "" {
		return id
	}
	return UnknownDocumentID
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}
