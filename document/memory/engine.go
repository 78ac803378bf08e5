// Package memory 提供基于内存的参考文档引擎
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/graph-gophers/dataloader"

	"snaptrail/document"
	"snaptrail/errors"
	"snaptrail/logging"
	"snaptrail/populate"
	"snaptrail/schema"
)

// 由引擎维护、写入时忽略的字段
var systemFields = map[string]struct{}{
	"id":          {},
	"documentId":  {},
	"locale":      {},
	"createdAt":   {},
	"updatedAt":   {},
	"publishedAt": {},
}

// ComponentKey 动态区元素中标记组件类型的键
const ComponentKey = "__component"

type entry struct {
	id          string
	locale      string
	fields      map[string]any
	createdAt   time.Time
	updatedAt   time.Time
	publishedAt *time.Time
}

func (e *entry) clone() *entry {
	c := *e
	c.fields = cloneValue(e.fields).(map[string]any)
	if e.publishedAt != nil {
		t := *e.publishedAt
		c.publishedAt = &t
	}
	return &c
}

// Engine 内存文档引擎，关系字段存目标文档ID，组件与动态区内联存储
type Engine struct {
	registry   schema.IRegistry
	clock      func() time.Time
	newID      func() string
	loaderWait time.Duration
	logger     logging.Logger

	mu   sync.RWMutex
	docs map[string]map[string]*entry
}

// Option 配置 Engine
type Option func(*Engine)

// WithClock 设置时钟
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithIDGenerator 设置文档ID生成函数
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// WithLoaderWait 设置关系批量加载的聚合等待时间
func WithLoaderWait(d time.Duration) Option {
	return func(e *Engine) { e.loaderWait = d }
}

// WithLogger 设置日志
func WithLogger(logger logging.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New 创建引擎
func New(registry schema.IRegistry, opts ...Option) *Engine {
	e := &Engine{
		registry:   registry,
		clock:      time.Now,
		newID:      uuid.NewString,
		loaderWait: time.Millisecond,
		logger:     logging.GetLogger().WithFields(logging.Component("document.memory")),
		docs:       make(map[string]map[string]*entry),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute 执行操作
func (e *Engine) Execute(ctx context.Context, a *document.Action) (document.Document, error) {
	switch a.Kind {
	case document.KindCreate:
		return e.create(ctx, a)
	case document.KindUpdate:
		return e.update(ctx, a)
	case document.KindDelete:
		return nil, e.delete(a)
	case document.KindPublish, document.KindUnpublish:
		return e.setPublished(ctx, a, a.Kind == document.KindPublish)
	case document.KindDiscardDraft, document.KindFindOne:
		return e.FetchExpanded(ctx, a.TypeUID, a.DocumentID, a.Populate)
	default:
		return nil, errors.Errorf(errors.ErrCodeValidation, "unsupported operation %q", a.Kind)
	}
}

// Count 某类型的文档数量
func (e *Engine) Count(typeUID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.docs[typeUID])
}

func (e *Engine) create(ctx context.Context, a *document.Action) (document.Document, error) {
	fields, err := e.normalize(a.TypeUID, a.Data)
	if err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]any{}
	}

	now := e.clock()
	doc := &entry{
		id:        e.newID(),
		locale:    a.Locale,
		fields:    fields,
		createdAt: now,
		updatedAt: now,
	}

	e.mu.Lock()
	if e.docs[a.TypeUID] == nil {
		e.docs[a.TypeUID] = make(map[string]*entry)
	}
	e.docs[a.TypeUID][doc.id] = doc
	e.mu.Unlock()

	return e.FetchExpanded(ctx, a.TypeUID, doc.id, a.Populate)
}

func (e *Engine) update(ctx context.Context, a *document.Action) (document.Document, error) {
	fields, err := e.normalize(a.TypeUID, a.Data)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	doc, ok := e.docs[a.TypeUID][a.DocumentID]
	if !ok {
		e.mu.Unlock()
		return nil, notFound(a.TypeUID, a.DocumentID)
	}
	for k, v := range fields {
		doc.fields[k] = v
	}
	doc.updatedAt = e.clock()
	e.mu.Unlock()

	return e.FetchExpanded(ctx, a.TypeUID, a.DocumentID, a.Populate)
}

func (e *Engine) delete(a *document.Action) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.docs[a.TypeUID][a.DocumentID]; !ok {
		return notFound(a.TypeUID, a.DocumentID)
	}
	delete(e.docs[a.TypeUID], a.DocumentID)
	return nil
}

func (e *Engine) setPublished(ctx context.Context, a *document.Action, published bool) (document.Document, error) {
	e.mu.Lock()
	doc, ok := e.docs[a.TypeUID][a.DocumentID]
	if !ok {
		e.mu.Unlock()
		return nil, notFound(a.TypeUID, a.DocumentID)
	}
	if published {
		now := e.clock()
		doc.publishedAt = &now
	} else {
		doc.publishedAt = nil
	}
	e.mu.Unlock()

	return e.FetchExpanded(ctx, a.TypeUID, a.DocumentID, a.Populate)
}

// FetchExpanded 按计划读取文档，关系字段通过 dataloader 批量加载
func (e *Engine) FetchExpanded(ctx context.Context, typeUID, documentID string, plan *populate.Plan) (document.Document, error) {
	e.mu.RLock()
	doc, ok := e.docs[typeUID][documentID]
	if ok {
		doc = doc.clone()
	}
	e.mu.RUnlock()
	if !ok {
		return nil, notFound(typeUID, documentID)
	}

	r := &renderer{
		registry: e.registry,
		loader:   dataloader.NewBatchedLoader(e.batchLoad, dataloader.WithWait(e.loaderWait)),
	}
	return r.document(ctx, typeUID, doc, plan), nil
}

func (e *Engine) batchLoad(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
	e.mu.RLock()
	defer e.mu.RUnlock()

	results := make([]*dataloader.Result, len(keys))
	for i, k := range keys {
		typeUID, id, _ := strings.Cut(k.String(), "\x00")
		if doc, ok := e.docs[typeUID][id]; ok {
			results[i] = &dataloader.Result{Data: doc.clone()}
		} else {
			results[i] = &dataloader.Result{Data: nil}
		}
	}
	return results
}

func notFound(typeUID, documentID string) error {
	return errors.NewError(errors.ErrCodeNotFound, fmt.Sprintf("document %s/%s not found", typeUID, documentID)).
		WithContext("type", typeUID).
		WithContext("document_id", documentID)
}

func loaderKey(typeUID, id string) dataloader.StringKey {
	return dataloader.StringKey(typeUID + "\x00" + id)
}

// cloneValue 深拷贝 JSON 形状的值
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return t
		}
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}
