package document

import (
	"context"
	"sync"

	"snaptrail/populate"
)

// Pipeline 在引擎外包一层中间件链，所有业务写操作都应经过它
type Pipeline struct {
	engine IEngine

	mu          sync.RWMutex
	middlewares []IMiddleware
}

// NewPipeline 创建管道
func NewPipeline(engine IEngine) *Pipeline {
	return &Pipeline{engine: engine}
}

// Use 追加中间件，先注册的在外层
func (p *Pipeline) Use(middleware IMiddleware) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.middlewares = append(p.middlewares, middleware)
}

// Middlewares 已注册中间件的名称
func (p *Pipeline) Middlewares() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, len(p.middlewares))
	for i, m := range p.middlewares {
		names[i] = m.Name()
	}
	return names
}

// Engine 返回底层引擎
func (p *Pipeline) Engine() IEngine {
	return p.engine
}

// Execute 构建并执行中间件链
func (p *Pipeline) Execute(ctx context.Context, action *Action) (Document, error) {
	p.mu.RLock()
	middlewares := p.middlewares
	p.mu.RUnlock()

	next := Next(p.engine.Execute)
	for i := len(middlewares) - 1; i >= 0; i-- {
		middleware := middlewares[i]
		currentNext := next
		next = func(ctx context.Context, a *Action) (Document, error) {
			return middleware.Handle(ctx, a, currentNext)
		}
	}
	return next(ctx, action)
}

// Create 创建文档
func (p *Pipeline) Create(ctx context.Context, typeUID string, data map[string]any, locale string) (Document, error) {
	return p.Execute(ctx, &Action{TypeUID: typeUID, Kind: KindCreate, Data: data, Locale: locale})
}

// Update 更新文档
func (p *Pipeline) Update(ctx context.Context, typeUID, documentID string, data map[string]any, locale string) (Document, error) {
	return p.Execute(ctx, &Action{TypeUID: typeUID, Kind: KindUpdate, DocumentID: documentID, Data: data, Locale: locale})
}

// Delete 删除文档
func (p *Pipeline) Delete(ctx context.Context, typeUID, documentID, locale string) (Document, error) {
	return p.Execute(ctx, &Action{TypeUID: typeUID, Kind: KindDelete, DocumentID: documentID, Locale: locale})
}

// Publish 发布文档
func (p *Pipeline) Publish(ctx context.Context, typeUID, documentID, locale string) (Document, error) {
	return p.Execute(ctx, &Action{TypeUID: typeUID, Kind: KindPublish, DocumentID: documentID, Locale: locale})
}

// Unpublish 取消发布
func (p *Pipeline) Unpublish(ctx context.Context, typeUID, documentID, locale string) (Document, error) {
	return p.Execute(ctx, &Action{TypeUID: typeUID, Kind: KindUnpublish, DocumentID: documentID, Locale: locale})
}

// FindOne 读取单个文档
func (p *Pipeline) FindOne(ctx context.Context, typeUID, documentID string, plan *populate.Plan) (Document, error) {
	return p.Execute(ctx, &Action{TypeUID: typeUID, Kind: KindFindOne, DocumentID: documentID, Populate: plan})
}
