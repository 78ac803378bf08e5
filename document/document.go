// Package document 定义文档引擎的操作模型与中间件管道
package document

import (
	"context"

	"snaptrail/populate"
)

// Kind 文档操作类型
type Kind string

const (
	KindCreate       Kind = "create"
	KindUpdate       Kind = "update"
	KindDelete       Kind = "delete"
	KindPublish      Kind = "publish"
	KindUnpublish    Kind = "unpublish"
	KindDiscardDraft Kind = "discardDraft"
	KindFindOne      Kind = "findOne"
)

// Audited 是否属于需要审计的写操作
func (k Kind) Audited() bool {
	switch k {
	case KindCreate, KindUpdate, KindDelete, KindPublish, KindUnpublish:
		return true
	}
	return false
}

// TargetsExisting 是否作用于已存在的文档，这类操作需要变更前快照
func (k Kind) TargetsExisting() bool {
	switch k {
	case KindUpdate, KindDelete, KindPublish, KindUnpublish:
		return true
	}
	return false
}

// Document 引擎返回的文档，nil 表示不存在
type Document = map[string]any

// Action 一次文档操作
type Action struct {
	TypeUID    string
	Kind       Kind
	DocumentID string
	Locale     string
	Data       map[string]any

	// Populate 本次读取结果的展开计划，nil 表示不展开
	Populate *populate.Plan
}

// Next 调用链中的下一环
type Next func(ctx context.Context, action *Action) (Document, error)

// IMiddleware 包裹文档操作的中间件
type IMiddleware interface {
	Handle(ctx context.Context, action *Action, next Next) (Document, error)
	Name() string
}

// IReader 按计划读取展开后的文档
type IReader interface {
	// FetchExpanded 读取文档，不存在时返回 NOT_FOUND 错误
	FetchExpanded(ctx context.Context, typeUID, documentID string, plan *populate.Plan) (Document, error)
}

// IEngine 文档引擎
type IEngine interface {
	IReader

	// Execute 直接执行操作，不经过中间件
	Execute(ctx context.Context, action *Action) (Document, error)
}
