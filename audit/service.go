package audit

import (
	"context"

	"snaptrail/document"
	"snaptrail/errors"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Service 面向 API 的审计查询与恢复入口
type Service struct {
	store        IStore
	restorer     *Restorer
	defaultLimit int
	maxLimit     int
}

// NewService 创建 Service，defaultLimit 或 maxLimit 非正时使用默认值
func NewService(store IStore, restorer *Restorer, defaultLimit, maxLimit int) *Service {
	if defaultLimit <= 0 {
		defaultLimit = DefaultListLimit
	}
	if maxLimit <= 0 {
		maxLimit = MaxListLimit
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return &Service{store: store, restorer: restorer, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// List 最近的记录在前
func (s *Service) List(ctx context.Context, filter Filter) ([]*Record, error) {
	switch {
	case filter.Limit <= 0:
		filter.Limit = s.defaultLimit
	case filter.Limit > s.maxLimit:
		filter.Limit = s.maxLimit
	}
	return s.store.List(ctx, filter)
}

// Restorable 只列出可恢复的记录，过滤由存储在限制条数之前完成
func (s *Service) Restorable(ctx context.Context, filter Filter) ([]*Record, error) {
	filter.RestorableOnly = true
	return s.List(ctx, filter)
}

// Get 按ID读取
func (s *Service) Get(ctx context.Context, id int64) (*Record, error) {
	if id == 0 {
		return nil, errors.NewError(errors.ErrCodeNotFound, "no snapshot selected")
	}
	return s.store.Get(ctx, id)
}

// Restore 按ID取记录并恢复，记录必须属于指定的类型与文档
func (s *Service) Restore(ctx context.Context, typeUID, documentID string, auditID int64) (document.Document, error) {
	if typeUID == "" || documentID == "" {
		return nil, errors.NewValidationError("content_type and document_id are required")
	}
	record, err := s.Get(ctx, auditID)
	if err != nil {
		return nil, err
	}
	if record.ContentType != typeUID || record.TargetDocumentID != documentID {
		return nil, errors.NewError(errors.ErrCodeValidation, "audit record belongs to a different document").
			WithContext("audit_id", auditID)
	}
	return s.restorer.Restore(ctx, typeUID, documentID, record)
}
