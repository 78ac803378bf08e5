package task

import (
	"context"
	"time"

	"github.com/google/uuid"

	"snaptrail/errors"
)

// CreateInput 创建任务的输入
type CreateInput struct {
	Name        string        `json:"name"`
	Documents   []DocumentRef `json:"documents"`
	ScheduledAt time.Time     `json:"scheduled_at"`
}

// Patch 更新任务的输入，nil 字段保持不变
type Patch struct {
	Name        *string        `json:"name"`
	Documents   *[]DocumentRef `json:"documents"`
	ScheduledAt *time.Time     `json:"scheduled_at"`
	Status      *Status        `json:"status"`
}

// Service 任务的增删改查
type Service struct {
	store IStore
	clock func() time.Time
	newID func() string
}

// NewService 创建 Service
func NewService(store IStore) *Service {
	return &Service{store: store, clock: time.Now, newID: uuid.NewString}
}

// Create 创建待执行任务，name 与 scheduled_at 必填
func (s *Service) Create(ctx context.Context, in CreateInput) (*Task, error) {
	if in.Name == "" || in.ScheduledAt.IsZero() {
		return nil, errors.NewValidationError("name and scheduled_at are required")
	}
	if err := validateDocuments(in.Documents); err != nil {
		return nil, err
	}
	docs := in.Documents
	if docs == nil {
		docs = []DocumentRef{}
	}

	now := s.clock().UTC()
	t := &Task{
		ID:          s.newID(),
		Name:        in.Name,
		Documents:   docs,
		ScheduledAt: in.ScheduledAt.UTC(),
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Get 按ID读取
func (s *Service) Get(ctx context.Context, id string) (*Task, error) {
	return s.store.Get(ctx, id)
}

// List 可按状态过滤
func (s *Service) List(ctx context.Context, status Status) ([]*Task, error) {
	if status != "" && !status.Valid() {
		return nil, errors.Errorf(errors.ErrCodeValidation, "unknown task status %q", status)
	}
	return s.store.List(ctx, ListFilter{Status: status})
}

// Update 只修改 patch 中提供的字段
func (s *Service) Update(ctx context.Context, id string, patch Patch) (*Task, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		if *patch.Name == "" {
			return nil, errors.NewValidationError("name cannot be empty")
		}
		t.Name = *patch.Name
	}
	if patch.Documents != nil {
		if err := validateDocuments(*patch.Documents); err != nil {
			return nil, err
		}
		t.Documents = *patch.Documents
	}
	if patch.ScheduledAt != nil {
		if patch.ScheduledAt.IsZero() {
			return nil, errors.NewValidationError("scheduled_at cannot be empty")
		}
		t.ScheduledAt = patch.ScheduledAt.UTC()
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return nil, errors.Errorf(errors.ErrCodeValidation, "unknown task status %q", *patch.Status)
		}
		t.Status = *patch.Status
	}
	t.UpdatedAt = s.clock().UTC()

	if err := s.store.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Delete 删除任务
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}
