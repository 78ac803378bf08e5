package task

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"snaptrail/errors"
)

// ListFilter 列表条件，零值表示不过滤
type ListFilter struct {
	Status    Status
	DueBefore time.Time
}

// Matches 任务是否满足条件
func (f ListFilter) Matches(t *Task) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if !f.DueBefore.IsZero() && t.ScheduledAt.After(f.DueBefore) {
		return false
	}
	return true
}

// IStore 任务存储，List 按 scheduled_at 升序、同一时刻按 ID 升序
type IStore interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	Update(ctx context.Context, t *Task) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter ListFilter) ([]*Task, error)
}

// MemoryStore 内存任务存储，读写均为深拷贝
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*Task)}
}

func (s *MemoryStore) Create(_ context.Context, t *Task) error {
	cp, err := cloneTask(t)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[t.ID]; exists {
		return errors.Errorf(errors.ErrCodeConflict, "task %s already exists", t.ID)
	}
	s.tasks[t.ID] = cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Task, error) {
	s.mu.RLock()
	t, ok := s.tasks[id]
	s.mu.RUnlock()
	if !ok {
		return nil, notFound(id)
	}
	return cloneTask(t)
}

func (s *MemoryStore) Update(_ context.Context, t *Task) error {
	cp, err := cloneTask(t)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.ID]; !ok {
		return notFound(t.ID)
	}
	s.tasks[t.ID] = cp
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return notFound(id)
	}
	delete(s.tasks, id)
	return nil
}

func (s *MemoryStore) List(_ context.Context, filter ListFilter) ([]*Task, error) {
	s.mu.RLock()
	out := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if filter.Matches(t) {
			cp, err := cloneTask(t)
			if err != nil {
				s.mu.RUnlock()
				return nil, err
			}
			out = append(out, cp)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.Before(out[j].ScheduledAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func notFound(id string) error {
	return errors.Errorf(errors.ErrCodeNotFound, "task %s not found", id).WithContext("task_id", id)
}

func cloneTask(t *Task) (*Task, error) {
	if t == nil {
		return nil, errors.NewValidationError("task is nil")
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	out := &Task{}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}
