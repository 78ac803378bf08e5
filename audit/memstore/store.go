// Package memstore 进程内审计记录存储，用于测试与单机部署
package memstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"snaptrail/audit"
	"snaptrail/errors"
)

// Store 内存审计存储，保存与返回的都是深拷贝
type Store struct {
	mu      sync.RWMutex
	records map[int64]*audit.Record
}

// New 创建内存存储
func New() *Store {
	return &Store{records: make(map[int64]*audit.Record)}
}

func (s *Store) Save(_ context.Context, record *audit.Record) error {
	if record == nil {
		return errors.NewValidationError("record is nil")
	}
	cp, err := clone(record)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeDatabase, "copy audit record")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.ID]; exists {
		return errors.Errorf(errors.ErrCodeConflict, "audit record %d already exists", record.ID)
	}
	s.records[record.ID] = cp
	return nil
}

func (s *Store) Get(_ context.Context, id int64) (*audit.Record, error) {
	s.mu.RLock()
	r, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.Errorf(errors.ErrCodeNotFound, "audit record %d not found", id)
	}
	return clone(r)
}

func (s *Store) List(_ context.Context, filter audit.Filter) ([]*audit.Record, error) {
	s.mu.RLock()
	matched := make([]*audit.Record, 0, len(s.records))
	for _, r := range s.records {
		if filter.Matches(r) {
			matched = append(matched, r)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	out := make([]*audit.Record, 0, len(matched))
	for _, r := range matched {
		cp, err := clone(r)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

// Len 当前记录数
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func clone(r *audit.Record) (*audit.Record, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	out := &audit.Record{}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}
