// Package audit 拦截文档写操作，生成带前后快照的审计记录，并支持按快照恢复
package audit

import (
	"context"
	"time"

	"snaptrail/document"
)

const (
	// StatusSuccess 只有成功的写操作会被记录
	StatusSuccess = "success"

	// UnknownDocumentID 前后快照都没有文档ID时使用
	UnknownDocumentID = "unknown"

	// DefaultSchemaVersion 审计记录格式版本
	DefaultSchemaVersion = "1.0.0"

	// DefaultRecordType 审计记录自身的类型，对它的写操作不会再被审计
	DefaultRecordType = "plugin::snaptrail.audit"
)

// Record 一条审计记录，写入后不再修改
type Record struct {
	ID               int64          `json:"id,string"`
	SchemaVersion    string         `json:"schema_version"`
	ContentType      string         `json:"content_type"`
	TargetDocumentID string         `json:"target_document_id"`
	Locale           string         `json:"locale,omitempty"`
	Operation        document.Kind  `json:"operation"`
	OperationStatus  string         `json:"operation_status"`
	UserID           string         `json:"operation_user_id,omitempty"`
	UserEmail        string         `json:"operation_user_email,omitempty"`
	UserName         string         `json:"operation_user_name,omitempty"`
	SnapshotBefore   map[string]any `json:"snapshot_before"`
	SnapshotAfter    map[string]any `json:"snapshot_after"`
	IPAddress        string         `json:"ip_address,omitempty"`
	UserAgent        string         `json:"user_agent,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// Restorable 是否有可用于恢复的变更后快照
func (r *Record) Restorable() bool {
	return r != nil && len(r.SnapshotAfter) > 0
}

// Filter 列表查询条件，空字段表示不过滤
type Filter struct {
	ContentType    string
	DocumentID     string
	Operation      document.Kind
	// RestorableOnly 只要有非空变更后快照的记录，在分页前生效
	RestorableOnly bool
	Limit          int
}

// Matches 记录是否满足条件，供不支持查询下推的存储使用
func (f Filter) Matches(r *Record) bool {
	if f.ContentType != "" && r.ContentType != f.ContentType {
		return false
	}
	if f.DocumentID != "" && r.TargetDocumentID != f.DocumentID {
		return false
	}
	if f.Operation != "" && r.Operation != f.Operation {
		return false
	}
	if f.RestorableOnly && !r.Restorable() {
		return false
	}
	return true
}

// IStore 审计记录存储，List 按 CreatedAt 倒序、同一时刻按 ID 倒序
type IStore interface {
	Save(ctx context.Context, record *Record) error
	Get(ctx context.Context, id int64) (*Record, error)
	List(ctx context.Context, filter Filter) ([]*Record, error)
}
