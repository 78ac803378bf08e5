// Package task 定时发布/取消发布任务：模型、存储、执行器与调度循环
package task

import (
	"fmt"
	"time"

	"snaptrail/errors"
)

// Status 任务状态
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusPartial   Status = "partial"
	StatusFailed    Status = "failed"
)

// Valid 是否为已知状态
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusPartial, StatusFailed:
		return true
	}
	return false
}

// Operation 任务对单个文档执行的操作
type Operation string

const (
	OperationPublish   Operation = "publish"
	OperationUnpublish Operation = "unpublish"
)

// DocumentRef 任务涉及的一个文档
type DocumentRef struct {
	ContentType string    `json:"content_type"`
	DocumentID  string    `json:"document_id"`
	Operation   Operation `json:"operation"`
	Locale      string    `json:"locale,omitempty"`
}

// Validate 校验单个文档引用
func (d DocumentRef) Validate() error {
	if d.ContentType == "" || d.DocumentID == "" {
		return errors.NewValidationError("document reference requires content_type and document_id")
	}
	if d.Operation != OperationPublish && d.Operation != OperationUnpublish {
		return errors.Errorf(errors.ErrCodeValidation, "unsupported task operation %q", d.Operation)
	}
	return nil
}

// Result 单个文档的执行结果
type Result struct {
	ContentType string    `json:"content_type"`
	DocumentID  string    `json:"document_id"`
	Operation   Operation `json:"operation"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
}

// Task 定时任务
type Task struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Documents    []DocumentRef `json:"documents"`
	ScheduledAt  time.Time     `json:"scheduled_at"`
	Status       Status        `json:"status"`
	ExecutedAt   *time.Time    `json:"executed_at,omitempty"`
	Results      []Result      `json:"results,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Due 是否为到期的待执行任务
func (t *Task) Due(now time.Time) bool {
	return t.Status == StatusPending && !t.ScheduledAt.After(now)
}

func validateDocuments(docs []DocumentRef) error {
	for i, d := range docs {
		if err := d.Validate(); err != nil {
			return errors.WrapError(err, errors.ErrCodeValidation, fmt.Sprintf("documents[%d]", i))
		}
	}
	return nil
}

// finalStatus 全部成功为 completed，全部失败为 failed，其余为 partial
func finalStatus(results []Result) Status {
	ok := 0
	for _, r := range results {
		if r.Success {
			ok++
		}
	}
	switch {
	case ok == len(results):
		return StatusCompleted
	case ok == 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}
