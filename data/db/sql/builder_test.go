package sql

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"

	core "snaptrail/data/db"
)

// stubDB 只提供方言，构建器测试不执行语句
type stubDB struct{ dialect string }

func (s stubDB) Query(context.Context, string, ...any) (core.IRows, error) { return nil, nil }
func (s stubDB) QueryRow(context.Context, string, ...any) core.IRow        { return nil }
func (s stubDB) Exec(context.Context, string, ...any) (sql.Result, error)  { return nil, nil }
func (s stubDB) Ping(context.Context) error { return nil }
func (s stubDB) Close() error               { return nil }
func (s stubDB) DialectName() string        { return s.dialect }

func TestSelectBuild(t *testing.T) {
	q, args := New(stubDB{"sqlite"}).Select("id", "name").From("tasks").
		Where("status = ?", "pending").
		Where("scheduled_at <= ?", 10).
		OrderBy("scheduled_at ASC, id ASC").
		Limit(5).
		Build()
	assert.Equal(t, `SELECT id, name FROM "tasks" WHERE status = ? AND scheduled_at <= ? ORDER BY scheduled_at ASC, id ASC LIMIT ?`, q)
	assert.Equal(t, []any{"pending", 10, 5}, args)
}

func TestInsertBuild(t *testing.T) {
	q, args := New(stubDB{"postgres"}).InsertInto("audit_logs").
		Columns("id", "content_type").
		Values(1, "a").
		Values(2, "b").
		Build()
	assert.Equal(t, `INSERT INTO "audit_logs" ("id", "content_type") VALUES (?, ?), (?, ?)`, q)
	assert.Equal(t, []any{1, "a", 2, "b"}, args)
}

func TestUpdateAndDeleteBuild(t *testing.T) {
	s := New(stubDB{"sqlite"})
	q, args := s.Update("tasks").Set("status", "completed").Set("error_message", nil).
		Where("id = ?", 3).Build()
	assert.Equal(t, `UPDATE "tasks" SET "status" = ?, "error_message" = ? WHERE id = ?`, q)
	assert.Equal(t, []any{"completed", nil, 3}, args)

	q, args = s.DeleteFrom("tasks").Where("id = ?", 3).Build()
	assert.Equal(t, `DELETE FROM "tasks" WHERE id = ?`, q)
	assert.Equal(t, []any{3}, args)
}

func TestUnsafeIdentifierPanics(t *testing.T) {
	s := New(stubDB{"sqlite"})
	assert.Panics(t, func() { s.Select().From("tasks; DROP TABLE x").Build() })
	assert.Panics(t, func() { s.InsertInto("t").Columns("a b").Values(1).Build() })
	assert.True(t, isSafeIdentifier("public.tasks"))
	assert.False(t, isSafeIdentifier("1abc"))
	assert.False(t, isSafeIdentifier("a..b"))
}
