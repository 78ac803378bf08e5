// Package sqlstore 基于 SQL 的任务存储
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"time"

	core "snaptrail/data/db"
	"snaptrail/data/db/dialect"
	"snaptrail/data/db/migrate"
	dbsql "snaptrail/data/db/sql"
	"snaptrail/errors"
	"snaptrail/task"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	table        = "scheduled_tasks"
	versionTable = "task_schema_migrations"
)

var columns = []string{
	"id", "name", "documents", "scheduled_at", "status",
	"executed_at", "results", "error_message", "created_at", "updated_at",
}

// Store SQL 任务存储，documents/results 以 JSON 文本保存，时间以 UTC 微秒保存
type Store struct {
	db      core.IDatabase
	sql     dbsql.ISql
	dialect dialect.Dialect
}

var _ task.IStore = (*Store)(nil)

// New 创建存储并执行迁移
func New(db core.IDatabase) (*Store, error) {
	if err := migrate.Up(db, migrations, "migrations", versionTable); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeDatabase, "migrate task store")
	}
	return &Store{db: db, sql: dbsql.New(db), dialect: dialect.New(db.DialectName())}, nil
}

func (s *Store) Create(ctx context.Context, t *task.Task) error {
	if t == nil {
		return errors.NewValidationError("task is nil")
	}
	row, err := encode(t)
	if err != nil {
		return err
	}
	_, err = s.sql.InsertInto(table).Columns(columns...).Values(
		t.ID, t.Name, row.documents, row.scheduledAt, string(t.Status),
		row.executedAt, row.results, t.ErrorMessage, row.createdAt, row.updatedAt,
	).Exec(ctx)
	if err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return errors.Errorf(errors.ErrCodeConflict, "task %s already exists", t.ID)
		}
		return errors.WrapDatabaseError(ctx, err, "insert task")
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*task.Task, error) {
	t, err := scan(s.sql.Select(columns...).From(table).Where("id = ?", id).QueryRow(ctx))
	if err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "get task")
	}
	return t, nil
}

func (s *Store) Update(ctx context.Context, t *task.Task) error {
	if t == nil {
		return errors.NewValidationError("task is nil")
	}
	row, err := encode(t)
	if err != nil {
		return err
	}
	res, err := s.sql.Update(table).
		Set("name", t.Name).
		Set("documents", row.documents).
		Set("scheduled_at", row.scheduledAt).
		Set("status", string(t.Status)).
		Set("executed_at", row.executedAt).
		Set("results", row.results).
		Set("error_message", t.ErrorMessage).
		Set("updated_at", row.updatedAt).
		Where("id = ?", t.ID).
		Exec(ctx)
	if err != nil {
		return errors.WrapDatabaseError(ctx, err, "update task")
	}
	return requireAffected(ctx, res, t.ID)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.sql.DeleteFrom(table).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return errors.WrapDatabaseError(ctx, err, "delete task")
	}
	return requireAffected(ctx, res, id)
}

func (s *Store) List(ctx context.Context, filter task.ListFilter) ([]*task.Task, error) {
	q := s.sql.Select(columns...).From(table)
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if !filter.DueBefore.IsZero() {
		q = q.Where("scheduled_at <= ?", filter.DueBefore.UTC().UnixMicro())
	}
	rows, err := q.OrderBy("scheduled_at ASC, id ASC").Query(ctx)
	if err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "list tasks")
	}
	defer rows.Close()

	out := []*task.Task{}
	for rows.Next() {
		t, err := scan(rows)
		if err != nil {
			return nil, errors.WrapDatabaseError(ctx, err, "scan task")
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "iterate tasks")
	}
	return out, nil
}

func requireAffected(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.WrapDatabaseError(ctx, err, "rows affected")
	}
	if n == 0 {
		return errors.Errorf(errors.ErrCodeNotFound, "task %s not found", id).WithContext("task_id", id)
	}
	return nil
}

type encoded struct {
	documents   string
	results     any
	scheduledAt int64
	executedAt  any
	createdAt   int64
	updatedAt   int64
}

func encode(t *task.Task) (encoded, error) {
	docs := t.Documents
	if docs == nil {
		docs = []task.DocumentRef{}
	}
	rawDocs, err := json.Marshal(docs)
	if err != nil {
		return encoded{}, errors.WrapError(err, errors.ErrCodeInvalidInput, "encode documents")
	}
	e := encoded{
		documents:   string(rawDocs),
		scheduledAt: t.ScheduledAt.UTC().UnixMicro(),
		createdAt:   t.CreatedAt.UTC().UnixMicro(),
		updatedAt:   t.UpdatedAt.UTC().UnixMicro(),
	}
	if t.Results != nil {
		rawResults, err := json.Marshal(t.Results)
		if err != nil {
			return encoded{}, errors.WrapError(err, errors.ErrCodeInvalidInput, "encode results")
		}
		e.results = string(rawResults)
	}
	if t.ExecutedAt != nil {
		e.executedAt = t.ExecutedAt.UTC().UnixMicro()
	}
	return e, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (*task.Task, error) {
	var (
		t           task.Task
		status      string
		documents   string
		results     sql.NullString
		scheduledAt int64
		executedAt  sql.NullInt64
		createdAt   int64
		updatedAt   int64
	)
	err := row.Scan(
		&t.ID, &t.Name, &documents, &scheduledAt, &status,
		&executedAt, &results, &t.ErrorMessage, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Status = task.Status(status)
	t.ScheduledAt = time.UnixMicro(scheduledAt).UTC()
	t.CreatedAt = time.UnixMicro(createdAt).UTC()
	t.UpdatedAt = time.UnixMicro(updatedAt).UTC()
	if executedAt.Valid {
		at := time.UnixMicro(executedAt.Int64).UTC()
		t.ExecutedAt = &at
	}
	if err := json.Unmarshal([]byte(documents), &t.Documents); err != nil {
		return nil, err
	}
	if results.Valid && results.String != "" {
		if err := json.Unmarshal([]byte(results.String), &t.Results); err != nil {
			return nil, err
		}
	}
	return &t, nil
}
