// Package sqlstore 基于 SQL 的审计记录存储，支持 sqlite 与 postgres
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"time"

	"snaptrail/audit"
	core "snaptrail/data/db"
	"snaptrail/data/db/dialect"
	"snaptrail/data/db/migrate"
	dbsql "snaptrail/data/db/sql"
	"snaptrail/document"
	"snaptrail/errors"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	table        = "audit_logs"
	versionTable = "audit_schema_migrations"
)

var columns = []string{
	"id", "schema_version", "content_type", "target_document_id", "locale",
	"operation", "operation_status",
	"operation_user_id", "operation_user_email", "operation_user_name",
	"snapshot_before", "snapshot_after",
	"ip_address", "user_agent", "created_at",
}

// Store SQL 审计存储，快照以 JSON 文本保存，时间以 UTC 微秒保存
type Store struct {
	db      core.IDatabase
	sql     dbsql.ISql
	dialect dialect.Dialect
}

// New 创建存储并执行迁移
func New(db core.IDatabase) (*Store, error) {
	if err := migrate.Up(db, migrations, "migrations", versionTable); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeDatabase, "migrate audit store")
	}
	return &Store{db: db, sql: dbsql.New(db), dialect: dialect.New(db.DialectName())}, nil
}

func (s *Store) Save(ctx context.Context, r *audit.Record) error {
	if r == nil {
		return errors.NewValidationError("record is nil")
	}
	before, err := encodeSnapshot(r.SnapshotBefore)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeInvalidInput, "encode snapshot_before")
	}
	after, err := encodeSnapshot(r.SnapshotAfter)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeInvalidInput, "encode snapshot_after")
	}

	_, err = s.sql.InsertInto(table).Columns(columns...).Values(
		r.ID, r.SchemaVersion, r.ContentType, r.TargetDocumentID, r.Locale,
		string(r.Operation), r.OperationStatus,
		r.UserID, r.UserEmail, r.UserName,
		before, after,
		r.IPAddress, r.UserAgent, r.CreatedAt.UTC().UnixMicro(),
	).Exec(ctx)
	if err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return errors.WrapError(err, errors.ErrCodeConflict, "audit record already exists").
				WithContext("audit_id", r.ID)
		}
		return errors.WrapDatabaseError(ctx, err, "insert audit record")
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id int64) (*audit.Record, error) {
	row := s.sql.Select(columns...).From(table).Where("id = ?", id).QueryRow(ctx)
	r, err := scan(row)
	if err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "get audit record")
	}
	return r, nil
}

func (s *Store) List(ctx context.Context, filter audit.Filter) ([]*audit.Record, error) {
	q := s.sql.Select(columns...).From(table)
	if filter.ContentType != "" {
		q = q.Where("content_type = ?", filter.ContentType)
	}
	if filter.DocumentID != "" {
		q = q.Where("target_document_id = ?", filter.DocumentID)
	}
	if filter.Operation != "" {
		q = q.Where("operation = ?", string(filter.Operation))
	}
	if filter.RestorableOnly {
		q = q.Where("snapshot_after IS NOT NULL AND snapshot_after <> '{}'")
	}
	q = q.OrderBy("created_at DESC, id DESC")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	rows, err := q.Query(ctx)
	if err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "list audit records")
	}
	defer rows.Close()

	var out []*audit.Record
	for rows.Next() {
		r, err := scan(rows)
		if err != nil {
			return nil, errors.WrapDatabaseError(ctx, err, "scan audit record")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "iterate audit records")
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (*audit.Record, error) {
	var (
		r         audit.Record
		operation string
		before    sql.NullString
		after     sql.NullString
		createdAt int64
	)
	err := row.Scan(
		&r.ID, &r.SchemaVersion, &r.ContentType, &r.TargetDocumentID, &r.Locale,
		&operation, &r.OperationStatus,
		&r.UserID, &r.UserEmail, &r.UserName,
		&before, &after,
		&r.IPAddress, &r.UserAgent, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	r.Operation = document.Kind(operation)
	r.CreatedAt = time.UnixMicro(createdAt).UTC()
	if r.SnapshotBefore, err = decodeSnapshot(before); err != nil {
		return nil, err
	}
	if r.SnapshotAfter, err = decodeSnapshot(after); err != nil {
		return nil, err
	}
	return &r, nil
}

// encodeSnapshot nil 快照存为 NULL
func encodeSnapshot(snap map[string]any) (any, error) {
	if snap == nil {
		return nil, nil
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func decodeSnapshot(v sql.NullString) (map[string]any, error) {
	if !v.Valid || v.String == "" || v.String == "null" {
		return nil, nil
	}
	out := map[string]any{}
	if err := json.Unmarshal([]byte(v.String), &out); err != nil {
		return nil, err
	}
	return out, nil
}
