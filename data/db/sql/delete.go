package sql

import (
	"context"
	"database/sql"

	core "snaptrail/data/db"
	"snaptrail/data/db/dialect"
)

type deleteBuilder struct {
	db      core.IDatabase
	dialect dialect.Dialect

	table string
	where conditions
}

func (b *deleteBuilder) Where(cond string, args ...any) IDeleteBuilder {
	b.where.add(cond, args)
	return b
}

func (b *deleteBuilder) Build() (string, []any) {
	q := "DELETE FROM " + quoteTable(b.dialect, b.table) + b.where.clause()
	return q, append([]any(nil), b.where.args...)
}

func (b *deleteBuilder) Exec(ctx context.Context) (sql.Result, error) {
	q, args := b.Build()
	return b.db.Exec(ctx, q, args...)
}
