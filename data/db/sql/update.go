package sql

import (
	"context"
	"database/sql"
	"strings"

	core "snaptrail/data/db"
	"snaptrail/data/db/dialect"
)

type updateBuilder struct {
	db      core.IDatabase
	dialect dialect.Dialect

	table   string
	columns []string
	values  []any
	where   conditions
}

// Set 追加一列赋值，nil 写入 NULL
func (b *updateBuilder) Set(col string, val any) IUpdateBuilder {
	if col != "" {
		b.columns = append(b.columns, col)
		b.values = append(b.values, val)
	}
	return b
}

func (b *updateBuilder) Where(cond string, args ...any) IUpdateBuilder {
	b.where.add(cond, args)
	return b
}

func (b *updateBuilder) Build() (string, []any) {
	if len(b.columns) == 0 {
		panic("update: nothing to set")
	}
	assigns := quoteColumns(b.dialect, b.columns)
	for i := range assigns {
		assigns[i] += " = ?"
	}

	q := "UPDATE " + quoteTable(b.dialect, b.table) + " SET " + strings.Join(assigns, ", ") + b.where.clause()
	args := make([]any, 0, len(b.values)+len(b.where.args))
	args = append(args, b.values...)
	return q, append(args, b.where.args...)
}

func (b *updateBuilder) Exec(ctx context.Context) (sql.Result, error) {
	q, args := b.Build()
	return b.db.Exec(ctx, q, args...)
}
