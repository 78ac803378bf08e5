package sql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	core "snaptrail/data/db"
	"snaptrail/data/db/dialect"
)

// insertBuilder 单条或批量 INSERT，审计记录和定时任务都按单行写入
type insertBuilder struct {
	db      core.IDatabase
	dialect dialect.Dialect

	table   string
	columns []string
	rows    [][]any
}

func (b *insertBuilder) Columns(cols ...string) IInsertBuilder {
	b.columns = append(b.columns[:0], cols...)
	return b
}

func (b *insertBuilder) Values(vals ...any) IInsertBuilder {
	if len(vals) > 0 {
		b.rows = append(b.rows, vals)
	}
	return b
}

func (b *insertBuilder) Build() (string, []any) {
	switch {
	case len(b.columns) == 0:
		panic("insert: no columns")
	case len(b.rows) == 0:
		panic("insert: no values")
	}

	tuple := "(" + strings.Repeat("?, ", len(b.columns)-1) + "?)"
	tuples := make([]string, 0, len(b.rows))
	args := make([]any, 0, len(b.rows)*len(b.columns))
	for n, row := range b.rows {
		if len(row) != len(b.columns) {
			panic(fmt.Sprintf("insert: row %d has %d values, want %d", n, len(row), len(b.columns)))
		}
		tuples = append(tuples, tuple)
		args = append(args, row...)
	}

	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		quoteTable(b.dialect, b.table),
		strings.Join(quoteColumns(b.dialect, b.columns), ", "),
		strings.Join(tuples, ", "))
	return q, args
}

func (b *insertBuilder) Exec(ctx context.Context) (sql.Result, error) {
	q, args := b.Build()
	return b.db.Exec(ctx, q, args...)
}
