// Package sql 链式 SQL 构建器，生成 ? 占位符语句并交给 IDatabase 执行
package sql

import (
	"context"
	"database/sql"

	core "snaptrail/data/db"
	"snaptrail/data/db/dialect"
)

// ISql 统一的 SQL 构建入口
type ISql interface {
	Select(columns ...string) ISelectBuilder
	InsertInto(table string) IInsertBuilder
	Update(table string) IUpdateBuilder
	DeleteFrom(table string) IDeleteBuilder
}

// ISelectBuilder 构建 SELECT 语句
type ISelectBuilder interface {
	From(table string) ISelectBuilder
	Where(cond string, args ...any) ISelectBuilder
	OrderBy(expr string) ISelectBuilder
	Limit(n int) ISelectBuilder
	Offset(n int) ISelectBuilder
	Build() (query string, args []any)
	Query(ctx context.Context) (core.IRows, error)
	QueryRow(ctx context.Context) core.IRow
}

// IInsertBuilder 构建 INSERT 语句
type IInsertBuilder interface {
	Columns(cols ...string) IInsertBuilder
	Values(vals ...any) IInsertBuilder
	Build() (query string, args []any)
	Exec(ctx context.Context) (sql.Result, error)
}

// IUpdateBuilder 构建 UPDATE 语句
type IUpdateBuilder interface {
	Set(column string, val any) IUpdateBuilder
	Where(cond string, args ...any) IUpdateBuilder
	Build() (query string, args []any)
	Exec(ctx context.Context) (sql.Result, error)
}

// IDeleteBuilder 构建 DELETE 语句
type IDeleteBuilder interface {
	Where(cond string, args ...any) IDeleteBuilder
	Build() (query string, args []any)
	Exec(ctx context.Context) (sql.Result, error)
}

type sqlImpl struct {
	db      core.IDatabase
	dialect dialect.Dialect
}

// New 创建 ISql，方言取自 db
func New(db core.IDatabase) ISql {
	return &sqlImpl{db: db, dialect: dialect.New(db.DialectName())}
}

func (s *sqlImpl) Select(columns ...string) ISelectBuilder {
	if len(columns) == 0 {
		columns = []string{"*"}
	}
	return &selectBuilder{db: s.db, dialect: s.dialect, cols: columns}
}

func (s *sqlImpl) InsertInto(table string) IInsertBuilder {
	return &insertBuilder{db: s.db, dialect: s.dialect, table: table}
}

func (s *sqlImpl) Update(table string) IUpdateBuilder {
	return &updateBuilder{db: s.db, dialect: s.dialect, table: table}
}

func (s *sqlImpl) DeleteFrom(table string) IDeleteBuilder {
	return &deleteBuilder{db: s.db, dialect: s.dialect, table: table}
}
