// Package db 数据库抽象：屏蔽 sqlite 与 postgres 的差异，供各存储实现共用
package db

import (
	"context"
	"database/sql"
	"time"
)

// IDatabase 通用数据库接口，查询统一使用 ? 占位符，由实现按方言改写
type IDatabase interface {
	Query(ctx context.Context, query string, args ...any) (IRows, error)
	QueryRow(ctx context.Context, query string, args ...any) IRow
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)

	Ping(ctx context.Context) error
	Close() error

	// DialectName 底层方言名称，如 "sqlite"、"postgres"
	DialectName() string
}

// ISQLProvider 可选接口：暴露底层 *sql.DB，供迁移工具使用
type ISQLProvider interface {
	SQLDB() *sql.DB
}

// IRows 查询结果集
type IRows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Err() error
}

// IRow 单行结果
type IRow interface {
	Scan(dest ...any) error
	Err() error
}

// Config 数据库配置
type Config struct {
	Driver string // sqlite, postgres
	DSN    string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
