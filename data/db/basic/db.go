// Package basic 基于 database/sql 的 IDatabase 实现，内置 sqlite 与 postgres 驱动
package basic

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	core "snaptrail/data/db"
	"snaptrail/data/db/dialect"
)

// DB 对 *sql.DB 的最小封装
type DB struct {
	db      *sql.DB
	dialect dialect.Dialect
}

// Open 按配置打开数据库并做一次连通性检查
func Open(ctx context.Context, config core.Config) (*DB, error) {
	d := dialect.New(config.Driver)
	if config.Driver == "" {
		d = dialect.New("sqlite")
	}
	driver := d.DriverName()
	if driver == "" {
		return nil, fmt.Errorf("unsupported database driver %q", config.Driver)
	}

	db, err := sql.Open(driver, config.DSN)
	if err != nil {
		return nil, err
	}

	// sqlite 单写者，多连接只会带来 database is locked
	if d.Name() == dialect.NameSQLite {
		db.SetMaxOpenConns(1)
	} else if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{db: db, dialect: d}, nil
}

func (d *DB) Query(ctx context.Context, query string, args ...any) (core.IRows, error) {
	rows, err := d.db.QueryContext(ctx, d.dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return &Rows{rows: rows}, nil
}

func (d *DB) QueryRow(ctx context.Context, query string, args ...any) core.IRow {
	return &Row{row: d.db.QueryRowContext(ctx, d.dialect.Rebind(query), args...)}
}

func (d *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.db.ExecContext(ctx, d.dialect.Rebind(query), args...)
}

func (d *DB) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }
func (d *DB) Close() error                   { return d.db.Close() }
func (d *DB) DialectName() string            { return string(d.dialect.Name()) }
func (d *DB) SQLDB() *sql.DB                 { return d.db }
