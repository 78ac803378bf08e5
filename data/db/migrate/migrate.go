// Package migrate 用 golang-migrate 执行内嵌的版本化迁移脚本
package migrate

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	core "snaptrail/data/db"
	"snaptrail/data/db/dialect"
)

// Up 把 fsys 中 dir 目录下的迁移执行到最新版本。
// 每个存储使用独立的版本表，多个存储可以共用同一个库。
// 不关闭 migrate 实例：它持有的是调用方的连接。
func Up(db core.IDatabase, fsys fs.FS, dir, versionTable string) error {
	provider, ok := db.(core.ISQLProvider)
	if !ok {
		return fmt.Errorf("migrate: database does not expose *sql.DB")
	}

	source, err := iofs.New(fsys, dir)
	if err != nil {
		return fmt.Errorf("migrate: open source: %w", err)
	}

	var (
		driver database.Driver
		name   string
	)
	switch dialect.New(db.DialectName()).Name() {
	case dialect.NameSQLite:
		name = "sqlite"
		driver, err = sqlitemigrate.WithInstance(provider.SQLDB(), &sqlitemigrate.Config{MigrationsTable: versionTable})
	case dialect.NamePostgres:
		name = "pgx5"
		driver, err = pgxmigrate.WithInstance(provider.SQLDB(), &pgxmigrate.Config{MigrationsTable: versionTable})
	default:
		return fmt.Errorf("migrate: unsupported dialect %q", db.DialectName())
	}
	if err != nil {
		return fmt.Errorf("migrate: init driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, name, driver)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate: up: %w", err)
	}
	return nil
}
