// Package database はユーザーディレクトリのPostgreSQL接続とスキーマ管理を提供する。
package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationResult はマイグレーション適用後のスキーマ状態。
type MigrationResult struct {
	Version uint // 適用済みの最新バージョン。未適用なら0
	Changed bool // 今回の実行で新たに適用したか
}

// NewMigrator はusersスキーマ用のmigrateインスタンスを生成する。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}

// RunMigrations は未適用のマイグレーションをすべて適用し、適用後のバージョンを返す。
// 途中で失敗しdirty状態になった場合はエラーを返す（手動でのforceが必要）。
func RunMigrations(databaseURL string) (MigrationResult, error) {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return MigrationResult{}, err
	}
	defer m.Close()

	changed := true
	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return MigrationResult{}, fmt.Errorf("failed to apply migrations: %w", err)
		}
		changed = false
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return MigrationResult{Changed: changed}, nil
	}
	if err != nil {
		return MigrationResult{}, fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return MigrationResult{}, fmt.Errorf("schema version %d is dirty", version)
	}
	return MigrationResult{Version: version, Changed: changed}, nil
}
