package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/campaign-push/internal/config"
)

// Connect creates a pgxpool connection pool and verifies connectivity.
func Connect(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MaxConns = cfg.DBMaxConns
	poolCfg.MinConns = cfg.DBMinConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// Migrate applies every pending up-migration from sourceURL
// (e.g. file://migrations) and returns the resulting schema version.
func Migrate(sourceURL, databaseURL string) (uint, error) {
	return migrateWith(sourceURL, databaseURL, func(m *migrate.Migrate) error { return m.Up() })
}

// MigrateSteps moves the schema n migrations forward, or back when n is
// negative.
func MigrateSteps(sourceURL, databaseURL string, n int) (uint, error) {
	if n == 0 {
		return 0, fmt.Errorf("migration steps must be non-zero")
	}
	return migrateWith(sourceURL, databaseURL, func(m *migrate.Migrate) error { return m.Steps(n) })
}

func migrateWith(sourceURL, databaseURL string, apply func(*migrate.Migrate) error) (uint, error) {
	m, err := migrate.New(sourceURL, MigrationURL(databaseURL))
	if err != nil {
		return 0, fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := apply(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}

// MigrationURL rewrites a postgres connection string to the "pgx5://" scheme
// expected by golang-migrate's pgx/v5 driver.
func MigrationURL(databaseURL string) string {
	var rest string
	switch {
	case strings.HasPrefix(databaseURL, "postgresql://"):
		rest = databaseURL[len("postgresql://"):]
	case strings.HasPrefix(databaseURL, "postgres://"):
		rest = databaseURL[len("postgres://"):]
	default:
		rest = databaseURL
	}
	return "pgx5://" + rest
}
