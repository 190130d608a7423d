package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// newMigrator builds a golang-migrate instance over the embedded migrations. Only the
// Postgres backend is versioned; SQLite databases use the embedded schema in Migrate.
func newMigrator(d *DB) (*migrate.Migrate, error) {
	if d.Dialect != Postgres {
		return nil, fmt.Errorf("versioned migrations require postgres, have %s", d.Dialect)
	}
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	driver, err := postgres.WithInstance(d.DB, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// RunMigrations brings the schema up to date. Postgres runs the versioned migrations and
// falls back to the embedded idempotent schema if they fail; SQLite always uses the latter.
func RunMigrations(ctx context.Context, d *DB) error {
	if d.Dialect != Postgres {
		return Migrate(ctx, d)
	}
	m, err := newMigrator(d)
	if err == nil {
		err = up(m)
	}
	if err != nil {
		slog.Warn("versioned migrations failed, applying embedded schema", slog.Any("err", err), slog.String("component", "db_migrate"))
		return Migrate(ctx, d)
	}
	return nil
}

func up(m *migrate.Migrate) error {
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("database schema is up to date", slog.String("component", "db_migrate"))
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	version, dirty, err := m.Version()
	if err != nil {
		slog.Warn("could not determine migration version", slog.Any("err", err), slog.String("component", "db_migrate"))
		return nil
	}
	if dirty {
		return fmt.Errorf("database is in dirty state at version %d - manual intervention required", version)
	}
	slog.Info("migrations applied successfully", slog.Uint64("version", uint64(version)), slog.String("component", "db_migrate"))
	return nil
}

// MigrateDown rolls back the most recent migration. Data in dropped tables is lost.
func MigrateDown(d *DB) error {
	m, err := newMigrator(d)
	if err != nil {
		return err
	}
	if err := m.Steps(-1); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	return nil
}

// MigrationVersion reports the applied version and dirty flag (0,false when none ran).
func MigrationVersion(d *DB) (uint, bool, error) {
	m, err := newMigrator(d)
	if err != nil {
		return 0, false, err
	}
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}
