// Package maintenance holds the startup and operator-facing machinery that
// runs outside the job pipeline's hot path: schema migrations and
// point-in-time backups of the sqlite store.
package maintenance

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrator applies the embedded, ordered schema migrations. Goose tracks the
// current version in the goose_db_version table and applies each pending
// step in its own transaction, advancing the marker only after the step
// commits, so a failed step never leaves a partially migrated store.
type Migrator struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewMigrator creates a Migrator for the given database.
func NewMigrator(db *sql.DB, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{db: db, logger: logger.With("component", "migrator")}
}

// Up applies every pending migration in order. Re-running with no pending
// steps is a no-op. Any failure is a startup blocker for the caller.
func (m *Migrator) Up(ctx context.Context) error {
	goose.SetLogger(&gooseSlogAdapter{logger: m.logger})
	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	start := time.Now()

	before, err := goose.GetDBVersionContext(ctx, m.db)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if err := goose.UpContext(ctx, m.db, "migrations"); err != nil {
		m.logger.Error("migration failed",
			"from_version", before,
			"error", err)
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	after, err := goose.GetDBVersionContext(ctx, m.db)
	if err != nil {
		return fmt.Errorf("failed to read schema version after migrating: %w", err)
	}

	m.logger.Info("migrations applied",
		"from_version", before,
		"to_version", after,
		"duration_ms", time.Since(start).Milliseconds())

	return nil
}

// Version returns the current schema version marker.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	if err := goose.SetDialect("sqlite3"); err != nil {
		return 0, fmt.Errorf("failed to set migration dialect: %w", err)
	}
	return goose.GetDBVersionContext(ctx, m.db)
}

// gooseSlogAdapter routes goose's log output into slog.
type gooseSlogAdapter struct {
	logger *slog.Logger
}

func (a *gooseSlogAdapter) Fatalf(format string, v ...any) {
	a.logger.Error(fmt.Sprintf(format, v...))
}

func (a *gooseSlogAdapter) Printf(format string, v ...any) {
	a.logger.Info(fmt.Sprintf(format, v...))
}
