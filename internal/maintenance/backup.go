package maintenance

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// restoreTables lists every application table in dependency order. The
// version marker table comes first so a restored store carries the schema
// version of its snapshot; startup migrations top it up if needed.
var restoreTables = []string{
	"goose_db_version",
	"job_configurations",
	"job_executions",
	"generated_images",
}

// BackupManager snapshots and restores the sqlite store. Snapshots are
// consistent point-in-time copies produced by VACUUM INTO; restore copies
// the snapshot's rows back over the live database through an attached
// connection so it works while the connection pool stays open. Neither
// operation runs during normal job execution.
type BackupManager struct {
	db     *sql.DB
	dir    string
	logger *slog.Logger
}

// NewBackupManager creates a BackupManager writing snapshots under dir.
func NewBackupManager(db *sql.DB, dir string, logger *slog.Logger) *BackupManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &BackupManager{db: db, dir: dir, logger: logger.With("component", "backup")}
}

// Snapshot writes a point-in-time copy of the store and returns its
// reference (the snapshot file name). A failed snapshot must block whatever
// destructive operation requested it, so any error here is returned as-is.
func (b *BackupManager) Snapshot(ctx context.Context) (string, error) {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	ref := fmt.Sprintf("easel-%s.db", time.Now().UTC().Format("20060102-150405"))
	path := filepath.Join(b.dir, ref)

	start := time.Now()
	if _, err := b.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return "", fmt.Errorf("failed to snapshot database: %w", err)
	}

	b.logger.Info("snapshot created",
		"ref", ref,
		"duration_ms", time.Since(start).Milliseconds())

	return ref, nil
}

// Restore replaces the store's contents with those of the referenced
// snapshot. A failed restore is fatal and requires manual intervention;
// the error says so explicitly.
func (b *BackupManager) Restore(ctx context.Context, ref string) error {
	// Refs are bare file names handed out by Snapshot; reject anything that
	// tries to escape the backup directory.
	if ref == "" || ref != filepath.Base(ref) || strings.HasPrefix(ref, ".") {
		return fmt.Errorf("invalid snapshot reference %q", ref)
	}

	path := filepath.Join(b.dir, ref)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("snapshot %q not found: %w", ref, err)
	}

	// ATTACH, the copy transaction, and DETACH must all happen on the same
	// pooled connection.
	conn, err := b.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("restore failed, manual intervention required: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, `ATTACH DATABASE ? AS snapshot`, path); err != nil {
		return fmt.Errorf("restore failed, manual intervention required: attach: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.WithoutCancel(ctx), `DETACH DATABASE snapshot`); err != nil {
			b.logger.Error("failed to detach snapshot database", "ref", ref, "error", err)
		}
	}()

	// Foreign keys stay off for the copy so table order inside the
	// transaction doesn't matter beyond determinism.
	if _, err := conn.ExecContext(ctx, `PRAGMA defer_foreign_keys = ON`); err != nil {
		return fmt.Errorf("restore failed, manual intervention required: %w", err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("restore failed, manual intervention required: begin: %w", err)
	}

	for _, table := range restoreTables {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, table)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("restore failed, manual intervention required: clear %s: %w", table, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s SELECT * FROM snapshot.%s`, table, table)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("restore failed, manual intervention required: copy %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("restore failed, manual intervention required: commit: %w", err)
	}

	b.logger.Info("snapshot restored", "ref", ref)
	return nil
}

// List returns the available snapshot references, newest first.
func (b *BackupManager) List() ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var refs []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".db") {
			continue
		}
		refs = append(refs, entry.Name())
	}

	// Names embed a UTC timestamp, so reverse lexical order is newest first.
	for i, j := 0, len(refs)-1; i < j; i, j = i+1, j-1 {
		refs[i], refs[j] = refs[j], refs[i]
	}

	return refs, nil
}
