package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	// The in-memory database disappears with the connection, so keep a
	// single one alive for the whole test.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`)
	require.NoError(t, err)

	return db
}

func countItems(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&n))
	return n
}

func TestRunInTransaction_CommitsOnSuccess(t *testing.T) {
	db := newTestDB(t)

	err := RunInTransaction(context.Background(), db, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO items (name) VALUES (?)`, "one")
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, 1, countItems(t, db))
}

func TestRunInTransaction_RollsBackPartialWrites(t *testing.T) {
	db := newTestDB(t)
	boom := errors.New("boom")

	err := RunInTransaction(context.Background(), db, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO items (name) VALUES (?)`, "one"); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO items (name) VALUES (?)`, "two"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// No partial write may be observable after the rollback.
	assert.Equal(t, 0, countItems(t, db))
}

func TestRunInTransaction_RollsBackOnPanic(t *testing.T) {
	db := newTestDB(t)

	assert.Panics(t, func() {
		_ = RunInTransaction(context.Background(), db, func(ctx context.Context, tx *sql.Tx) error {
			_, _ = tx.ExecContext(ctx, `INSERT INTO items (name) VALUES (?)`, "one")
			panic("unexpected")
		})
	})

	assert.Equal(t, 0, countItems(t, db))
}

func TestRunInTransaction_RollsBackOnCancellation(t *testing.T) {
	db := newTestDB(t)

	ctx, cancel := context.WithCancel(context.Background())

	err := RunInTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO items (name) VALUES (?)`, "one"); err != nil {
			return err
		}
		cancel()
		return ctx.Err()
	})
	require.Error(t, err)

	assert.Equal(t, 0, countItems(t, db))
}
