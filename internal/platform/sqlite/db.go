package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // sqlite driver
)

// Open opens (creating if needed) the sqlite database at path and applies
// the pragmas the application depends on: WAL for concurrent reads during
// the pipeline's write bursts, foreign keys for the execution→image cascade,
// and a busy timeout so maintenance operations queue instead of failing.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			if closeErr := db.Close(); closeErr != nil {
				return nil, fmt.Errorf("failed to apply %q: %w (also failed to close db: %v)", pragma, err, closeErr)
			}
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return db, nil
}
