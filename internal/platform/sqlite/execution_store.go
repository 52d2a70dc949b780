package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/phrazzld/easel-api/internal/domain"
	"github.com/phrazzld/easel-api/internal/platform/logger"
	"github.com/phrazzld/easel-api/internal/store"
)

// ExecutionStore implements store.ExecutionStore using sqlite.
type ExecutionStore struct {
	db store.DBTX
}

// NewExecutionStore creates a new ExecutionStore.
func NewExecutionStore(db store.DBTX) *ExecutionStore {
	return &ExecutionStore{db: db}
}

// WithTx returns a new store instance that uses the provided transaction.
func (s *ExecutionStore) WithTx(tx *sql.Tx) store.ExecutionStore {
	return NewExecutionStore(tx)
}

// Create saves a new execution with its configuration snapshot.
func (s *ExecutionStore) Create(ctx context.Context, exec *domain.JobExecution) error {
	log := logger.FromContext(ctx)

	if err := exec.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	snapshot, err := json.Marshal(exec.ConfigSnapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration snapshot: %w", err)
	}

	var parentID any
	if exec.ParentID != nil {
		parentID = exec.ParentID.String()
	}

	query := `
		INSERT INTO job_executions
			(id, label, status, started_at, finished_at, config_snapshot,
			 requested_count, succeeded_count, failed_count, parent_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		exec.ID.String(),
		exec.Label,
		exec.Status,
		exec.StartedAt,
		exec.FinishedAt,
		string(snapshot),
		exec.RequestedCount,
		exec.SucceededCount,
		exec.FailedCount,
		parentID,
	)
	if err != nil {
		log.Error("failed to create execution",
			"execution_id", exec.ID,
			"error", err)
		return store.NewStoreError("execution", "create", "failed to insert row", MapError(err))
	}

	return nil
}

// GetByID retrieves an execution by its unique ID.
func (s *ExecutionStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.JobExecution, error) {
	row := s.db.QueryRowContext(ctx, selectExecution+` WHERE id = ?`, id.String())

	exec, err := scanExecutionRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrExecutionNotFound
		}
		logger.FromContext(ctx).Error("failed to scan execution",
			"execution_id", id,
			"error", err)
		return nil, store.NewStoreError("execution", "get", "scan failed", MapError(err))
	}

	return exec, nil
}

// Update saves changes to an existing execution.
func (s *ExecutionStore) Update(ctx context.Context, exec *domain.JobExecution) error {
	log := logger.FromContext(ctx)

	snapshot, err := json.Marshal(exec.ConfigSnapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration snapshot: %w", err)
	}

	query := `
		UPDATE job_executions
		SET label = ?, status = ?, finished_at = ?, config_snapshot = ?,
			requested_count = ?, succeeded_count = ?, failed_count = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		exec.Label,
		exec.Status,
		exec.FinishedAt,
		string(snapshot),
		exec.RequestedCount,
		exec.SucceededCount,
		exec.FailedCount,
		exec.ID.String(),
	)
	if err != nil {
		log.Error("failed to update execution",
			"execution_id", exec.ID,
			"error", err)
		return store.NewStoreError("execution", "update", "failed to update row", MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return store.NewStoreError("execution", "update", "failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return store.ErrExecutionNotFound
	}

	return nil
}

// List returns executions matching the filter, most recent first.
func (s *ExecutionStore) List(ctx context.Context, filter store.ExecutionFilter) ([]*domain.JobExecution, error) {
	log := logger.FromContext(ctx)

	query := selectExecution
	var args []any

	if filter.Status != nil {
		query += ` WHERE status = ?`
		args = append(args, *filter.Status)
	}

	query += ` ORDER BY started_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query executions", "error", err)
		return nil, store.NewStoreError("execution", "list", "query failed", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var execs []*domain.JobExecution
	for rows.Next() {
		exec, err := scanExecutionRow(rows)
		if err != nil {
			log.Error("failed to scan execution row", "error", err)
			return nil, store.NewStoreError("execution", "list", "scan failed", err)
		}
		execs = append(execs, exec)
	}

	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("execution", "list", "row iteration failed", MapError(err))
	}

	return execs, nil
}

// CountNonTerminal returns the number of executions still in running status.
func (s *ExecutionStore) CountNonTerminal(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM job_executions WHERE status = ?`,
		domain.ExecutionStatusRunning,
	).Scan(&count)
	if err != nil {
		return 0, store.NewStoreError("execution", "count_non_terminal", "query failed", MapError(err))
	}
	return count, nil
}

// Delete removes an execution; the schema cascades to its images.
func (s *ExecutionStore) Delete(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContext(ctx)

	result, err := s.db.ExecContext(ctx, `DELETE FROM job_executions WHERE id = ?`, id.String())
	if err != nil {
		log.Error("failed to delete execution",
			"execution_id", id,
			"error", err)
		return store.NewStoreError("execution", "delete", "failed to delete row", MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return store.NewStoreError("execution", "delete", "failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return store.ErrExecutionNotFound
	}

	return nil
}

// Statistics aggregates execution outcomes.
func (s *ExecutionStore) Statistics(ctx context.Context) (*store.ExecutionStatistics, error) {
	log := logger.FromContext(ctx)

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM job_executions GROUP BY status`)
	if err != nil {
		log.Error("failed to query execution statistics", "error", err)
		return nil, store.NewStoreError("execution", "statistics", "query failed", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	stats := &store.ExecutionStatistics{}
	for rows.Next() {
		var status domain.ExecutionStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, store.NewStoreError("execution", "statistics", "scan failed", err)
		}

		stats.TotalJobs += count
		switch status {
		case domain.ExecutionStatusCompleted:
			stats.Completed = count
		case domain.ExecutionStatusFailed:
			stats.Failed = count
		case domain.ExecutionStatusStopped:
			stats.Stopped = count
		}
	}

	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("execution", "statistics", "row iteration failed", MapError(err))
	}

	if stats.TotalJobs > 0 {
		stats.SuccessRate = float64(stats.Completed) / float64(stats.TotalJobs)
	}

	return stats, nil
}

const selectExecution = `
	SELECT id, label, status, started_at, finished_at, config_snapshot,
		   requested_count, succeeded_count, failed_count, parent_id
	FROM job_executions`

func scanExecutionRow(row rowScanner) (*domain.JobExecution, error) {
	var (
		idStr     string
		snapshot  string
		parentStr sql.NullString
		exec      domain.JobExecution
	)

	if err := row.Scan(
		&idStr,
		&exec.Label,
		&exec.Status,
		&exec.StartedAt,
		&exec.FinishedAt,
		&snapshot,
		&exec.RequestedCount,
		&exec.SucceededCount,
		&exec.FailedCount,
		&parentStr,
	); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid execution id %q: %w", idStr, err)
	}
	exec.ID = id

	if parentStr.Valid {
		parentID, err := uuid.Parse(parentStr.String)
		if err != nil {
			return nil, fmt.Errorf("invalid parent execution id %q: %w", parentStr.String, err)
		}
		exec.ParentID = &parentID
	}

	if err := json.Unmarshal([]byte(snapshot), &exec.ConfigSnapshot); err != nil {
		return nil, fmt.Errorf("invalid configuration snapshot: %w", err)
	}

	return &exec, nil
}
