package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/phrazzld/easel-api/internal/domain"
)

// ExecutionFilter narrows GetHistory-style listings.
type ExecutionFilter struct {
	// Status, when set, restricts results to executions in that status.
	Status *domain.ExecutionStatus
	// Limit caps the number of results; zero means no cap.
	Limit int
}

// ExecutionStatistics aggregates terminal outcomes across all executions.
type ExecutionStatistics struct {
	TotalJobs   int     `json:"total_jobs"`
	Completed   int     `json:"completed"`
	Failed      int     `json:"failed"`
	Stopped     int     `json:"stopped"`
	SuccessRate float64 `json:"success_rate"`
}

// ExecutionStore defines the persistence interface for job executions.
type ExecutionStore interface {
	// Create saves a new execution with its configuration snapshot.
	Create(ctx context.Context, exec *domain.JobExecution) error

	// GetByID retrieves an execution by its unique ID.
	// Returns ErrExecutionNotFound if it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.JobExecution, error)

	// Update saves changes to an existing execution (status, counters,
	// finish time). Returns ErrExecutionNotFound if it does not exist.
	Update(ctx context.Context, exec *domain.JobExecution) error

	// List returns executions matching the filter, most recent first.
	List(ctx context.Context, filter ExecutionFilter) ([]*domain.JobExecution, error)

	// CountNonTerminal returns the number of executions still in a
	// non-terminal status. Under the single-flight invariant this is 0 or 1;
	// anything else indicates an unclean shutdown to repair at startup.
	CountNonTerminal(ctx context.Context) (int, error)

	// Delete removes an execution and, through the schema's cascade rule,
	// its generated images. Returns ErrExecutionNotFound if it does not
	// exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// Statistics aggregates execution outcomes.
	Statistics(ctx context.Context) (*ExecutionStatistics, error)

	// WithTx returns a new store instance that uses the provided transaction.
	WithTx(tx *sql.Tx) ExecutionStore
}
