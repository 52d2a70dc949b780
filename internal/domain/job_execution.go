package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus represents the persisted state of a job execution.
// In-memory orchestration states (starting, stopping) are not persisted;
// the store only ever sees running and the terminal states.
type ExecutionStatus string

// Possible execution status values
const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusStopped   ExecutionStatus = "stopped"
)

// Common validation errors for JobExecution
var (
	ErrEmptyExecutionID       = errors.New("execution ID cannot be empty")
	ErrMissingConfigSnapshot  = errors.New("execution requires a configuration snapshot")
	ErrInvalidExecutionStatus = errors.New("invalid execution status")
	ErrExecutionNotTerminal   = errors.New("execution is not in a terminal status")
)

// JobExecution is one run of the pipeline. It records a snapshot of the
// configuration it ran with so reruns are reproducible even if the named
// configuration later changes, and an optional parent reference when the
// execution is a rerun.
type JobExecution struct {
	ID         uuid.UUID       `json:"id"`
	Label      string          `json:"label,omitempty"`
	Status     ExecutionStatus `json:"status"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`

	// ConfigSnapshot is the configuration as of the moment the run started.
	ConfigSnapshot JobConfiguration `json:"config_snapshot"`

	RequestedCount int `json:"requested_count"`
	SucceededCount int `json:"succeeded_count"`
	FailedCount    int `json:"failed_count"`

	// ParentID is set when this execution is a rerun of another.
	ParentID *uuid.UUID `json:"parent_id,omitempty"`
}

// NewJobExecution creates an execution in running status for the given
// configuration snapshot. The snapshot is deep-copied so later edits to the
// source configuration cannot leak into history.
func NewJobExecution(snapshot *JobConfiguration, label string, parentID *uuid.UUID) (*JobExecution, error) {
	if snapshot == nil {
		return nil, ErrMissingConfigSnapshot
	}

	exec := &JobExecution{
		ID:             uuid.New(),
		Label:          label,
		Status:         ExecutionStatusRunning,
		StartedAt:      time.Now().UTC(),
		ConfigSnapshot: *snapshot.Clone(),
		RequestedCount: snapshot.VariationCount,
		ParentID:       parentID,
	}

	if err := exec.Validate(); err != nil {
		return nil, err
	}

	return exec, nil
}

// Validate checks if the JobExecution has valid data.
func (e *JobExecution) Validate() error {
	if e.ID == uuid.Nil {
		return ErrEmptyExecutionID
	}

	if !isValidExecutionStatus(e.Status) {
		return ErrInvalidExecutionStatus
	}

	return e.ConfigSnapshot.Validate()
}

// IsTerminal reports whether the execution has reached a final status.
func (e *JobExecution) IsTerminal() bool {
	switch e.Status {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusStopped:
		return true
	default:
		return false
	}
}

// Finish marks the execution terminal with the given status and stamps the
// finish time. Returns an error if the status is not terminal.
func (e *JobExecution) Finish(status ExecutionStatus) error {
	switch status {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusStopped:
	default:
		return ErrExecutionNotTerminal
	}

	now := time.Now().UTC()
	e.Status = status
	e.FinishedAt = &now
	return nil
}

// RecordSuccess increments the succeeded counter.
func (e *JobExecution) RecordSuccess() {
	e.SucceededCount++
}

// RecordFailure increments the failed counter.
func (e *JobExecution) RecordFailure() {
	e.FailedCount++
}

// isValidExecutionStatus checks if the given status is a valid ExecutionStatus.
func isValidExecutionStatus(status ExecutionStatus) bool {
	switch status {
	case ExecutionStatusRunning, ExecutionStatusCompleted,
		ExecutionStatusFailed, ExecutionStatusStopped:
		return true
	default:
		return false
	}
}
