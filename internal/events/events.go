// Package events carries typed progress events from the job runner to
// whoever wants to observe a run, without coupling the runner to its
// observers. Events are emitted at most once per pipeline checkpoint, in
// order.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ProgressEvent reports one completed step of a running execution.
type ProgressEvent struct {
	// ID is a unique identifier for this event.
	ID uuid.UUID `json:"id"`

	// ExecutionID identifies the run this event belongs to.
	ExecutionID uuid.UUID `json:"execution_id"`

	// Current and Total position the event within the run: unit Current of
	// Total just passed the named stage.
	Current int `json:"current"`
	Total   int `json:"total"`

	// Stage names the pipeline step that completed.
	Stage string `json:"stage"`

	// Message is an optional human-readable detail.
	Message string `json:"message,omitempty"`

	// CreatedAt is the timestamp when the event was created.
	CreatedAt time.Time `json:"created_at"`
}

// NewProgressEvent creates a ProgressEvent for one completed stage.
func NewProgressEvent(executionID uuid.UUID, current, total int, stage, message string) *ProgressEvent {
	return &ProgressEvent{
		ID:          uuid.New(),
		ExecutionID: executionID,
		Current:     current,
		Total:       total,
		Stage:       stage,
		Message:     message,
		CreatedAt:   time.Now().UTC(),
	}
}

// Handler processes progress events.
type Handler interface {
	// HandleEvent processes the given event within the provided context.
	HandleEvent(ctx context.Context, event *ProgressEvent) error
}

// Emitter publishes progress events to registered handlers.
type Emitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *ProgressEvent) error
}
