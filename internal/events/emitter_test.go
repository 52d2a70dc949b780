package events

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	events []*ProgressEvent
	err    error
}

func (h *recordingHandler) HandleEvent(ctx context.Context, event *ProgressEvent) error {
	h.events = append(h.events, event)
	return h.err
}

func TestEmitEvent_DeliversInOrder(t *testing.T) {
	emitter := NewInMemoryEmitter(slog.Default())
	handler := &recordingHandler{}
	emitter.RegisterHandler(handler)

	execID := uuid.New()
	for i := 1; i <= 3; i++ {
		event := NewProgressEvent(execID, i, 3, "generation", "")
		require.NoError(t, emitter.EmitEvent(context.Background(), event))
	}

	require.Len(t, handler.events, 3)
	for i, event := range handler.events {
		assert.Equal(t, i+1, event.Current)
		assert.Equal(t, 3, event.Total)
		assert.Equal(t, execID, event.ExecutionID)
	}
}

func TestEmitEvent_NoHandlersIsNoop(t *testing.T) {
	emitter := NewInMemoryEmitter(slog.Default())
	event := NewProgressEvent(uuid.New(), 1, 1, "generation", "")
	assert.NoError(t, emitter.EmitEvent(context.Background(), event))
}

func TestEmitEvent_FailingHandlerDoesNotBlockOthers(t *testing.T) {
	emitter := NewInMemoryEmitter(slog.Default())

	failing := &recordingHandler{err: errors.New("handler down")}
	healthy := &recordingHandler{}
	emitter.RegisterHandler(failing)
	emitter.RegisterHandler(healthy)

	event := NewProgressEvent(uuid.New(), 1, 2, "quality_check", "")
	err := emitter.EmitEvent(context.Background(), event)

	require.Error(t, err)
	assert.Len(t, failing.events, 1)
	assert.Len(t, healthy.events, 1)
}
