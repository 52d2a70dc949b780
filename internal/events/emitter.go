package events

import (
	"context"
	"log/slog"
	"sync"
)

// InMemoryEmitter dispatches events synchronously to handlers registered in
// memory. Synchronous dispatch keeps delivery ordered and at most once per
// event without any queueing machinery.
type InMemoryEmitter struct {
	handlers []Handler
	mu       sync.RWMutex
	logger   *slog.Logger
}

// NewInMemoryEmitter creates a new InMemoryEmitter.
func NewInMemoryEmitter(logger *slog.Logger) *InMemoryEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryEmitter{
		handlers: make([]Handler, 0),
		logger:   logger.With("component", "event_emitter"),
	}
}

// RegisterHandler adds a handler to receive future events.
func (e *InMemoryEmitter) RegisterHandler(handler Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, handler)
	e.logger.Debug("registered event handler", "handler_count", len(e.handlers))
}

// EmitEvent publishes the event to all registered handlers. A failing
// handler does not block delivery to the others; the first error is
// returned.
func (e *InMemoryEmitter) EmitEvent(ctx context.Context, event *ProgressEvent) error {
	e.mu.RLock()
	handlers := make([]Handler, len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.RUnlock()

	var firstErr error
	for i, handler := range handlers {
		if err := handler.HandleEvent(ctx, event); err != nil {
			e.logger.Error("handler failed to process event",
				"error", err,
				"handler_index", i,
				"event_id", event.ID,
				"execution_id", event.ExecutionID,
				"stage", event.Stage)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

// LogHandler logs every progress event. It is the default handler wired at
// startup so checkpoint progress is visible without a consumer.
type LogHandler struct {
	logger *slog.Logger
}

// NewLogHandler creates a LogHandler.
func NewLogHandler(logger *slog.Logger) *LogHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogHandler{logger: logger.With("component", "progress")}
}

// HandleEvent implements Handler.
func (h *LogHandler) HandleEvent(ctx context.Context, event *ProgressEvent) error {
	h.logger.Info("job progress",
		"execution_id", event.ExecutionID,
		"stage", event.Stage,
		"current", event.Current,
		"total", event.Total,
		"message", event.Message)
	return nil
}
