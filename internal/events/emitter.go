package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// InMemoryEventEmitter fans task events out to in-process subscribers such as
// the metrics collector. Delivery is synchronous and in registration order,
// so subscribers must return quickly.
type InMemoryEventEmitter struct {
	mu       sync.RWMutex
	handlers []EventHandler
	logger   *slog.Logger
}

var _ EventEmitter = (*InMemoryEventEmitter)(nil)

// NewInMemoryEventEmitter creates an emitter with no subscribers.
func NewInMemoryEventEmitter(logger *slog.Logger) *InMemoryEventEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryEventEmitter{logger: logger.With("component", "event_emitter")}
}

// RegisterHandler subscribes handler to every subsequent event.
func (e *InMemoryEventEmitter) RegisterHandler(handler EventHandler) {
	e.mu.Lock()
	e.handlers = append(e.handlers, handler)
	n := len(e.handlers)
	e.mu.Unlock()

	e.logger.Debug("event subscriber registered", "subscribers", n)
}

// EmitEvent delivers event to every subscriber. A failing or panicking
// subscriber is logged and skipped; the joined errors are returned once all
// subscribers have run.
func (e *InMemoryEventEmitter) EmitEvent(ctx context.Context, event *TaskEvent) error {
	e.mu.RLock()
	handlers := e.handlers[:len(e.handlers):len(e.handlers)]
	e.mu.RUnlock()

	var errs []error
	for i, handler := range handlers {
		if err := deliver(ctx, handler, event); err != nil {
			e.logger.Error("event subscriber failed",
				"error", err,
				"subscriber", i,
				"event_kind", event.Kind,
				"task_id", event.TaskID)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func deliver(ctx context.Context, handler EventHandler, event *TaskEvent) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("event subscriber panicked: %v", p)
		}
	}()
	return handler.HandleEvent(ctx, event)
}
