package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind names a lifecycle step of a task.
type Kind string

// Lifecycle steps reported by the worker pool.
const (
	KindSubmitted Kind = "submitted"
	KindClaimed   Kind = "claimed"
	KindRetrying  Kind = "retrying"
	KindCompleted Kind = "completed"
	KindFailed    Kind = "failed"
	KindCanceled  Kind = "canceled"
	KindRequeued  Kind = "requeued"
)

// TaskEvent describes one lifecycle step of a task.
type TaskEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	Kind     Kind      `json:"kind"`
	TaskID   uuid.UUID `json:"task_id"`
	TaskType string    `json:"task_type"`

	// Attempt is the 1-based attempt the event belongs to, 0 outside an attempt.
	Attempt int `json:"attempt,omitempty"`

	// Error holds the attempt's error message for retrying and failed events.
	Error string `json:"error,omitempty"`

	// Duration is how long the attempt ran, for terminal and retrying events.
	Duration time.Duration `json:"duration,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// NewTaskEvent creates a TaskEvent stamped with a fresh ID and the current time.
func NewTaskEvent(kind Kind, taskID uuid.UUID, taskType string) *TaskEvent {
	return &TaskEvent{
		ID:         uuid.New(),
		Kind:       kind,
		TaskID:     taskID,
		TaskType:   taskType,
		OccurredAt: time.Now().UTC(),
	}
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *TaskEvent) error
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ctx context.Context, event *TaskEvent) error

// HandleEvent calls f.
func (f EventHandlerFunc) HandleEvent(ctx context.Context, event *TaskEvent) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
// This allows the worker pool to publish events without knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *TaskEvent) error
}

// NopEmitter discards every event.
type NopEmitter struct{}

// EmitEvent does nothing.
func (NopEmitter) EmitEvent(context.Context, *TaskEvent) error { return nil }
