package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/vkwatch/vkwatch-api/internal/domain"
)

// TaskStore defines the interface for durable task records.
// Implementations must make UpdateStatus atomic per task: of several
// concurrent claims (pending -> active) on the same id exactly one succeeds.
type TaskStore interface {
	// Create stores a new pending task and returns it with its assigned ID.
	// The payload is stored as-is and never inspected.
	Create(ctx context.Context, taskType string, payload json.RawMessage) (*domain.Task, error)

	// Get retrieves a task by ID.
	// Returns ErrTaskNotFound if the task does not exist.
	Get(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// UpdateStatus moves a task to a new status and returns the updated task.
	// Returns domain.ErrInvalidTransition if the status is not reachable from
	// the task's current one, including when a concurrent update got there first.
	UpdateStatus(ctx context.Context, id uuid.UUID, update domain.StatusUpdate) (*domain.Task, error)

	// SaveProgress stores a handler checkpoint for an active task and bumps its
	// updated_at. Returns domain.ErrInvalidTransition if the task is no longer active.
	SaveProgress(ctx context.Context, id uuid.UUID, progress json.RawMessage) error

	// List returns one page of tasks, newest first, and the total number of
	// tasks matching the filter. Page numbers start at 1.
	List(ctx context.Context, filter domain.TaskFilter, page, limit int) ([]*domain.Task, int, error)

	// Stats counts tasks per status.
	Stats(ctx context.Context) (domain.TaskStats, error)

	// ListPending returns the IDs of all pending tasks, oldest first.
	ListPending(ctx context.Context) ([]uuid.UUID, error)

	// RequeueStale moves active tasks not updated since olderThan back to
	// pending and returns the IDs this call moved. A task is returned by at
	// most one of several concurrent calls.
	RequeueStale(ctx context.Context, olderThan time.Time) ([]uuid.UUID, error)
}
