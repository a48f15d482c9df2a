package task

import (
	"context"

	"github.com/google/uuid"
	"github.com/vkwatch/vkwatch-api/internal/domain"
)

// Queue errors. They alias the domain sentinels so callers outside this
// package only need to check one error.
var (
	ErrQueueClosed = domain.ErrQueueClosed
	ErrQueueFull   = domain.ErrQueueFull
)

// Queue is a FIFO handoff of task IDs from producers to workers.
//
// Submission is two-phase so a full queue is detected before a task is
// stored: Reserve takes a slot, then either Commit fills it with the new ID or
// Release gives it back. Requeue bypasses capacity; it is used for tasks that
// already exist and must not be dropped.
type Queue interface {
	// Reserve claims one slot of capacity.
	// Returns ErrQueueFull when none is free and ErrQueueClosed after Close.
	Reserve(ctx context.Context) error

	// Commit enqueues id into a slot taken by Reserve.
	Commit(ctx context.Context, id uuid.UUID) error

	// Release returns a reserved slot unused.
	Release(ctx context.Context) error

	// Requeue enqueues id regardless of capacity.
	Requeue(ctx context.Context, id uuid.UUID) error

	// Dequeue blocks until an ID is available, ctx is done or the queue is
	// closed, in which case it returns ErrQueueClosed.
	Dequeue(ctx context.Context) (uuid.UUID, error)

	// Len returns the number of queued IDs.
	Len(ctx context.Context) (int, error)

	// Close stops intake and wakes blocked consumers.
	Close() error
}
