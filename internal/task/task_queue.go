package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// MemoryQueue is an in-process Queue with bounded capacity.
type MemoryQueue struct {
	mu       sync.Mutex
	ids      []uuid.UUID
	reserved int
	capacity int
	closed   bool
	notify   chan struct{}
	done     chan struct{}
	logger   *slog.Logger
}

// NewMemoryQueue creates a queue holding at most capacity IDs (plus any
// requeued ones).
func NewMemoryQueue(capacity int, logger *slog.Logger) *MemoryQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryQueue{
		capacity: capacity,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
		logger:   logger.With("component", "memory_queue"),
	}
}

var _ Queue = (*MemoryQueue)(nil)

// Reserve claims a slot of capacity.
func (q *MemoryQueue) Reserve(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if len(q.ids)+q.reserved >= q.capacity {
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, q.capacity)
	}
	q.reserved++
	return nil
}

// Commit enqueues id into a reserved slot.
func (q *MemoryQueue) Commit(ctx context.Context, id uuid.UUID) error {
	q.mu.Lock()
	if q.reserved > 0 {
		q.reserved--
	}
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.push(id)
	q.mu.Unlock()
	return nil
}

// Release returns a reserved slot.
func (q *MemoryQueue) Release(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.reserved > 0 {
		q.reserved--
	}
	return nil
}

// Requeue enqueues id without checking capacity.
func (q *MemoryQueue) Requeue(ctx context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.push(id)
	return nil
}

// push appends id and wakes one consumer. Callers hold q.mu.
func (q *MemoryQueue) push(id uuid.UUID) {
	q.ids = append(q.ids, id)
	q.logger.Debug("task enqueued",
		"task_id", id,
		"queue_len", len(q.ids),
		"queue_cap", q.capacity)
	q.signal()
}

func (q *MemoryQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Dequeue blocks until an ID is available.
func (q *MemoryQueue) Dequeue(ctx context.Context) (uuid.UUID, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return uuid.Nil, ErrQueueClosed
		}
		if len(q.ids) > 0 {
			id := q.ids[0]
			q.ids[0] = uuid.Nil
			q.ids = q.ids[1:]
			if len(q.ids) > 0 {
				q.signal()
			}
			q.mu.Unlock()
			return id, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return uuid.Nil, ctx.Err()
		case <-q.done:
			return uuid.Nil, ErrQueueClosed
		case <-q.notify:
		}
	}
}

// Len returns the number of queued IDs.
func (q *MemoryQueue) Len(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids), nil
}

// Close closes the task queue, preventing further task submission.
// Queued IDs are dropped; their tasks stay pending in the store and are
// picked up again at the next startup.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
		q.logger.Info("task queue closed", "dropped", len(q.ids))
	}
	return nil
}
