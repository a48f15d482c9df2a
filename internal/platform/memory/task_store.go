package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vkwatch/vkwatch-api/internal/domain"
	"github.com/vkwatch/vkwatch-api/internal/store"
)

type taskEntry struct {
	mu   sync.Mutex
	task *domain.Task
}

// TaskStore implements store.TaskStore in memory.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*taskEntry
	now   func() time.Time
}

// NewTaskStore creates an empty TaskStore.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks: make(map[uuid.UUID]*taskEntry),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new pending task.
func (s *TaskStore) Create(ctx context.Context, taskType string, payload json.RawMessage) (*domain.Task, error) {
	t := domain.NewTask(taskType, payload)
	t.CreatedAt = s.now()
	t.UpdatedAt = t.CreatedAt
	entry := &taskEntry{task: t.Clone()}

	s.mu.Lock()
	s.tasks[t.ID] = entry
	s.mu.Unlock()

	return t, nil
}

func (s *TaskStore) entry(id uuid.UUID) (*taskEntry, error) {
	s.mu.RLock()
	e, ok := s.tasks[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrTaskNotFound, id)
	}
	return e, nil
}

// Get retrieves a task by ID.
func (s *TaskStore) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.task.Clone(), nil
}

// UpdateStatus applies a transition under the task's own lock.
func (s *TaskStore) UpdateStatus(ctx context.Context, id uuid.UUID, update domain.StatusUpdate) (*domain.Task, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.task.Apply(update, s.advance(e.task.UpdatedAt)); err != nil {
		return nil, err
	}
	return e.task.Clone(), nil
}

// SaveProgress stores a checkpoint for an active task.
func (s *TaskStore) SaveProgress(ctx context.Context, id uuid.UUID, progress json.RawMessage) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.task.Status != domain.TaskStatusActive {
		return fmt.Errorf("%w: cannot checkpoint %s task", domain.ErrInvalidTransition, e.task.Status)
	}
	e.task.Progress = append(json.RawMessage(nil), progress...)
	e.task.UpdatedAt = s.advance(e.task.UpdatedAt)
	return nil
}

// snapshot copies every task; callers filter and sort the copies.
func (s *TaskStore) snapshot() []*domain.Task {
	s.mu.RLock()
	entries := make([]*taskEntry, 0, len(s.tasks))
	for _, e := range s.tasks {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	tasks := make([]*domain.Task, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		tasks = append(tasks, e.task.Clone())
		e.mu.Unlock()
	}
	return tasks
}

// List returns one page of tasks, newest first.
func (s *TaskStore) List(ctx context.Context, filter domain.TaskFilter, page, limit int) ([]*domain.Task, int, error) {
	var matched []*domain.Task
	for _, t := range s.snapshot() {
		if filter.Matches(t) {
			matched = append(matched, t)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() > matched[j].ID.String()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := (page - 1) * limit
	if page < 1 || limit < 1 || start >= total {
		return []*domain.Task{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// Stats counts tasks per status.
func (s *TaskStore) Stats(ctx context.Context) (domain.TaskStats, error) {
	var stats domain.TaskStats
	for _, t := range s.snapshot() {
		stats.Add(t.Status, 1)
	}
	return stats, nil
}

// ListPending returns pending task IDs, oldest first.
func (s *TaskStore) ListPending(ctx context.Context) ([]uuid.UUID, error) {
	var pending []*domain.Task
	for _, t := range s.snapshot() {
		if t.Status == domain.TaskStatusPending {
			pending = append(pending, t)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	ids := make([]uuid.UUID, len(pending))
	for i, t := range pending {
		ids[i] = t.ID
	}
	return ids, nil
}

// RequeueStale moves stale active tasks back to pending. The check and the
// transition happen under the task lock, so each task is returned once.
func (s *TaskStore) RequeueStale(ctx context.Context, olderThan time.Time) ([]uuid.UUID, error) {
	s.mu.RLock()
	entries := make([]*taskEntry, 0, len(s.tasks))
	for _, e := range s.tasks {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var ids []uuid.UUID
	for _, e := range entries {
		e.mu.Lock()
		if e.task.Status == domain.TaskStatusActive && e.task.UpdatedAt.Before(olderThan) {
			if err := e.task.Apply(domain.StatusUpdate{Status: domain.TaskStatusPending}, s.advance(e.task.UpdatedAt)); err == nil {
				ids = append(ids, e.task.ID)
			}
		}
		e.mu.Unlock()
	}
	return ids, nil
}

// advance returns the current time, nudged forward if the clock has not moved
// since prev, so updated_at strictly increases on every change.
func (s *TaskStore) advance(prev time.Time) time.Time {
	now := s.now()
	if !now.After(prev) {
		now = prev.Add(time.Microsecond)
	}
	return now
}

var _ store.TaskStore = (*TaskStore)(nil)
