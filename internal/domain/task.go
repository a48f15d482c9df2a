package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current state of a task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusActive    TaskStatus = "active"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCanceled  TaskStatus = "canceled"
)

// Task type discriminators
const (
	TaskTypeFetchComments  = "fetch_comments"
	TaskTypeAnalyzeComment = "analyze_comment"
	TaskTypeBulkCollect    = "bulk_collect"
)

// transitions lists, for every status, the statuses reachable from it.
// active -> pending is used between retry attempts and by stale reconciliation.
var transitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending: {TaskStatusActive, TaskStatusCanceled},
	TaskStatusActive: {
		TaskStatusCompleted,
		TaskStatusFailed,
		TaskStatusCanceled,
		TaskStatusPending,
	},
	TaskStatusCompleted: nil,
	TaskStatusFailed:    nil,
	TaskStatusCanceled:  nil,
}

// AllTaskStatuses returns every status in lifecycle order.
func AllTaskStatuses() []TaskStatus {
	return []TaskStatus{
		TaskStatusPending,
		TaskStatusActive,
		TaskStatusCompleted,
		TaskStatusFailed,
		TaskStatusCanceled,
	}
}

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCanceled
}

// CanTransition reports whether a task in status from may move to status to.
func CanTransition(from, to TaskStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PredecessorsOf returns the statuses from which to is reachable.
// Stores use it to build conditional updates.
func PredecessorsOf(to TaskStatus) []TaskStatus {
	var from []TaskStatus
	for _, s := range AllTaskStatuses() {
		if CanTransition(s, to) {
			from = append(from, s)
		}
	}
	return from
}

// ParseTaskStatus converts a string into a TaskStatus.
func ParseTaskStatus(s string) (TaskStatus, error) {
	status := TaskStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("%w: unknown task status %q", ErrValidation, s)
	}
	return status, nil
}

// Task is a unit of deferred work with durable status.
type Task struct {
	ID        uuid.UUID       `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Status    TaskStatus      `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Progress  json.RawMessage `json:"progress,omitempty"`
	Attempts  int             `json:"attempts"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewTask creates a pending task with a fresh identifier.
func NewTask(taskType string, payload json.RawMessage) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:        uuid.New(),
		Type:      taskType,
		Payload:   payload,
		Status:    TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so callers can't mutate stored state.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.Payload = cloneRaw(t.Payload)
	c.Result = cloneRaw(t.Result)
	c.Progress = cloneRaw(t.Progress)
	return &c
}

// Apply moves the task to the status described by u. It enforces the state
// machine and the result/error invariant: result only when completed, error
// only when failed, neither otherwise.
func (t *Task) Apply(u StatusUpdate, now time.Time) error {
	if !CanTransition(t.Status, u.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, u.Status)
	}

	n := u.Normalized()
	t.Result = n.Result
	t.Error = n.Error
	if u.Status == TaskStatusActive {
		t.Attempts++
	}

	t.Status = u.Status
	t.UpdatedAt = now
	return nil
}

// StatusUpdate describes a requested status transition.
type StatusUpdate struct {
	Status TaskStatus
	Result json.RawMessage
	Error  string
}

// Normalized returns the update with only the fields its target status keeps:
// a result (defaulting to {}) when completed, an error message (defaulting to
// "task failed") when failed, neither otherwise.
func (u StatusUpdate) Normalized() StatusUpdate {
	n := StatusUpdate{Status: u.Status}
	switch u.Status {
	case TaskStatusCompleted:
		n.Result = cloneRaw(u.Result)
		if len(n.Result) == 0 {
			n.Result = json.RawMessage(`{}`)
		}
	case TaskStatusFailed:
		n.Error = u.Error
		if n.Error == "" {
			n.Error = "task failed"
		}
	}
	return n
}

// TaskFilter narrows a task listing. Empty fields match everything.
type TaskFilter struct {
	Type   string
	Status TaskStatus
}

// Matches reports whether t satisfies the filter.
func (f TaskFilter) Matches(t *Task) bool {
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	return true
}

// TaskStats holds task counts per status.
type TaskStats struct {
	Pending   int `json:"pending"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Canceled  int `json:"canceled"`
}

// Add increments the counter for status by n.
func (s *TaskStats) Add(status TaskStatus, n int) {
	switch status {
	case TaskStatusPending:
		s.Pending += n
	case TaskStatusActive:
		s.Active += n
	case TaskStatusCompleted:
		s.Completed += n
	case TaskStatusFailed:
		s.Failed += n
	case TaskStatusCanceled:
		s.Canceled += n
	}
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	c := make(json.RawMessage, len(raw))
	copy(c, raw)
	return c
}
