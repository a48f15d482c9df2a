package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/vkwatch/vkwatch-api/internal/domain"
	"github.com/vkwatch/vkwatch-api/internal/store"
)

// Job is the view of a claimed task a Handler works with.
type Job struct {
	task   *domain.Task
	store  store.TaskStore
	logger *slog.Logger
}

// NewJob wraps a claimed task. The runner creates jobs; it is exported for
// handler tests.
func NewJob(task *domain.Task, s store.TaskStore, logger *slog.Logger) *Job {
	return &Job{task: task, store: s, logger: logger}
}

// ID returns the task ID.
func (j *Job) ID() uuid.UUID { return j.task.ID }

// Type returns the task type.
func (j *Job) Type() string { return j.task.Type }

// Payload returns the raw task payload.
func (j *Job) Payload() json.RawMessage { return j.task.Payload }

// Attempt returns the 1-based attempt number.
func (j *Job) Attempt() int { return j.task.Attempts }

// Logger returns a logger scoped to the task.
func (j *Job) Logger() *slog.Logger { return j.logger }

// DecodePayload unmarshals the payload into v. Malformed payloads wrap
// domain.ErrValidation.
func (j *Job) DecodePayload(v any) error {
	if err := json.Unmarshal(j.task.Payload, v); err != nil {
		return fmt.Errorf("%w: malformed %s payload: %v", domain.ErrValidation, j.task.Type, err)
	}
	return nil
}

// DecodeProgress unmarshals the last saved checkpoint into v. It reports
// false when the task has no checkpoint yet.
func (j *Job) DecodeProgress(v any) (bool, error) {
	if len(j.task.Progress) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(j.task.Progress, v); err != nil {
		return false, fmt.Errorf("decode progress: %w", err)
	}
	return true, nil
}

// Checkpoint is where handlers observe cancellation. It returns the context
// error if ctx is done; otherwise it saves progress, which also refreshes the
// task's heartbeat. If the task stopped being active (canceled elsewhere, or
// requeued as stale) it returns an error wrapping domain.ErrCanceled.
func (j *Job) Checkpoint(ctx context.Context, progress any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}

	if err := j.store.SaveProgress(ctx, j.task.ID, raw); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return fmt.Errorf("%w: %w", domain.ErrCanceled, err)
		}
		return err
	}
	j.task.Progress = raw
	return nil
}
