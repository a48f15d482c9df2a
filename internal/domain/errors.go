package domain

import (
	"context"
	"errors"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a submission or payload fails validation.
	// It is never retried.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a requested task or comment does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when a status change is not reachable
	// from the task's current status. Losing a claim race surfaces as this error.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrStorage wraps failures of the persistence layer.
	ErrStorage = errors.New("storage error")

	// ErrUpstream wraps failures of the VK API, including rate-limit rejections.
	ErrUpstream = errors.New("upstream error")

	// ErrTimeout is returned when a handler exceeds its execution budget.
	ErrTimeout = errors.New("task execution timed out")

	// ErrUnknownTaskType is returned when no handler is registered for a task type.
	ErrUnknownTaskType = errors.New("unknown task type")

	// ErrQueueFull is returned when the task queue has no free capacity.
	ErrQueueFull = errors.New("task queue is full")

	// ErrQueueClosed is returned when the task queue no longer accepts work.
	ErrQueueClosed = errors.New("task queue is closed")

	// ErrCanceled is returned by handlers that stop because their task was canceled.
	ErrCanceled = errors.New("task canceled")
)

// IsTransient reports whether err is worth another attempt: storage failures,
// upstream failures and timeouts.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrUnknownTaskType) ||
		errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrStorage) ||
		errors.Is(err, ErrUpstream) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded)
}
