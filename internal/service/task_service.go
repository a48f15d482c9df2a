package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/vkwatch/vkwatch-api/internal/domain"
	"github.com/vkwatch/vkwatch-api/internal/store"
)

// Paging limits for task listings.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// TaskRunner is the part of the task runner the service drives.
type TaskRunner interface {
	Submit(ctx context.Context, taskType string, payload json.RawMessage) (*domain.Task, error)
	Cancel(ctx context.Context, id uuid.UUID) (*domain.Task, error)
}

// SubmissionValidator checks a task type and payload before anything is
// stored. task.Registry implements it.
type SubmissionValidator interface {
	Validate(taskType string, payload json.RawMessage) error
}

// ListTasksParams are the raw listing parameters of a request.
type ListTasksParams struct {
	Type   string
	Status string
	Page   int
	Limit  int
}

// TaskPage is one page of a task listing.
type TaskPage struct {
	Items []*domain.Task `json:"items"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

// TaskService provides the task status API operations.
type TaskService interface {
	// Enqueue validates and submits a task. It returns ErrValidation for an
	// unknown type or a rejected payload and ErrQueueFull when the queue has
	// no capacity, in which case no task is stored.
	Enqueue(ctx context.Context, taskType string, payload json.RawMessage) (*domain.Task, error)

	// Get returns a task or ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// List returns a page of tasks, newest first.
	List(ctx context.Context, params ListTasksParams) (*TaskPage, error)

	// Stats returns task counts per status.
	Stats(ctx context.Context) (domain.TaskStats, error)

	// Cancel cancels a pending or active task. It returns
	// ErrInvalidTransition for a task that already finished.
	Cancel(ctx context.Context, id uuid.UUID) (*domain.Task, error)
}

type taskServiceImpl struct {
	store     store.TaskStore
	runner    TaskRunner
	validator SubmissionValidator
	logger    *slog.Logger
}

// NewTaskService creates a TaskService.
func NewTaskService(
	s store.TaskStore,
	runner TaskRunner,
	validator SubmissionValidator,
	logger *slog.Logger,
) (TaskService, error) {
	if s == nil {
		return nil, errors.New("store cannot be nil")
	}
	if runner == nil {
		return nil, errors.New("runner cannot be nil")
	}
	if validator == nil {
		return nil, errors.New("validator cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &taskServiceImpl{
		store:     s,
		runner:    runner,
		validator: validator,
		logger:    logger.With("component", "task_service"),
	}, nil
}

func (s *taskServiceImpl) Enqueue(ctx context.Context, taskType string, payload json.RawMessage) (*domain.Task, error) {
	taskType = strings.TrimSpace(taskType)
	if taskType == "" {
		return nil, fmt.Errorf("%w: task type is required", domain.ErrValidation)
	}
	if len(payload) == 0 || string(payload) == "null" {
		return nil, fmt.Errorf("%w: payload is required", domain.ErrValidation)
	}
	if !json.Valid(payload) {
		return nil, fmt.Errorf("%w: payload is not valid JSON", domain.ErrValidation)
	}
	if err := s.validator.Validate(taskType, payload); err != nil {
		return nil, err
	}

	t, err := s.runner.Submit(ctx, taskType, payload)
	if err != nil {
		return nil, NewServiceError("enqueue", "failed to submit task", err)
	}

	s.logger.Info("task enqueued", "task_id", t.ID, "task_type", t.Type)
	return t, nil
}

func (s *taskServiceImpl) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return s.store.Get(ctx, id)
}

func (s *taskServiceImpl) List(ctx context.Context, params ListTasksParams) (*TaskPage, error) {
	filter := domain.TaskFilter{Type: strings.TrimSpace(params.Type)}
	if params.Status != "" {
		status, err := domain.ParseTaskStatus(params.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = status
	}

	page := params.Page
	if page < 1 {
		page = 1
	}
	limit := params.Limit
	switch {
	case limit <= 0:
		limit = DefaultPageLimit
	case limit > MaxPageLimit:
		limit = MaxPageLimit
	}

	items, total, err := s.store.List(ctx, filter, page, limit)
	if err != nil {
		return nil, NewServiceError("list_tasks", "failed to list tasks", err)
	}
	if items == nil {
		items = []*domain.Task{}
	}

	return &TaskPage{Items: items, Total: total, Page: page, Limit: limit}, nil
}

func (s *taskServiceImpl) Stats(ctx context.Context) (domain.TaskStats, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return domain.TaskStats{}, NewServiceError("task_stats", "failed to count tasks", err)
	}
	return stats, nil
}

func (s *taskServiceImpl) Cancel(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	t, err := s.runner.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("task canceled", "task_id", id, "task_type", t.Type)
	return t, nil
}
