package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vkwatch/vkwatch-api/internal/domain"
	"github.com/vkwatch/vkwatch-api/internal/platform/logger"
	"github.com/vkwatch/vkwatch-api/internal/store"
)

const taskColumns = `id, type, payload, status, result, error_message, progress, attempts, created_at, updated_at`

// PostgresTaskStore implements store.TaskStore using PostgreSQL.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
	now    func() time.Time
}

// NewPostgresTaskStore creates a new PostgresTaskStore.
// If logger is nil, the default logger is used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

var _ store.TaskStore = (*PostgresTaskStore)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		t        domain.Task
		status   string
		payload  []byte
		result   []byte
		progress []byte
		errMsg   sql.NullString
	)
	if err := row.Scan(
		&t.ID,
		&t.Type,
		&payload,
		&status,
		&result,
		&errMsg,
		&progress,
		&t.Attempts,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	t.Status = domain.TaskStatus(status)
	t.Payload = json.RawMessage(payload)
	if result != nil {
		t.Result = json.RawMessage(result)
	}
	if progress != nil {
		t.Progress = json.RawMessage(progress)
	}
	t.Error = errMsg.String
	return &t, nil
}

// nullJSON turns an empty raw message into SQL NULL.
func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

// Create inserts a new pending task.
func (s *PostgresTaskStore) Create(ctx context.Context, taskType string, payload json.RawMessage) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	t := domain.NewTask(taskType, payload)
	t.CreatedAt = s.now()
	t.UpdatedAt = t.CreatedAt
	if len(t.Payload) == 0 {
		t.Payload = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO tasks (id, type, payload, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		t.ID,
		t.Type,
		[]byte(t.Payload),
		string(t.Status),
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create task",
			slog.String("task_type", taskType),
			slog.String("error", err.Error()))
		return nil, MapError(err, "task", "create")
	}

	log.Debug("task created",
		slog.String("task_id", t.ID.String()),
		slog.String("task_type", taskType))
	return t, nil
}

// Get retrieves a task by ID.
func (s *PostgresTaskStore) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	t, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrTaskNotFound, id)
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get task",
			slog.String("task_id", id.String()),
			slog.String("error", err.Error()))
		return nil, MapError(err, "task", "get")
	}
	return t, nil
}

// placeholders renders $start..$start+n-1 as a comma-separated list.
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}

// UpdateStatus applies a transition with a single conditional UPDATE. The row
// only changes if its current status is a legal predecessor of the target, so
// of several concurrent claims exactly one matches.
func (s *PostgresTaskStore) UpdateStatus(ctx context.Context, id uuid.UUID, update domain.StatusUpdate) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	from := domain.PredecessorsOf(update.Status)
	if len(from) == 0 {
		return nil, fmt.Errorf("%w: no transition leads to %q", domain.ErrInvalidTransition, update.Status)
	}
	n := update.Normalized()

	var errMsg any
	if n.Error != "" {
		errMsg = n.Error
	}
	attemptsDelta := 0
	if update.Status == domain.TaskStatusActive {
		attemptsDelta = 1
	}

	args := []any{id, string(update.Status), nullJSON(n.Result), errMsg, attemptsDelta, s.now()}
	for _, st := range from {
		args = append(args, string(st))
	}

	query := fmt.Sprintf(`
		UPDATE tasks
		SET status = $2,
			result = $3,
			error_message = $4,
			attempts = attempts + $5,
			updated_at = GREATEST($6, updated_at + INTERVAL '1 microsecond')
		WHERE id = $1 AND status IN (%s)
		RETURNING %s
	`, placeholders(len(args)-len(from)+1, len(from)), taskColumns)

	t, err := scanTask(s.db.QueryRowContext(ctx, query, args...))
	if err == nil {
		log.Debug("task status updated",
			slog.String("task_id", id.String()),
			slog.String("status", string(update.Status)))
		return t, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		log.Error("failed to update task status",
			slog.String("task_id", id.String()),
			slog.String("status", string(update.Status)),
			slog.String("error", err.Error()))
		return nil, MapError(err, "task", "update_status")
	}

	// Nothing matched: either the task is gone or it is in a status the
	// target isn't reachable from.
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.Status, update.Status)
}

// SaveProgress stores a checkpoint, but only while the task is active.
func (s *PostgresTaskStore) SaveProgress(ctx context.Context, id uuid.UUID, progress json.RawMessage) error {
	query := `
		UPDATE tasks
		SET progress = $2, updated_at = GREATEST($3, updated_at + INTERVAL '1 microsecond')
		WHERE id = $1 AND status = 'active'
	`
	result, err := s.db.ExecContext(ctx, query, id, nullJSON(progress), s.now())
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to save task progress",
			slog.String("task_id", id.String()),
			slog.String("error", err.Error()))
		return MapError(err, "task", "save_progress")
	}

	notActive := fmt.Errorf("%w: task %s is not active", domain.ErrInvalidTransition, id)
	if err := CheckRowsAffected(result, notActive); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			if _, getErr := s.Get(ctx, id); getErr != nil {
				return getErr
			}
		}
		return err
	}
	return nil
}

// List returns one page of tasks, newest first, and the total match count.
func (s *PostgresTaskStore) List(
	ctx context.Context,
	filter domain.TaskFilter,
	page, limit int,
) ([]*domain.Task, int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	where := `WHERE ($1 = '' OR type = $1) AND ($2 = '' OR status = $2)`

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks `+where,
		filter.Type, string(filter.Status),
	).Scan(&total); err != nil {
		log.Error("failed to count tasks", slog.String("error", err.Error()))
		return nil, 0, MapError(err, "task", "list")
	}

	if page < 1 || limit < 1 {
		return []*domain.Task{}, total, nil
	}

	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + `
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`
	rows, err := s.db.QueryContext(ctx, query,
		filter.Type, string(filter.Status), limit, (page-1)*limit)
	if err != nil {
		log.Error("failed to list tasks", slog.String("error", err.Error()))
		return nil, 0, MapError(err, "task", "list")
	}
	defer func() { _ = rows.Close() }()

	tasks := make([]*domain.Task, 0, limit)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, MapError(err, "task", "list")
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, MapError(err, "task", "list")
	}
	return tasks, total, nil
}

// Stats counts tasks per status.
func (s *PostgresTaskStore) Stats(ctx context.Context) (domain.TaskStats, error) {
	var stats domain.TaskStats

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return stats, MapError(err, "task", "stats")
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return stats, MapError(err, "task", "stats")
		}
		stats.Add(domain.TaskStatus(status), count)
	}
	if err := rows.Err(); err != nil {
		return stats, MapError(err, "task", "stats")
	}
	return stats, nil
}

func (s *PostgresTaskStore) queryIDs(ctx context.Context, op, query string, args ...any) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err, "task", op)
	}
	defer func() { _ = rows.Close() }()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, MapError(err, "task", op)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err, "task", op)
	}
	return ids, nil
}

// ListPending returns pending task IDs, oldest first.
func (s *PostgresTaskStore) ListPending(ctx context.Context) ([]uuid.UUID, error) {
	return s.queryIDs(ctx, "list_pending",
		`SELECT id FROM tasks WHERE status = 'pending' ORDER BY created_at ASC`)
}

// RequeueStale moves stale active tasks back to pending in one statement.
// Concurrent callers re-check the WHERE clause under the row lock, so each
// task is returned by exactly one of them.
func (s *PostgresTaskStore) RequeueStale(ctx context.Context, olderThan time.Time) ([]uuid.UUID, error) {
	ids, err := s.queryIDs(ctx, "requeue_stale", `
		UPDATE tasks
		SET status = 'pending', result = NULL, error_message = NULL, updated_at = $2
		WHERE status = 'active' AND updated_at < $1
		RETURNING id
	`, olderThan, s.now())
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to requeue stale tasks",
			slog.String("error", err.Error()))
		return nil, err
	}
	return ids, nil
}
