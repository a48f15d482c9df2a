package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/vkwatch/vkwatch-api/internal/config"
	"github.com/vkwatch/vkwatch-api/internal/domain"
	"github.com/vkwatch/vkwatch-api/internal/events"
	"github.com/vkwatch/vkwatch-api/internal/store"
)

// storeWriteTimeout bounds a single store write made outside a handler's
// context, such as recording an outcome after the handler was canceled.
const storeWriteTimeout = 10 * time.Second

// errShutdown is the cancellation cause of in-flight handlers when the runner
// stops before they finish.
var errShutdown = errors.New("runner shutting down")

// RunnerConfig holds configuration for the task runner.
type RunnerConfig struct {
	// WorkerCount determines how many concurrent workers process tasks
	WorkerCount int

	// Timeout bounds a single handler attempt
	Timeout time.Duration

	// MaxAttempts is the retry budget: total attempts before a transient
	// failure becomes final
	MaxAttempts int

	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration

	// StoreRetryAttempts bounds attempts of each store write made by a worker
	StoreRetryAttempts int

	// StaleAfter is how long a task may stay active without a heartbeat
	// before reconciliation moves it back to pending
	StaleAfter time.Duration

	// ReconcileInterval defines how often to check for stale tasks
	ReconcileInterval time.Duration

	// DrainTimeout is how long Stop lets in-flight tasks finish before
	// canceling them
	DrainTimeout time.Duration
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount:          5,
		Timeout:              60 * time.Second,
		MaxAttempts:          3,
		RetryInitialInterval: time.Second,
		RetryMaxInterval:     30 * time.Second,
		StoreRetryAttempts:   3,
		StaleAfter:           30 * time.Minute,
		ReconcileInterval:    5 * time.Minute,
		DrainTimeout:         30 * time.Second,
	}
}

// NewRunnerConfig converts the task configuration section.
func NewRunnerConfig(cfg config.TaskConfig) RunnerConfig {
	return RunnerConfig{
		WorkerCount:          cfg.WorkerCount,
		Timeout:              cfg.Timeout,
		MaxAttempts:          cfg.MaxAttempts,
		RetryInitialInterval: cfg.RetryInitialInterval,
		RetryMaxInterval:     cfg.RetryMaxInterval,
		StoreRetryAttempts:   cfg.StoreRetryAttempts,
		StaleAfter:           cfg.StaleAfter,
		ReconcileInterval:    cfg.ReconcileInterval,
		DrainTimeout:         cfg.DrainTimeout,
	}
}

// Runner owns the worker pool, the reconciliation loop and the cancel
// functions of in-flight tasks. It is constructed explicitly, started once
// and stopped once.
type Runner struct {
	store    store.TaskStore
	queue    Queue
	registry *Registry
	config   RunnerConfig
	logger   *slog.Logger
	emitter  events.EventEmitter
	now      func() time.Time

	pool *WorkerPool

	mu       sync.Mutex
	inflight map[uuid.UUID]context.CancelCauseFunc
	started  bool
	stopped  bool

	// intakeCancel stops dequeuing; runCancel cancels in-flight handlers.
	intakeCancel context.CancelFunc
	runCancel    context.CancelCauseFunc
}

// NewRunner creates a Runner. A nil emitter discards events.
func NewRunner(
	s store.TaskStore,
	q Queue,
	registry *Registry,
	cfg RunnerConfig,
	logger *slog.Logger,
	emitter events.EventEmitter,
) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.StoreRetryAttempts < 1 {
		cfg.StoreRetryAttempts = 1
	}
	logger = logger.With("component", "task_runner")

	return &Runner{
		store:    s,
		queue:    q,
		registry: registry,
		config:   cfg,
		logger:   logger,
		emitter:  emitter,
		now:      func() time.Time { return time.Now().UTC() },
		pool:     NewWorkerPool(cfg.WorkerCount, logger),
		inflight: make(map[uuid.UUID]context.CancelCauseFunc),
	}
}

// Submit stores a new pending task and enqueues it. A full queue returns
// ErrQueueFull before anything is stored.
func (r *Runner) Submit(ctx context.Context, taskType string, payload json.RawMessage) (*domain.Task, error) {
	if r.stopping() {
		return nil, ErrQueueClosed
	}

	if err := r.queue.Reserve(ctx); err != nil {
		return nil, err
	}

	t, err := r.store.Create(ctx, taskType, payload)
	if err != nil {
		if relErr := r.queue.Release(ctx); relErr != nil {
			r.logger.Error("failed to release queue reservation", "error", relErr)
		}
		return nil, fmt.Errorf("failed to save task: %w", err)
	}

	if err := r.queue.Commit(ctx, t.ID); err != nil {
		r.logger.Error("failed to enqueue stored task, canceling it",
			"task_id", t.ID,
			"task_type", taskType,
			"error", err)
		if _, cErr := r.updateStatus(ctx, t.ID, domain.StatusUpdate{Status: domain.TaskStatusCanceled}); cErr != nil {
			r.logger.Error("failed to cancel unenqueued task", "task_id", t.ID, "error", cErr)
		}
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	r.emit(ctx, events.NewTaskEvent(events.KindSubmitted, t.ID, t.Type))
	r.logger.Debug("task submitted", "task_id", t.ID, "task_type", taskType)
	return t, nil
}

// Start recovers pending tasks, then launches the workers and the
// reconciliation loop.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return errors.New("task runner already started")
	}
	r.started = true
	r.mu.Unlock()

	if err := r.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover tasks: %w", err)
	}

	intakeCtx, intakeCancel := context.WithCancel(context.Background())
	runCtx, runCancel := context.WithCancelCause(context.Background())

	r.mu.Lock()
	r.intakeCancel = intakeCancel
	r.runCancel = runCancel
	r.mu.Unlock()

	r.pool.Start(intakeCtx, func(ctx context.Context, workerID int) {
		r.worker(ctx, runCtx, workerID)
	})
	r.pool.Go(func() { r.reconcileLoop(intakeCtx) })

	return nil
}

// Stop stops intake, lets in-flight tasks finish for up to DrainTimeout,
// then cancels them and waits for the workers to exit. Canceled in-flight
// tasks are put back to pending.
func (r *Runner) Stop(ctx context.Context) {
	r.mu.Lock()
	if r.stopped || !r.started {
		r.stopped = true
		r.mu.Unlock()
		return
	}
	r.stopped = true
	intakeCancel, runCancel := r.intakeCancel, r.runCancel
	r.mu.Unlock()

	r.logger.Info("stopping task runner")
	intakeCancel()

	drainCtx, cancel := context.WithTimeout(ctx, r.config.DrainTimeout)
	drained := r.pool.Wait(drainCtx)
	cancel()

	if !drained {
		r.logger.Warn("drain timeout reached, canceling in-flight tasks")
		runCancel(errShutdown)
		r.pool.Wait(context.Background())
	}
	runCancel(errShutdown)

	if err := r.queue.Close(); err != nil {
		r.logger.Error("failed to close task queue", "error", err)
	}
	r.logger.Info("task runner stopped")
}

// Recover enqueues every pending task. It covers tasks created before a
// crash and tasks whose enqueue was lost. Duplicate queue entries are
// harmless: only one claim can succeed.
func (r *Runner) Recover(ctx context.Context) error {
	ids, err := r.store.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to get pending tasks: %w", err)
	}

	r.logger.Info("recovering unfinished tasks", "pending_count", len(ids))
	for _, id := range ids {
		if err := r.queue.Requeue(ctx, id); err != nil {
			return fmt.Errorf("failed to requeue pending task %s: %w", id, err)
		}
	}
	return nil
}

// Reconcile moves tasks stuck in active for longer than StaleAfter back to
// pending and requeues them. It returns the IDs it requeued.
func (r *Runner) Reconcile(ctx context.Context) ([]uuid.UUID, error) {
	ids, err := r.store.RequeueStale(ctx, r.now().Add(-r.config.StaleAfter))
	if err != nil {
		return nil, fmt.Errorf("failed to requeue stale tasks: %w", err)
	}

	for _, id := range ids {
		if err := r.queue.Requeue(ctx, id); err != nil {
			r.logger.Error("failed to enqueue stale task", "task_id", id, "error", err)
			continue
		}
		r.emit(ctx, events.NewTaskEvent(events.KindRequeued, id, ""))
		r.logger.Info("requeued stale task", "task_id", id)
	}
	return ids, nil
}

func (r *Runner) reconcileLoop(ctx context.Context) {
	ticker := time.NewTicker(r.config.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Reconcile(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("reconciliation failed", "error", err)
			}
		}
	}
}

// Cancel cancels a pending or active task. For an active task running in
// this process the handler context is canceled as well; handlers elsewhere
// notice at their next checkpoint.
func (r *Runner) Cancel(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	t, err := r.store.UpdateStatus(ctx, id, domain.StatusUpdate{Status: domain.TaskStatusCanceled})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	cancel, running := r.inflight[id]
	r.mu.Unlock()
	if running {
		cancel(domain.ErrCanceled)
	}

	r.emit(ctx, events.NewTaskEvent(events.KindCanceled, t.ID, t.Type))
	r.logger.Info("task canceled", "task_id", id, "was_running_here", running)
	return t, nil
}

// worker dequeues with intakeCtx and runs handlers under runCtx.
func (r *Runner) worker(intakeCtx, runCtx context.Context, workerID int) {
	for {
		id, err := r.queue.Dequeue(intakeCtx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) || intakeCtx.Err() != nil {
				return
			}
			r.logger.Error("failed to dequeue task", "worker_id", workerID, "error", err)
			if !sleepCtx(intakeCtx, r.config.RetryInitialInterval) {
				return
			}
			continue
		}
		r.process(runCtx, id, workerID)
	}
}

// outcome is how one attempt ended from the runner's point of view.
type outcome int

const (
	outcomeCompleted outcome = iota
	outcomeFailed
	outcomeRetry
	outcomeCanceled
	outcomeShutdown
)

// process claims a task and runs attempts until it reaches a terminal state,
// loses ownership or the runner shuts down.
func (r *Runner) process(ctx context.Context, id uuid.UUID, workerID int) {
	log := r.logger.With("task_id", id, "worker_id", workerID)
	bo := r.newRetryBackOff()

	for {
		t, err := r.claim(ctx, id)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrInvalidTransition):
				log.Debug("task not claimable, skipping", "reason", err)
			case errors.Is(err, domain.ErrNotFound):
				log.Warn("dequeued task does not exist")
			default:
				log.Error("failed to claim task", "error", err)
				r.requeueDetached(ctx, id, log)
			}
			return
		}

		log := log.With("task_type", t.Type, "attempt", t.Attempts)
		claimed := events.NewTaskEvent(events.KindClaimed, t.ID, t.Type)
		claimed.Attempt = t.Attempts
		r.emit(ctx, claimed)
		log.Info("processing task")

		start := time.Now()
		result, out, runErr := r.attempt(ctx, t, log)
		elapsed := time.Since(start)

		switch out {
		case outcomeCompleted:
			r.finish(ctx, t, domain.StatusUpdate{Status: domain.TaskStatusCompleted, Result: result},
				events.KindCompleted, "", elapsed, log)
			return

		case outcomeCanceled:
			log.Info("task canceled during execution", "reason", runErr)
			return

		case outcomeShutdown:
			log.Info("task interrupted by shutdown, returning it to pending")
			if _, err := r.updateStatus(ctx, t.ID, domain.StatusUpdate{Status: domain.TaskStatusPending}); err != nil {
				log.Error("failed to return interrupted task to pending", "error", err)
				return
			}
			r.requeueDetached(ctx, t.ID, log)
			return

		case outcomeRetry:
			if _, err := r.updateStatus(ctx, t.ID, domain.StatusUpdate{Status: domain.TaskStatusPending}); err != nil {
				if !errors.Is(err, domain.ErrInvalidTransition) {
					log.Error("failed to return task to pending for retry", "error", err)
				}
				return
			}
			retrying := events.NewTaskEvent(events.KindRetrying, t.ID, t.Type)
			retrying.Attempt = t.Attempts
			retrying.Error = runErr.Error()
			retrying.Duration = elapsed
			r.emit(ctx, retrying)

			if r.stopping() {
				r.requeueDetached(ctx, t.ID, log)
				return
			}

			wait := bo.NextBackOff()
			log.Warn("task attempt failed, retrying",
				"error", runErr,
				"max_attempts", r.config.MaxAttempts,
				"backoff", wait)
			if !sleepCtx(ctx, wait) {
				r.requeueDetached(ctx, t.ID, log)
				return
			}

		default:
			log.Error("task failed", "error", runErr)
			r.finish(ctx, t, domain.StatusUpdate{Status: domain.TaskStatusFailed, Error: runErr.Error()},
				events.KindFailed, runErr.Error(), elapsed, log)
			return
		}
	}
}

// attempt runs one handler invocation and classifies its outcome.
func (r *Runner) attempt(ctx context.Context, t *domain.Task, log *slog.Logger) (json.RawMessage, outcome, error) {
	h, err := r.registry.Lookup(t.Type)
	if err != nil {
		return nil, outcomeFailed, err
	}

	attemptCtx, cancelTimeout := context.WithTimeout(ctx, r.config.Timeout)
	defer cancelTimeout()
	handlerCtx, cancel := context.WithCancelCause(attemptCtx)
	defer cancel(nil)

	r.mu.Lock()
	r.inflight[t.ID] = cancel
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.inflight, t.ID)
		r.mu.Unlock()
	}()

	result, err := r.invoke(handlerCtx, h, NewJob(t, r.store, log))
	if err == nil {
		return result, outcomeCompleted, nil
	}

	cause := context.Cause(handlerCtx)
	switch {
	case errors.Is(cause, domain.ErrCanceled) || errors.Is(err, domain.ErrCanceled):
		return nil, outcomeCanceled, err
	case errors.Is(cause, errShutdown), errors.Is(err, ErrQueueClosed) && r.stopping():
		return nil, outcomeShutdown, err
	case errors.Is(attemptCtx.Err(), context.DeadlineExceeded):
		err = fmt.Errorf("%w after %s: %w", domain.ErrTimeout, r.config.Timeout, err)
	}

	if domain.IsTransient(err) && t.Attempts < r.config.MaxAttempts {
		return nil, outcomeRetry, err
	}
	return nil, outcomeFailed, err
}

// invoke calls the handler, converting a panic into an error.
func (r *Runner) invoke(ctx context.Context, h Handler, job *Job) (result json.RawMessage, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panicked: %v", p)
		}
	}()
	return h.Handle(ctx, job)
}

// finish records a terminal outcome. Losing to a concurrent cancel is not an
// error: the task already has its final status.
func (r *Runner) finish(
	ctx context.Context,
	t *domain.Task,
	update domain.StatusUpdate,
	kind events.Kind,
	errMsg string,
	elapsed time.Duration,
	log *slog.Logger,
) {
	if _, err := r.updateStatus(ctx, t.ID, update); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			log.Info("task outcome dropped, status changed concurrently", "outcome", update.Status)
			return
		}
		log.Error("failed to record task outcome", "outcome", update.Status, "error", err)
		return
	}

	e := events.NewTaskEvent(kind, t.ID, t.Type)
	e.Attempt = t.Attempts
	e.Error = errMsg
	e.Duration = elapsed
	r.emit(ctx, e)
	if kind == events.KindCompleted {
		log.Info("task completed successfully", "duration", elapsed)
	}
}

func (r *Runner) claim(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return r.updateStatus(ctx, id, domain.StatusUpdate{Status: domain.TaskStatusActive})
}

// updateStatus writes with store retries, detached from ctx cancellation so
// an outcome is still recorded while shutting down.
func (r *Runner) updateStatus(ctx context.Context, id uuid.UUID, update domain.StatusUpdate) (*domain.Task, error) {
	var t *domain.Task
	err := r.withStoreRetry(ctx, func(ctx context.Context) error {
		var err error
		t, err = r.store.UpdateStatus(ctx, id, update)
		return err
	})
	return t, err
}

// withStoreRetry runs op up to StoreRetryAttempts times while it fails with
// a storage error.
func (r *Runner) withStoreRetry(ctx context.Context, op func(ctx context.Context) error) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeWriteTimeout)
	defer cancel()

	b := backoff.WithContext(
		backoff.WithMaxRetries(r.newRetryBackOff(), uint64(r.config.StoreRetryAttempts-1)),
		writeCtx,
	)
	return backoff.Retry(func() error {
		err := op(writeCtx)
		if err != nil && !errors.Is(err, domain.ErrStorage) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}

func (r *Runner) newRetryBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.config.RetryInitialInterval
	b.MaxInterval = r.config.RetryMaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// requeueDetached puts id back on the queue on a best-effort basis.
func (r *Runner) requeueDetached(ctx context.Context, id uuid.UUID, log *slog.Logger) {
	qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeWriteTimeout)
	defer cancel()
	if err := r.queue.Requeue(qctx, id); err != nil && !errors.Is(err, ErrQueueClosed) {
		log.Error("failed to requeue task", "error", err)
	}
}

func (r *Runner) emit(ctx context.Context, e *events.TaskEvent) {
	if err := r.emitter.EmitEvent(ctx, e); err != nil {
		r.logger.Warn("failed to emit task event", "kind", e.Kind, "task_id", e.TaskID, "error", err)
	}
}

func (r *Runner) stopping() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// sleepCtx waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// InFlight returns the number of handlers currently running in this process.
func (r *Runner) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight)
}
