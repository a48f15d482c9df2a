package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vkwatch/vkwatch-api/internal/config"
	"github.com/vkwatch/vkwatch-api/internal/domain"
	"github.com/vkwatch/vkwatch-api/internal/ingest"
)

// Submitter schedules tasks.
type Submitter = ingest.Submitter

// ErrNoOwners is returned when a schedule is configured without owners.
var ErrNoOwners = errors.New("watch schedule has no owner ids")

// Watcher triggers bulk collection of the configured owners on a cron
// schedule.
type Watcher struct {
	cron      *cron.Cron
	schedule  cron.Schedule
	spec      string
	submitter Submitter
	payload   json.RawMessage
	logger    *slog.Logger

	// ctx bounds submissions made from cron callbacks; Stop cancels it.
	ctx    context.Context
	cancel context.CancelFunc
}

// New parses cfg.Schedule (five cron fields or a descriptor such as
// "@every 1h") and prepares the watcher. Nothing runs until Start.
func New(cfg config.WatchConfig, submitter Submitter, logger *slog.Logger) (*Watcher, error) {
	if len(cfg.OwnerIDs) == 0 {
		return nil, ErrNoOwners
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid watch schedule %q: %w", cfg.Schedule, err)
	}

	payload, err := json.Marshal(ingest.BulkCollectPayload{OwnerIDs: cfg.OwnerIDs, PostsPerOwner: cfg.PostsPerOwner})
	if err != nil {
		return nil, fmt.Errorf("failed to encode bulk_collect payload: %w", err)
	}
	if err := ingest.NewBulkCollectHandler(ingest.Deps{}).ValidatePayload(payload); err != nil {
		return nil, fmt.Errorf("invalid watch owners: %w", err)
	}

	logger = logger.With("component", "watch")
	w := &Watcher{
		schedule:  schedule,
		spec:      cfg.Schedule,
		submitter: submitter,
		payload:   payload,
		logger:    logger,
	}
	w.cron = cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.Recover(cronLogger{logger})),
	)
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.cron.Schedule(schedule, cron.FuncJob(w.run))
	return w, nil
}

// Start begins firing the schedule in the background.
func (w *Watcher) Start() {
	w.cron.Start()
	w.logger.Info("watch schedule started",
		"schedule", w.spec,
		"next_run", w.Next(time.Now()).Format(time.RFC3339))
}

// Stop halts the schedule and waits for a running trigger until ctx is done.
func (w *Watcher) Stop(ctx context.Context) {
	done := w.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		w.logger.Warn("watch trigger still running at shutdown")
	}
	w.cancel()
}

// Next returns the first activation after t.
func (w *Watcher) Next(t time.Time) time.Time {
	return w.schedule.Next(t)
}

// Trigger submits one bulk_collect task for the configured owners.
func (w *Watcher) Trigger(ctx context.Context) (*domain.Task, error) {
	t, err := w.submitter.Submit(ctx, domain.TaskTypeBulkCollect, w.payload)
	if err != nil {
		return nil, fmt.Errorf("failed to submit bulk_collect: %w", err)
	}
	return t, nil
}

func (w *Watcher) run() {
	t, err := w.Trigger(w.ctx)
	if err != nil {
		w.logger.Error("scheduled collection skipped", "error", err)
		return
	}
	w.logger.Info("scheduled collection submitted", "task_id", t.ID)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
