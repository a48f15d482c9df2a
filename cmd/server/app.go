package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/vkwatch/vkwatch-api/internal/analysis"
	"github.com/vkwatch/vkwatch-api/internal/config"
	"github.com/vkwatch/vkwatch-api/internal/events"
	"github.com/vkwatch/vkwatch-api/internal/ingest"
	"github.com/vkwatch/vkwatch-api/internal/keyword"
	"github.com/vkwatch/vkwatch-api/internal/platform/memory"
	"github.com/vkwatch/vkwatch-api/internal/platform/postgres"
	"github.com/vkwatch/vkwatch-api/internal/platform/redisq"
	"github.com/vkwatch/vkwatch-api/internal/platform/vk"
	"github.com/vkwatch/vkwatch-api/internal/service"
	"github.com/vkwatch/vkwatch-api/internal/store"
	"github.com/vkwatch/vkwatch-api/internal/task"
	"github.com/vkwatch/vkwatch-api/internal/watch"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	// Optional backends; nil with the memory drivers.
	db          *sql.DB
	redisClient *redis.Client

	// Stores
	taskStore    store.TaskStore
	commentStore store.CommentStore
	keywordStore store.KeywordStore

	// Task handling
	queue    task.Queue
	registry *task.Registry
	runner   *task.Runner
	emitter  *events.InMemoryEventEmitter
	metrics  *prometheus.Registry

	// Periodic collection; nil when watch.schedule is empty.
	watcher *watch.Watcher

	// Services
	taskService    service.TaskService
	keywordService service.KeywordService
	keywordCache   *keyword.Cache

	router http.Handler
}

// newApplication creates a new application instance with all dependencies
// initialized. Nothing is started; run starts the runner and the server.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (app *application, err error) {
	app = &application{config: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.cleanup()
		}
	}()

	if err := app.setupStores(ctx); err != nil {
		return nil, err
	}
	if err := app.setupQueue(); err != nil {
		return nil, err
	}
	if err := app.setupTasks(); err != nil {
		return nil, err
	}
	if err := app.setupServices(); err != nil {
		return nil, err
	}
	app.router = app.setupRouter()

	return app, nil
}

func (app *application) setupStores(ctx context.Context) error {
	switch app.config.Storage.Driver {
	case "postgres":
		db, err := setupAppDatabase(ctx, app.config.Database, app.logger)
		if err != nil {
			return err
		}
		app.db = db

		if app.config.Database.MigrateOnStart {
			if err := postgres.Migrate(ctx, db, "up", app.logger); err != nil {
				return fmt.Errorf("failed to apply migrations: %w", err)
			}
		}

		app.taskStore = postgres.NewPostgresTaskStore(db, app.logger)
		app.commentStore = postgres.NewPostgresCommentStore(db, app.logger)
		app.keywordStore = postgres.NewPostgresKeywordStore(db, app.logger)
	default:
		app.logger.Warn("using in-memory storage; tasks and comments are lost on restart")
		app.taskStore = memory.NewTaskStore()
		app.commentStore = memory.NewCommentStore()
		app.keywordStore = memory.NewKeywordStore()
	}
	return nil
}

func (app *application) setupQueue() error {
	switch app.config.Queue.Driver {
	case "redis":
		client, err := redisq.NewClient(app.config.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		app.redisClient = client
		app.queue = redisq.New(client, app.config.Redis.Key, app.config.Queue.Capacity, app.logger)
	default:
		app.queue = task.NewMemoryQueue(app.config.Queue.Capacity, app.logger)
	}
	app.logger.Info("task queue initialized",
		"driver", app.config.Queue.Driver,
		"capacity", app.config.Queue.Capacity)
	return nil
}

func (app *application) setupTasks() error {
	app.registry = task.NewRegistry()
	app.emitter = events.NewInMemoryEventEmitter(app.logger)
	app.runner = task.NewRunner(
		app.taskStore,
		app.queue,
		app.registry,
		task.NewRunnerConfig(app.config.Task),
		app.logger,
		app.emitter,
	)

	app.metrics = prometheus.NewRegistry()
	app.metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.emitter.RegisterHandler(task.NewMetrics(app.metrics, task.QueueDepth(app.queue), app.runner.InFlight))

	app.keywordCache = keyword.NewCache(app.keywordStore, app.config.Keywords.RefreshInterval, app.logger)

	ingest.Register(app.registry, ingest.Deps{
		Source:    vk.NewClient(app.config.VK, app.logger),
		Comments:  app.commentStore,
		Keywords:  app.keywordCache,
		Analyzer:  analysis.NewLexiconAnalyzer(),
		Submitter: app.runner,
		Config:    app.config.Ingest,
		Logger:    app.logger,
	})
	app.logger.Info("task handlers registered", "types", app.registry.Types())

	if app.config.Watch.Schedule != "" {
		w, err := watch.New(app.config.Watch, app.runner, app.logger)
		if err != nil {
			return fmt.Errorf("failed to set up watch schedule: %w", err)
		}
		app.watcher = w
	}
	return nil
}

func (app *application) setupServices() error {
	var err error
	app.taskService, err = service.NewTaskService(app.taskStore, app.runner, app.registry, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create task service: %w", err)
	}
	app.keywordService, err = service.NewKeywordService(app.keywordStore, app.keywordCache, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create keyword service: %w", err)
	}
	return nil
}

// cleanup releases backend connections. The runner must be stopped first.
func (app *application) cleanup() {
	if app.redisClient != nil {
		if err := app.redisClient.Close(); err != nil {
			app.logger.Error("failed to close redis client", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("failed to close database", "error", err)
		}
	}
}
