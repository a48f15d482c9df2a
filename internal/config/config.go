package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage" validate:"required"`
	Queue    QueueConfig    `mapstructure:"queue" validate:"required"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Task     TaskConfig     `mapstructure:"task" validate:"required"`
	VK       VKConfig       `mapstructure:"vk" validate:"required"`
	Ingest   IngestConfig   `mapstructure:"ingest" validate:"required"`
	Keywords KeywordsConfig `mapstructure:"keywords" validate:"required"`
	Watch    WatchConfig    `mapstructure:"watch"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig contains all database-related configuration settings.
// URL is required when the storage driver is postgres.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url" validate:"omitempty,url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gt=0"`
	MigrateOnStart  bool          `mapstructure:"migrate_on_start"`
}

// StorageConfig selects the task, comment and keyword store implementation.
type StorageConfig struct {
	Driver string `mapstructure:"driver" validate:"required,oneof=postgres memory"`
}

// QueueConfig selects the task queue implementation and its capacity.
type QueueConfig struct {
	Driver   string `mapstructure:"driver" validate:"required,oneof=memory redis"`
	Capacity int    `mapstructure:"capacity" validate:"gt=0"`
}

// RedisConfig holds the connection settings of the Redis queue broker.
// Address is required when the queue driver is redis.
type RedisConfig struct {
	Address  string `mapstructure:"address" validate:"omitempty,hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
	Key      string `mapstructure:"key" validate:"required"`
}

// TaskConfig tunes the worker pool. MaxAttempts and StaleAfter are the retry
// budget and the staleness threshold of the reconciliation pass.
type TaskConfig struct {
	WorkerCount          int           `mapstructure:"worker_count" validate:"gte=1,lte=256"`
	Timeout              time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxAttempts          int           `mapstructure:"max_attempts" validate:"gte=1"`
	RetryInitialInterval time.Duration `mapstructure:"retry_initial_interval" validate:"gt=0"`
	RetryMaxInterval     time.Duration `mapstructure:"retry_max_interval" validate:"gtefield=RetryInitialInterval"`
	StoreRetryAttempts   int           `mapstructure:"store_retry_attempts" validate:"gte=1"`
	StaleAfter           time.Duration `mapstructure:"stale_after" validate:"gtfield=Timeout"`
	ReconcileInterval    time.Duration `mapstructure:"reconcile_interval" validate:"gt=0"`
	DrainTimeout         time.Duration `mapstructure:"drain_timeout" validate:"gte=0"`
}

// VKConfig configures the VK API client.
type VKConfig struct {
	APIURL            string        `mapstructure:"api_url" validate:"required,url"`
	AccessToken       string        `mapstructure:"access_token"`
	APIVersion        string        `mapstructure:"api_version" validate:"required"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gt=0"`
	PageSize          int           `mapstructure:"page_size" validate:"gte=1,lte=100"`
	HTTPTimeout       time.Duration `mapstructure:"http_timeout" validate:"gt=0"`
}

// IngestConfig bounds the work a single fetch_comments task may do.
type IngestConfig struct {
	MaxPages      int           `mapstructure:"max_pages" validate:"gte=1"`
	TimeBudget    time.Duration `mapstructure:"time_budget" validate:"gt=0"`
	PostsPerOwner int           `mapstructure:"posts_per_owner" validate:"gte=1,lte=100"`
}

// KeywordsConfig controls caching of the active keyword set.
type KeywordsConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval" validate:"gt=0"`
}

// WatchConfig schedules periodic bulk collection of a fixed set of owners.
// An empty Schedule disables it.
type WatchConfig struct {
	Schedule      string  `mapstructure:"schedule"`
	OwnerIDs      []int64 `mapstructure:"owner_ids" validate:"max=100"`
	PostsPerOwner int     `mapstructure:"posts_per_owner" validate:"gte=0,lte=100"`
}

// AuthConfig contains authentication settings. An empty secret disables
// bearer token checks on the API.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"omitempty,min=32"`
}
