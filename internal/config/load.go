package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "VKWATCH"

// defaults lists every configuration key with its default value. Registering
// every key is what lets viper's AutomaticEnv populate nested fields.
var defaults = map[string]any{
	"server.port":             8080,
	"server.log_level":        "info",
	"server.shutdown_timeout": 10 * time.Second,

	"database.url":               "",
	"database.max_open_conns":    10,
	"database.max_idle_conns":    5,
	"database.conn_max_lifetime": 5 * time.Minute,
	"database.migrate_on_start":  true,

	"storage.driver": "memory",

	"queue.driver":   "memory",
	"queue.capacity": 1000,

	"redis.address":  "",
	"redis.password": "",
	"redis.db":       0,
	"redis.key":      "vkwatch:tasks",

	"task.worker_count":           5,
	"task.timeout":                60 * time.Second,
	"task.max_attempts":           3,
	"task.retry_initial_interval": time.Second,
	"task.retry_max_interval":     30 * time.Second,
	"task.store_retry_attempts":   3,
	"task.stale_after":            30 * time.Minute,
	"task.reconcile_interval":     5 * time.Minute,
	"task.drain_timeout":          30 * time.Second,

	"vk.api_url":             "https://api.vk.com/method",
	"vk.access_token":        "",
	"vk.api_version":         "5.199",
	"vk.requests_per_second": 3.0,
	"vk.page_size":           100,
	"vk.http_timeout":        15 * time.Second,

	"ingest.max_pages":       50,
	"ingest.time_budget":     45 * time.Second,
	"ingest.posts_per_owner": 10,

	"keywords.refresh_interval": time.Minute,

	"watch.schedule":        "",
	"watch.owner_ids":       []int64{},
	"watch.posts_per_owner": 0,

	"auth.jwt_secret": "",
}

// Load reads configuration from defaults, an optional config.yaml in the
// working directory and VKWATCH_* environment variables, in increasing order
// of precedence, and validates the result.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit configuration file. An empty path looks
// for an optional config.yaml in the working directory.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct constraints and the settings that depend on the
// selected drivers.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if c.Storage.Driver == "postgres" && c.Database.URL == "" {
		return errors.New("config validation failed: database.url is required for the postgres storage driver")
	}
	if c.Queue.Driver == "redis" && c.Redis.Address == "" {
		return errors.New("config validation failed: redis.address is required for the redis queue driver")
	}
	if c.Watch.Schedule != "" && len(c.Watch.OwnerIDs) == 0 {
		return errors.New("config validation failed: watch.owner_ids is required when watch.schedule is set")
	}
	if c.Ingest.TimeBudget >= c.Task.Timeout {
		return errors.New("config validation failed: ingest.time_budget must be shorter than task.timeout")
	}

	return nil
}
