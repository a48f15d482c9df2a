package main

import (
	"fmt"
	"log/slog"

	"github.com/vkwatch/vkwatch-api/internal/config"
)

// loadAppConfig loads the configuration from path, or from the default
// locations when path is empty.
func loadAppConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// logConfigSummary logs the configuration without secrets.
func logConfigSummary(cfg *config.Config, logger *slog.Logger) {
	logger.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"storage_driver", cfg.Storage.Driver,
		"queue_driver", cfg.Queue.Driver,
		"queue_capacity", cfg.Queue.Capacity,
		"worker_count", cfg.Task.WorkerCount,
		"watch_schedule", cfg.Watch.Schedule,
		"watch_owners", len(cfg.Watch.OwnerIDs))

	logger.Debug("credentials configured",
		"database_url_present", cfg.Database.URL != "",
		"vk_token_present", cfg.VK.AccessToken != "",
		"jwt_secret_present", cfg.Auth.JWTSecret != "")
}
