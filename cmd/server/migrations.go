package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vkwatch/vkwatch-api/internal/config"
	"github.com/vkwatch/vkwatch-api/internal/platform/postgres"
)

// runMigrations opens the configured database and runs one goose command.
func runMigrations(ctx context.Context, cfg *config.Config, command string, logger *slog.Logger) error {
	if cfg.Storage.Driver != "postgres" {
		return errors.New("migrations require storage.driver=postgres")
	}

	db, err := setupAppDatabase(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	if err := postgres.Migrate(ctx, db, command, logger); err != nil {
		return fmt.Errorf("migration %q failed: %w", command, err)
	}
	return nil
}
