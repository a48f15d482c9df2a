package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// run starts the task runner and the HTTP server and blocks until ctx is
// canceled or the server fails. Shutdown stops accepting requests first,
// then drains the runner, then closes backends.
func (app *application) run(ctx context.Context) error {
	if err := app.runner.Start(ctx); err != nil {
		app.cleanup()
		return fmt.Errorf("failed to start task runner: %w", err)
	}

	if app.watcher != nil {
		app.watcher.Start()
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		app.logger.Info("starting server", "port", app.config.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		app.logger.Info("shutting down server")
	case err := <-serverErr:
		app.logger.Error("server failed", "error", err)
		runErr = fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("server shutdown failed", "error", err)
		runErr = errors.Join(runErr, fmt.Errorf("server shutdown failed: %w", err))
	}

	if app.watcher != nil {
		app.watcher.Stop(shutdownCtx)
	}
	app.runner.Stop(context.Background())
	app.cleanup()

	app.logger.Info("server shutdown completed")
	return runErr
}
