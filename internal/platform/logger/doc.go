// Package logger configures structured logging with log/slog and carries
// request- or task-scoped loggers through context.
package logger
