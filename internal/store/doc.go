// Package store defines the persistence contracts for tasks, comments and
// keywords. Implementations live in internal/platform/postgres (durable) and
// internal/platform/memory (single process, used in development and tests).
package store
