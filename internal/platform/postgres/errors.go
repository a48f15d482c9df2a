package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vkwatch/vkwatch-api/internal/store"
)

// PostgreSQL error codes
const (
	uniqueViolationCode     = "23505"
	foreignKeyViolationCode = "23503"
	checkViolationCode      = "23514"
	notNullViolationCode    = "23502"
)

// MapError maps a database error to the store error taxonomy.
// Constraint violations become ErrDuplicate or ErrInvalidEntity; anything
// else that reached the database is wrapped in a StoreError, which callers
// treat as a transient storage failure. Context errors pass through unchanged.
func MapError(err error, entity, operation string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", store.ErrNotFound, entity)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolationCode:
			return fmt.Errorf("%w: %s (%s)", store.ErrDuplicate, entity, pgErr.ConstraintName)
		case foreignKeyViolationCode:
			return fmt.Errorf(
				"%w: foreign key violation (%s)",
				store.ErrInvalidEntity,
				pgErr.ConstraintName,
			)
		case checkViolationCode:
			return fmt.Errorf(
				"%w: check constraint violation (%s)",
				store.ErrInvalidEntity,
				pgErr.ConstraintName,
			)
		case notNullViolationCode:
			return fmt.Errorf(
				"%w: not null violation (%s)",
				store.ErrInvalidEntity,
				pgErr.ColumnName,
			)
		}
	}

	return store.NewStoreError(entity, operation, "database error", err)
}

// IsUniqueViolation checks if the given error is a PostgreSQL unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// CheckRowsAffected examines the number of rows affected by a database operation.
// If no rows were affected, it returns notFound.
func CheckRowsAffected(result sql.Result, notFound error) error {
	if result == nil {
		return fmt.Errorf("nil result provided to CheckRowsAffected")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
