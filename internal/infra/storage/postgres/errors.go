package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vietddude/syncer/internal/core/domain"
)

// WrapStoreError maps PostgreSQL constraint violations onto the
// domain error types the classifier understands. Other errors pass
// through unchanged.
func WrapStoreError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case "23505":
		return &domain.ConstraintError{
			Kind:       "unique",
			Constraint: pgErr.ConstraintName,
			Cause:      err,
		}
	case "23503":
		return &domain.ConstraintError{
			Kind:       "foreign_key",
			Constraint: pgErr.ConstraintName,
			Cause:      err,
		}
	case "23514":
		return &domain.ConstraintError{
			Kind:       "check",
			Constraint: pgErr.ConstraintName,
			Cause:      err,
		}
	}
	return err
}
