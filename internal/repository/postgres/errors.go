package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"eventregistration/internal/domain"
)

const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeInvalidText          = "22P02"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// mapError turns PostgreSQL conflict codes into the store-level signals the
// seat ledger understands. A malformed UUID cannot name an existing row, so it
// maps to ErrNotFound. Other errors are returned unchanged.
func mapError(err error) error {
	var perr *pq.Error
	if !errors.As(err, &perr) {
		return err
	}
	switch perr.Code {
	case codeUniqueViolation:
		return fmt.Errorf("%w: %w", domain.ErrUniquenessConflict, err)
	case codeSerializationFailure, codeDeadlockDetected:
		return fmt.Errorf("%w: %w", domain.ErrVersionConflict, err)
	case codeInvalidText:
		return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
	}
	return err
}
