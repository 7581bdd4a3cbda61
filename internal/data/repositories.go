package data

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

var (
	ErrRecordNotFound = errors.New("record not found")

	// ErrDuplicateActivation is returned when an insert collides with the
	// partial unique index guarding one live activation per key. The caller
	// lost a concurrent activation race and should re-read the live row.
	ErrDuplicateActivation = errors.New("live activation already exists for key")

	ErrInvalidTransition = errors.New("invalid status transition")
)

// DBTX is a common interface for *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
