package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// Sentinel errors for common database conditions, grounded on
// internal/storage/sqlite/errors.go's wrapDBError pattern.
var (
	// ErrNotFound indicates the requested row was not present.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a unique constraint violation (e.g. a
	// duplicate Project name for an owner, or a colliding random id).
	ErrConflict = errors.New("conflict")
)

// wrapDBError wraps a database error with operation context, mapping
// sql.ErrNoRows to ErrNotFound for consistent caller-side handling.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}
