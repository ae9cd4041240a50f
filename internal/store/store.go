// Package store is pixel-hawk's persistence layer (spec.md §4.3): a thin
// SQLite-backed surface over Person, Project, Tile, TileProject, and
// HistoryChange rows. It exposes only the semantic operations the rest
// of the engine needs — no general-purpose query builder — grounded on
// internal/storage/sqlite's hand-written database/sql query style and
// internal/storage/sqlite/errors.go's sentinel-error wrapping.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the concrete SQLite-backed implementation. A single process
// owns the data root (spec.md §1 Non-goals), so Store uses one
// *sql.DB with a single open connection serializing writes.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open creates or opens the SQLite database at path, ensures its schema
// is current, and returns a ready Store. WAL mode and a busy timeout are
// set so the single writer doesn't starve concurrent readers (spec.md §5).
func Open(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping %s: %w", path, err)
	}

	s := &Store{db: db, log: log}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on any error or panic. Used by every multi-row mutation per
// spec.md §4.3 ("every mutation that touches more than one row ...
// executes atomically").
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError("begin tx", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(tx)
	return err
}
