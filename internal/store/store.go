// Package store is the reference host backend: a SQLite database holding the
// tiles surfaces attach to, their properties and the plugin-scoped
// properties. Property writes are merges of top-level keys, never wholesale
// replacements, unless a caller asks for a replace explicitly.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/tilepad/bridge/internal/constants"
)

const defaultBusyTimeout = constants.StoreBusyTimeout

// Options describes parameters for opening a store.
type Options struct {
	Path     string // Database file path; ":memory:" for an ephemeral store
	ReadOnly bool
}

// Store provides access to tile and plugin data.
type Store struct {
	db       *sql.DB
	path     string
	readOnly bool
}

// NotFoundError indicates a requested record does not exist.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e NotFoundError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

// IsNotFound returns true when err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

// Open opens (creating when needed) the store database.
func Open(opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, errors.New("store: database path required")
	}

	dsn := opts.Path
	if opts.ReadOnly {
		dsn = fmt.Sprintf("file:%s?mode=ro", opts.Path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), constants.StoreOpenTimeout)
	defer cancel()

	if err := applyPragmas(ctx, db, opts.ReadOnly); err != nil {
		db.Close()
		return nil, err
	}
	if !opts.ReadOnly {
		if err := applySchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &Store{db: db, path: opts.Path, readOnly: opts.ReadOnly}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) ensureWritable() error {
	if s.readOnly {
		return errors.New("store: opened read-only")
	}
	return nil
}
