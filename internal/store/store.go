// Package store is Recall's embedded database: schema, forward migrations,
// batch event insertion, and the query primitives of spec.md §4.3.
//
// It is a single SQLite file opened in WAL mode so that ingest ticks and
// queries can interleave at statement granularity without writers blocking
// readers (spec.md §5 "Shared-resource policy"), following the same
// connection-string/pragma convention as
// other_examples/0207ab08_hazyhaar-GoClode__internal-core-db.go.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store is a process-wide handle to the embedded database. Per spec.md §5
// it is the single writer; concurrent callers may issue overlapping reads.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and migrates the database file at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite allows only one writer; a single connection keeps writes
	// serialized without relying on the driver's internal pooling behavior.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying connection for callers that need direct access.
// Most callers should use the typed methods instead.
func (s *Store) DB() *sql.DB {
	return s.db
}
