// Package storage persists workflows, release tickets, build tracking
// records, and operator configuration in a single SQLite file.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ebops/deploybot/workflow"
)

// DefaultPath is the database file used when no path is configured.
const DefaultPath = "data/workflows.db"

// Store wraps the SQLite database holding all bot state.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// Open opens (creating if necessary) the database at path and verifies the
// connection. The parent directory is created when missing. WAL journaling
// and foreign keys are enabled through the DSN, and writers contending for
// the file wait up to five seconds before failing.
func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB exposes the raw handle for admin queries.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// timestamps returns the unix and human-readable forms of the current time.
func (s *Store) timestamps() (int64, string) {
	now := s.now()
	return now.Unix(), workflow.Timestamp(now)
}
