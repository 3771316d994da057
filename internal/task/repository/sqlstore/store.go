// Package sqlstore implements the task store on SQLite or PostgreSQL
// through a shared writer/reader pool.
package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	storeerrors "github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/errors"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/logger"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/db"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/db/dialect"
)

// Store provides SQL-backed task storage operations.
type Store struct {
	db     *sqlx.DB // writer
	ro     *sqlx.DB // reader (read-only pool)
	driver string
	log    *logger.Logger
}

// New creates a store on pool and initializes the schema. The pool is
// owned by the caller; Close does not touch it.
func New(pool *db.Pool, log *logger.Logger) (*Store, error) {
	s := &Store{
		db:     pool.Writer(),
		ro:     pool.Reader(),
		driver: pool.Writer().DriverName(),
		log:    log,
	}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close releases nothing; the connection pool outlives the store.
func (s *Store) Close() error {
	return nil
}

// Maintain runs periodic housekeeping. On SQLite this truncates the WAL
// so the main database file absorbs accumulated writes; PostgreSQL
// handles the equivalent through autovacuum.
func (s *Store) Maintain(ctx context.Context) error {
	if dialect.IsPostgres(s.driver) {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return s.wrap("wal checkpoint failed", err)
	}
	_, _ = s.db.ExecContext(ctx, "PRAGMA optimize")
	s.log.Debug("sqlite maintenance complete")
	return nil
}

// initSchema creates the tables and indexes if they don't exist.
func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			epic_id TEXT,
			parent_task_id TEXT,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'todo',
			priority TEXT NOT NULL DEFAULT 'medium',
			assigned_agent TEXT,
			estimated_hours REAL,
			actual_hours REAL,
			requires_human_review INTEGER NOT NULL DEFAULT 0,
			human_review_notes TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_project_id ON tasks(project_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_assigned_agent ON tasks(assigned_agent)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_updated_at ON tasks(updated_at)`,
		`CREATE TABLE IF NOT EXISTS task_blocks (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			blocked_agent TEXT NOT NULL,
			blocking_owner TEXT,
			reason TEXT NOT NULL DEFAULT '',
			severity TEXT NOT NULL DEFAULT 'medium',
			requires_human_intervention INTEGER NOT NULL DEFAULT 0,
			resolved_at TIMESTAMP,
			resolved_by TEXT,
			resolution_note TEXT,
			acked INTEGER NOT NULL DEFAULT 0,
			last_notified TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		// At most one open blocker per (task, agent). The partial index
		// makes re-block an update instead of a second row.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_task_blocks_open
			ON task_blocks(task_id, blocked_agent) WHERE resolved_at IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_task_blocks_updated_at ON task_blocks(updated_at)`,
		`CREATE TABLE IF NOT EXISTS agent_activity (
			agent_name TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			task_id TEXT,
			note TEXT,
			last_check_in TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS room_states (
			room_id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// wrap classifies a driver error into a StoreError. Lock contention and
// broken connections are transient; everything else is fatal.
func (s *Store) wrap(msg string, err error) error {
	if err == nil {
		return nil
	}
	var se *storeerrors.StoreError
	if errors.As(err, &se) {
		return err
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return storeerrors.Transient(msg, err)
		case sqlite3.ErrConstraint:
			return storeerrors.Conflict(msg + ": " + err.Error())
		}
		return storeerrors.Fatal(msg, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization failure, deadlock
			return storeerrors.Transient(msg, err)
		case "23505": // unique violation
			return storeerrors.Conflict(msg + ": " + err.Error())
		}
		if len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08" { // connection errors
			return storeerrors.Transient(msg, err)
		}
		return storeerrors.Fatal(msg, err)
	}

	return storeerrors.Fatal(msg, err)
}

// inTx runs fn in a write transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return s.wrap("failed to begin transaction", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return s.wrap("failed to commit transaction", err)
	}
	return nil
}
