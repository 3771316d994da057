package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	// sqliteBusyTimeout bounds how long a connection waits on a lock
	// before surfacing SQLITE_BUSY as a transient store error.
	sqliteBusyTimeout = 5 * time.Second

	// sqliteReaderConns sizes the read-only pool. WAL mode lets these
	// run alongside the single writer.
	sqliteReaderConns = 4
)

// sqliteDSN builds the connection string for path. The writer carries
// the database-level pragmas (WAL journal, NORMAL sync); readers only
// need FK enforcement and the busy timeout.
func sqliteDSN(path string, readOnly bool) string {
	busyMS := int(sqliteBusyTimeout / time.Millisecond)
	if readOnly {
		return fmt.Sprintf("file:%s?_foreign_keys=on&_mode=ro&_busy_timeout=%d&_cache=shared", path, busyMS)
	}
	return fmt.Sprintf(
		"file:%s?_foreign_keys=on&_mode=rwc&_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL&_cache=shared",
		path, busyMS)
}

// OpenSQLite opens the write handle: a single connection so every
// mutation serializes through it.
func OpenSQLite(dbPath string) (*sql.DB, error) {
	path := normalizeSQLitePath(dbPath)
	if err := ensureSQLiteFile(path); err != nil {
		return nil, fmt.Errorf("prepare sqlite file: %w", err)
	}

	handle, err := sql.Open("sqlite3", sqliteDSN(path, false))
	if err != nil {
		return nil, fmt.Errorf("open sqlite writer: %w", err)
	}
	handle.SetMaxOpenConns(1)
	handle.SetMaxIdleConns(1)
	return handle, nil
}

// OpenSQLiteReader opens the read-only handle pool over the same file.
func OpenSQLiteReader(dbPath string) (*sql.DB, error) {
	handle, err := sql.Open("sqlite3", sqliteDSN(normalizeSQLitePath(dbPath), true))
	if err != nil {
		return nil, fmt.Errorf("open sqlite reader: %w", err)
	}
	handle.SetMaxOpenConns(sqliteReaderConns)
	handle.SetMaxIdleConns(sqliteReaderConns)
	return handle, nil
}

// ensureSQLiteFile creates the parent directory and an empty database
// file when missing, so a read-only pool can open it immediately.
func ensureSQLiteFile(path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	return file.Close()
}

func normalizeSQLitePath(dbPath string) string {
	if dbPath == "" {
		return dbPath
	}
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return dbPath
	}
	return abs
}
