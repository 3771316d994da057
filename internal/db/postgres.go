package db

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	defaultPostgresMaxConns = 25
	defaultPostgresMinConns = 5
)

// OpenPostgres opens one pgx-backed pool serving both Pool roles. The
// connection is pinged before use so a bad DSN fails at boot rather
// than on the first store call.
func OpenPostgres(dsn string, maxConns, minConns int) (*sql.DB, error) {
	handle, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if maxConns <= 0 {
		maxConns = defaultPostgresMaxConns
	}
	if minConns <= 0 {
		minConns = defaultPostgresMinConns
	}
	handle.SetMaxOpenConns(maxConns)
	handle.SetMaxIdleConns(minConns)

	if err := handle.Ping(); err != nil {
		_ = handle.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return handle, nil
}
