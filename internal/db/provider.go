package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/config"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/logger"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/db/dialect"
)

// OpenPool opens the configured database backend and returns a read/write
// pool plus a cleanup function. For SQLite the pool splits a single writer
// connection from a read-only reader pool; for PostgreSQL one pgx pool
// serves both roles.
func OpenPool(cfg config.DatabaseConfig, log *logger.Logger) (*Pool, func() error, error) {
	switch cfg.Driver {
	case dialect.SQLite3:
		writer, err := OpenSQLite(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		reader, err := OpenSQLiteReader(cfg.Path)
		if err != nil {
			_ = writer.Close()
			return nil, nil, fmt.Errorf("failed to open sqlite reader pool: %w", err)
		}
		pool := NewPool(sqlx.NewDb(writer, dialect.SQLite3), sqlx.NewDb(reader, dialect.SQLite3))
		if log != nil {
			log.Info("database initialized",
				zap.String("driver", cfg.Driver),
				zap.String("path", cfg.Path))
		}
		cleanup := func() error {
			// Update query planner statistics before closing. Lightweight
			// and safe to run on every shutdown.
			_, _ = writer.Exec("PRAGMA optimize")
			return pool.Close()
		}
		return pool, cleanup, nil

	case dialect.PGX:
		conn, err := OpenPostgres(cfg.DSN(), cfg.MaxConns, cfg.MinConns)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres database: %w", err)
		}
		sqlxDB := sqlx.NewDb(conn, dialect.PGX)
		pool := NewPool(sqlxDB, sqlxDB)
		if log != nil {
			log.Info("database initialized",
				zap.String("driver", cfg.Driver),
				zap.String("host", cfg.Host),
				zap.String("dbname", cfg.DBName))
		}
		return pool, pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}
