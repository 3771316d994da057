package repository

import (
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/config"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/logger"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/db"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/task/repository/sqlstore"
)

// Provide builds the SQL-backed store on pool and wraps it with the
// configured transient-retry policy.
func Provide(pool *db.Pool, cfg config.StoreConfig, log *logger.Logger) (Store, func() error, error) {
	base, err := sqlstore.New(pool, log)
	if err != nil {
		return nil, nil, err
	}
	store := NewRetryingStore(base, cfg.RetryAttempts, cfg.RetryBase(), cfg.RetryFactor, log)
	return store, store.Close, nil
}
