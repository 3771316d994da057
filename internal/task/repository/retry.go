package repository

import (
	"context"
	"time"

	storeerrors "github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/errors"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/logger"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/task/models"
	"go.uber.org/zap"
)

// RetryingStore decorates a Store with exponential backoff on transient
// failures. Only idempotent reads and UpsertAgentActivity are retried;
// other writes pass through untouched.
type RetryingStore struct {
	inner    Store
	attempts int
	base     time.Duration
	factor   int
	log      *logger.Logger
}

var _ Store = (*RetryingStore)(nil)

// NewRetryingStore wraps inner. attempts <= 0 defaults to 3,
// base <= 0 defaults to 150ms, and factor < 1 defaults to 2.
func NewRetryingStore(inner Store, attempts int, base time.Duration, factor int, log *logger.Logger) *RetryingStore {
	if attempts <= 0 {
		attempts = 3
	}
	if base <= 0 {
		base = 150 * time.Millisecond
	}
	if factor < 1 {
		factor = 2
	}
	return &RetryingStore{inner: inner, attempts: attempts, base: base, factor: factor, log: log}
}

// retry runs fn up to r.attempts times, multiplying the delay by
// r.factor after each transient failure. Non-transient errors return
// immediately.
func retry[T any](ctx context.Context, r *RetryingStore, op string, fn func() (T, error)) (T, error) {
	var zero T
	delay := r.base
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if !storeerrors.IsTransient(err) {
			return zero, err
		}
		lastErr = err
		if attempt == r.attempts {
			break
		}
		r.log.Warn("transient store error, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return zero, storeerrors.Transient("store", ctx.Err())
		case <-time.After(delay):
		}
		delay *= time.Duration(r.factor)
	}
	return zero, lastErr
}

func (r *RetryingStore) ListTasks(ctx context.Context, filter models.TaskFilter) ([]*models.Task, error) {
	return retry(ctx, r, "listTasks", func() ([]*models.Task, error) {
		return r.inner.ListTasks(ctx, filter)
	})
}

func (r *RetryingStore) GetTaskByID(ctx context.Context, id string) (*models.Task, error) {
	return retry(ctx, r, "getTaskById", func() (*models.Task, error) {
		return r.inner.GetTaskByID(ctx, id)
	})
}

func (r *RetryingStore) ListOpenTasks(ctx context.Context) ([]*models.Task, error) {
	return retry(ctx, r, "listOpenTasks", func() ([]*models.Task, error) {
		return r.inner.ListOpenTasks(ctx)
	})
}

func (r *RetryingStore) GetTaskCounts(ctx context.Context) (models.TaskCounts, error) {
	return retry(ctx, r, "getTaskCounts", func() (models.TaskCounts, error) {
		return r.inner.GetTaskCounts(ctx)
	})
}

func (r *RetryingStore) ListAgentActivity(ctx context.Context) ([]*models.AgentActivity, error) {
	return retry(ctx, r, "listAgentActivity", func() ([]*models.AgentActivity, error) {
		return r.inner.ListAgentActivity(ctx)
	})
}

// UpsertAgentActivity is retried because repeating it converges on the
// same row.
func (r *RetryingStore) UpsertAgentActivity(ctx context.Context, input models.ActivityInput) (*models.AgentActivity, error) {
	return retry(ctx, r, "upsertAgentActivity", func() (*models.AgentActivity, error) {
		return r.inner.UpsertAgentActivity(ctx, input)
	})
}

func (r *RetryingStore) ListBlockedTasks(ctx context.Context, includeAcked bool) ([]*models.Blocker, error) {
	return retry(ctx, r, "listBlockedTasks", func() ([]*models.Blocker, error) {
		return r.inner.ListBlockedTasks(ctx, includeAcked)
	})
}

func (r *RetryingStore) GetRoomState(ctx context.Context, roomID string) (*models.RoomState, error) {
	return retry(ctx, r, "getRoomState", func() (*models.RoomState, error) {
		return r.inner.GetRoomState(ctx, roomID)
	})
}

// Non-idempotent writes below are never auto-retried.

func (r *RetryingStore) CreateTask(ctx context.Context, input models.CreateTaskInput) (*models.Task, error) {
	return r.inner.CreateTask(ctx, input)
}

func (r *RetryingStore) BulkReassignTasks(ctx context.Context, taskIDs []string, agent string) ([]*models.Task, error) {
	return r.inner.BulkReassignTasks(ctx, taskIDs, agent)
}

func (r *RetryingStore) BulkUpdateTaskStatuses(ctx context.Context, updates []models.StatusUpdate) ([]*models.Task, error) {
	return r.inner.BulkUpdateTaskStatuses(ctx, updates)
}

func (r *RetryingStore) InsertTaskBlock(ctx context.Context, input models.BlockInput) (*models.Blocker, error) {
	return r.inner.InsertTaskBlock(ctx, input)
}

func (r *RetryingStore) ResolveTaskBlock(ctx context.Context, input models.ResolveInput) (*models.Blocker, error) {
	return r.inner.ResolveTaskBlock(ctx, input)
}

func (r *RetryingStore) AckTaskBlock(ctx context.Context, taskID, agent string) (*models.Blocker, error) {
	return r.inner.AckTaskBlock(ctx, taskID, agent)
}

func (r *RetryingStore) TouchBlockLastNotified(ctx context.Context, blockID string) error {
	return r.inner.TouchBlockLastNotified(ctx, blockID)
}

func (r *RetryingStore) SaveRoomState(ctx context.Context, state *models.RoomState) error {
	return r.inner.SaveRoomState(ctx, state)
}

func (r *RetryingStore) Maintain(ctx context.Context) error {
	return r.inner.Maintain(ctx)
}

func (r *RetryingStore) Close() error {
	return r.inner.Close()
}
