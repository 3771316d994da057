package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/config"
	storeerrors "github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/errors"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/logger"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/db"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/task/models"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/task/repository/sqlstore"
)

// Both backends must satisfy the same behavioral contract; every case
// below runs against memory and SQLite.
func TestStoreConformance(t *testing.T) {
	backends := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"sqlite": func(t *testing.T) Store {
			cfg := config.DatabaseConfig{
				Driver: "sqlite3",
				Path:   filepath.Join(t.TempDir(), "conformance.db"),
			}
			pool, cleanup, err := db.OpenPool(cfg, logger.Default())
			require.NoError(t, err)
			t.Cleanup(func() { _ = cleanup() })
			store, err := sqlstore.New(pool, logger.Default())
			require.NoError(t, err)
			return store
		},
	}

	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			t.Run("CreateDefaultsAndFetch", func(t *testing.T) {
				store := newStore(t)
				ctx := context.Background()

				created, err := store.CreateTask(ctx, models.CreateTaskInput{
					ProjectID: "r1", Title: "t",
				})
				require.NoError(t, err)
				assert.NotEmpty(t, created.ID)
				assert.Equal(t, models.StatusTodo, created.Status)
				assert.Equal(t, models.PriorityMedium, created.Priority)

				got, err := store.GetTaskByID(ctx, created.ID)
				require.NoError(t, err)
				assert.Equal(t, created.ID, got.ID)

				_, err = store.GetTaskByID(ctx, "missing")
				assert.True(t, storeerrors.IsNotFound(err))
			})

			t.Run("OpenBlockerForcesTaskBlocked", func(t *testing.T) {
				store := newStore(t)
				ctx := context.Background()

				task, err := store.CreateTask(ctx, models.CreateTaskInput{ProjectID: "r1", Title: "t"})
				require.NoError(t, err)
				_, err = store.InsertTaskBlock(ctx, models.BlockInput{
					ProjectID: "r1", TaskID: task.ID, BlockedAgent: "a", Reason: "r",
				})
				require.NoError(t, err)

				got, err := store.GetTaskByID(ctx, task.ID)
				require.NoError(t, err)
				assert.Equal(t, models.StatusBlocked, got.Status)
			})

			t.Run("ReblockKeepsSingleOpenRow", func(t *testing.T) {
				store := newStore(t)
				ctx := context.Background()

				task, err := store.CreateTask(ctx, models.CreateTaskInput{ProjectID: "r1", Title: "t"})
				require.NoError(t, err)
				first, err := store.InsertTaskBlock(ctx, models.BlockInput{
					ProjectID: "r1", TaskID: task.ID, BlockedAgent: "a", Reason: "reason1",
				})
				require.NoError(t, err)
				second, err := store.InsertTaskBlock(ctx, models.BlockInput{
					ProjectID: "r1", TaskID: task.ID, BlockedAgent: "a", Reason: "reason2",
				})
				require.NoError(t, err)
				assert.Equal(t, first.ID, second.ID)
				assert.Equal(t, "reason2", second.Reason)
				assert.False(t, second.Acked)

				rows, err := store.ListBlockedTasks(ctx, true)
				require.NoError(t, err)
				assert.Len(t, rows, 1)
			})

			t.Run("ResolveTwiceIsNoOp", func(t *testing.T) {
				store := newStore(t)
				ctx := context.Background()

				task, err := store.CreateTask(ctx, models.CreateTaskInput{ProjectID: "r1", Title: "t"})
				require.NoError(t, err)
				_, err = store.InsertTaskBlock(ctx, models.BlockInput{
					ProjectID: "r1", TaskID: task.ID, BlockedAgent: "a", Reason: "r",
				})
				require.NoError(t, err)

				first, err := store.ResolveTaskBlock(ctx, models.ResolveInput{
					TaskID: task.ID, BlockedAgent: "a", ResolvedBy: "ops",
				})
				require.NoError(t, err)
				require.NotNil(t, first.ResolvedBy)

				second, err := store.ResolveTaskBlock(ctx, models.ResolveInput{
					TaskID: task.ID, BlockedAgent: "a", ResolvedBy: "later",
				})
				require.NoError(t, err)
				require.NotNil(t, second.ResolvedBy)
				assert.Equal(t, "ops", *second.ResolvedBy)
			})

			t.Run("AckHidesFromSummary", func(t *testing.T) {
				store := newStore(t)
				ctx := context.Background()

				task, err := store.CreateTask(ctx, models.CreateTaskInput{ProjectID: "r1", Title: "t"})
				require.NoError(t, err)
				_, err = store.InsertTaskBlock(ctx, models.BlockInput{
					ProjectID: "r1", TaskID: task.ID, BlockedAgent: "a", Reason: "r",
				})
				require.NoError(t, err)
				_, err = store.ResolveTaskBlock(ctx, models.ResolveInput{
					TaskID: task.ID, BlockedAgent: "a", ResolvedBy: "ops",
				})
				require.NoError(t, err)

				unacked, err := store.ListBlockedTasks(ctx, false)
				require.NoError(t, err)
				require.Len(t, unacked, 1)

				_, err = store.AckTaskBlock(ctx, task.ID, "a")
				require.NoError(t, err)

				unacked, err = store.ListBlockedTasks(ctx, false)
				require.NoError(t, err)
				assert.Empty(t, unacked)
			})

			t.Run("ActivityUpsertKeyedByAgent", func(t *testing.T) {
				store := newStore(t)
				ctx := context.Background()

				_, err := store.UpsertAgentActivity(ctx, models.ActivityInput{
					AgentName: "a", Status: models.AgentStatusAvailable,
				})
				require.NoError(t, err)
				second, err := store.UpsertAgentActivity(ctx, models.ActivityInput{
					AgentName: "a", Status: models.AgentStatusBlocked,
				})
				require.NoError(t, err)
				assert.Equal(t, models.AgentStatusBlocked, second.Status)

				all, err := store.ListAgentActivity(ctx)
				require.NoError(t, err)
				assert.Len(t, all, 1)
			})

			t.Run("RoomStateRoundTrip", func(t *testing.T) {
				store := newStore(t)
				ctx := context.Background()

				_, err := store.GetRoomState(ctx, "r1")
				assert.True(t, storeerrors.IsNotFound(err))

				state := models.NewRoomState("r1")
				state.RecordQuery(models.QueryRecord{Query: "q"})
				require.NoError(t, store.SaveRoomState(ctx, state))

				got, err := store.GetRoomState(ctx, "r1")
				require.NoError(t, err)
				assert.Len(t, got.QueryHistory, 1)
			})
		})
	}
}
