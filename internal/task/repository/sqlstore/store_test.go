package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/config"
	storeerrors "github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/errors"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/logger"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/db"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/task/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.DatabaseConfig{
		Driver: "sqlite3",
		Path:   filepath.Join(t.TempDir(), "test.db"),
	}
	pool, cleanup, err := db.OpenPool(cfg, logger.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cleanup() })

	store, err := New(pool, logger.Default())
	require.NoError(t, err)
	return store
}

func strPtr(s string) *string { return &s }

func TestCreateAndGetTask(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.CreateTask(ctx, models.CreateTaskInput{
		ProjectID: "r1",
		Title:     "wire the codec",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.StatusTodo, created.Status)
	assert.Equal(t, models.PriorityMedium, created.Priority)
	assert.Nil(t, created.AssignedAgent)

	got, err := store.GetTaskByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "wire the codec", got.Title)
	assert.WithinDuration(t, created.CreatedAt, got.CreatedAt, time.Second)
}

func TestGetTaskByIDNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetTaskByID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, storeerrors.IsNotFound(err))
}

func TestListTasksFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a, err := store.CreateTask(ctx, models.CreateTaskInput{
		ProjectID:     "r1",
		Title:         "index docs",
		AssignedAgent: strPtr("claude"),
	})
	require.NoError(t, err)
	_, err = store.CreateTask(ctx, models.CreateTaskInput{
		ProjectID: "r2",
		Title:     "review deploy scripts",
	})
	require.NoError(t, err)

	byProject, err := store.ListTasks(ctx, models.TaskFilter{ProjectID: "r1"})
	require.NoError(t, err)
	require.Len(t, byProject, 1)
	assert.Equal(t, a.ID, byProject[0].ID)

	byAgent, err := store.ListTasks(ctx, models.TaskFilter{Agent: "claude"})
	require.NoError(t, err)
	require.Len(t, byAgent, 1)

	bySearch, err := store.ListTasks(ctx, models.TaskFilter{Search: "deploy"})
	require.NoError(t, err)
	require.Len(t, bySearch, 1)
	assert.Equal(t, "review deploy scripts", bySearch[0].Title)

	byIDs, err := store.ListTasks(ctx, models.TaskFilter{TaskIDs: []string{a.ID}})
	require.NoError(t, err)
	require.Len(t, byIDs, 1)

	none, err := store.ListTasks(ctx, models.TaskFilter{TaskIDs: []string{}})
	require.NoError(t, err)
	assert.Empty(t, none)

	all, err := store.ListTasks(ctx, models.TaskFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestListOpenTasksOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	low, err := store.CreateTask(ctx, models.CreateTaskInput{
		ProjectID: "r1", Title: "low", Priority: models.PriorityLow,
	})
	require.NoError(t, err)
	critical, err := store.CreateTask(ctx, models.CreateTaskInput{
		ProjectID: "r1", Title: "critical", Priority: models.PriorityCritical,
	})
	require.NoError(t, err)
	done, err := store.CreateTask(ctx, models.CreateTaskInput{
		ProjectID: "r1", Title: "done", Priority: models.PriorityCritical,
	})
	require.NoError(t, err)
	_, err = store.BulkUpdateTaskStatuses(ctx, []models.StatusUpdate{
		{TaskID: done.ID, Status: models.StatusDone},
	})
	require.NoError(t, err)

	open, err := store.ListOpenTasks(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, critical.ID, open[0].ID)
	assert.Equal(t, low.ID, open[1].ID)
}

func TestBulkReassignSkipsMissing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a, err := store.CreateTask(ctx, models.CreateTaskInput{ProjectID: "r1", Title: "a"})
	require.NoError(t, err)

	rows, err := store.BulkReassignTasks(ctx, []string{a.ID, "no-such-id"}, "gemini")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].AssignedAgent)
	assert.Equal(t, "gemini", *rows[0].AssignedAgent)
}

func TestBulkUpdateStatusesDeduplicates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a, err := store.CreateTask(ctx, models.CreateTaskInput{ProjectID: "r1", Title: "a"})
	require.NoError(t, err)

	rows, err := store.BulkUpdateTaskStatuses(ctx, []models.StatusUpdate{
		{TaskID: a.ID, Status: models.StatusInProgress},
		{TaskID: a.ID, Status: models.StatusReview},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.StatusReview, rows[0].Status)
}

func TestGetTaskCounts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.CreateTask(ctx, models.CreateTaskInput{ProjectID: "r1", Title: "t"})
		require.NoError(t, err)
	}
	counts, err := store.GetTaskCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Total)
	assert.Equal(t, 3, counts.ByStatus[models.StatusTodo])
}

func TestInsertTaskBlockMarksTaskBlocked(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	task, err := store.CreateTask(ctx, models.CreateTaskInput{ProjectID: "r1", Title: "t"})
	require.NoError(t, err)

	b, err := store.InsertTaskBlock(ctx, models.BlockInput{
		ProjectID:    "r1",
		TaskID:       task.ID,
		BlockedAgent: "claude",
		Reason:       "missing asset",
	})
	require.NoError(t, err)
	assert.Equal(t, models.SeverityMedium, b.Severity)
	assert.False(t, b.Acked)

	got, err := store.GetTaskByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusBlocked, got.Status)
}

func TestReblockSameKeyUpdatesInPlace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	task, err := store.CreateTask(ctx, models.CreateTaskInput{ProjectID: "r1", Title: "t"})
	require.NoError(t, err)

	first, err := store.InsertTaskBlock(ctx, models.BlockInput{
		ProjectID: "r1", TaskID: task.ID, BlockedAgent: "claude", Reason: "reason1",
	})
	require.NoError(t, err)

	_, err = store.AckTaskBlock(ctx, task.ID, "claude")
	require.NoError(t, err)

	second, err := store.InsertTaskBlock(ctx, models.BlockInput{
		ProjectID: "r1", TaskID: task.ID, BlockedAgent: "claude", Reason: "reason2",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "reason2", second.Reason)
	assert.False(t, second.Acked)

	blockers, err := store.ListBlockedTasks(ctx, true)
	require.NoError(t, err)
	assert.Len(t, blockers, 1)
}

func TestResolveTaskBlockIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	task, err := store.CreateTask(ctx, models.CreateTaskInput{ProjectID: "r1", Title: "t"})
	require.NoError(t, err)
	_, err = store.InsertTaskBlock(ctx, models.BlockInput{
		ProjectID: "r1", TaskID: task.ID, BlockedAgent: "claude", Reason: "r",
	})
	require.NoError(t, err)

	first, err := store.ResolveTaskBlock(ctx, models.ResolveInput{
		TaskID: task.ID, BlockedAgent: "claude", ResolvedBy: "ops",
	})
	require.NoError(t, err)
	require.NotNil(t, first.ResolvedAt)
	require.NotNil(t, first.ResolvedBy)
	assert.Equal(t, "ops", *first.ResolvedBy)

	second, err := store.ResolveTaskBlock(ctx, models.ResolveInput{
		TaskID: task.ID, BlockedAgent: "claude", ResolvedBy: "someone-else",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	require.NotNil(t, second.ResolvedBy)
	assert.Equal(t, "ops", *second.ResolvedBy)
}

func TestResolveTaskBlockNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.ResolveTaskBlock(context.Background(), models.ResolveInput{
		TaskID: "none", BlockedAgent: "claude", ResolvedBy: "ops",
	})
	require.Error(t, err)
	assert.True(t, storeerrors.IsNotFound(err))
}

func TestAckTaskBlockAfterResolve(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	task, err := store.CreateTask(ctx, models.CreateTaskInput{ProjectID: "r1", Title: "t"})
	require.NoError(t, err)
	_, err = store.InsertTaskBlock(ctx, models.BlockInput{
		ProjectID: "r1", TaskID: task.ID, BlockedAgent: "claude", Reason: "r",
	})
	require.NoError(t, err)
	_, err = store.ResolveTaskBlock(ctx, models.ResolveInput{
		TaskID: task.ID, BlockedAgent: "claude", ResolvedBy: "ops",
	})
	require.NoError(t, err)

	acked, err := store.AckTaskBlock(ctx, task.ID, "claude")
	require.NoError(t, err)
	assert.True(t, acked.Acked)

	unacked, err := store.ListBlockedTasks(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, unacked)

	all, err := store.ListBlockedTasks(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestTouchBlockLastNotified(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	task, err := store.CreateTask(ctx, models.CreateTaskInput{ProjectID: "r1", Title: "t"})
	require.NoError(t, err)
	b, err := store.InsertTaskBlock(ctx, models.BlockInput{
		ProjectID: "r1", TaskID: task.ID, BlockedAgent: "claude", Reason: "r",
	})
	require.NoError(t, err)
	require.Nil(t, b.LastNotified)

	require.NoError(t, store.TouchBlockLastNotified(ctx, b.ID))

	blockers, err := store.ListBlockedTasks(ctx, true)
	require.NoError(t, err)
	require.Len(t, blockers, 1)
	assert.NotNil(t, blockers[0].LastNotified)

	err = store.TouchBlockLastNotified(ctx, "missing")
	assert.True(t, storeerrors.IsNotFound(err))
}

func TestUpsertAgentActivity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.UpsertAgentActivity(ctx, models.ActivityInput{
		AgentName: "claude",
		Status:    models.AgentStatusAvailable,
	})
	require.NoError(t, err)
	assert.Equal(t, models.AgentStatusAvailable, first.Status)

	second, err := store.UpsertAgentActivity(ctx, models.ActivityInput{
		AgentName: "claude",
		Status:    models.AgentStatusBusy,
		Note:      strPtr("working on codec"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.AgentStatusBusy, second.Status)
	require.NotNil(t, second.Note)

	all, err := store.ListAgentActivity(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRoomStateRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetRoomState(ctx, "r1")
	require.Error(t, err)
	assert.True(t, storeerrors.IsNotFound(err))

	state := models.NewRoomState("r1")
	state.RecordQuery(models.QueryRecord{Query: "workers kv", Topic: "kv", Timestamp: time.Now().UTC()})
	state.RecordPattern(models.CoordinationPattern{Pattern: "unblock_ack", Success: true, Timestamp: time.Now().UTC()})
	state.PreferencesFor("claude").LastQuery = "workers kv"
	require.NoError(t, store.SaveRoomState(ctx, state))

	got, err := store.GetRoomState(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", got.RoomID)
	require.Len(t, got.QueryHistory, 1)
	assert.Equal(t, "workers kv", got.QueryHistory[0].Query)
	require.Len(t, got.CoordinationPatterns, 1)
	require.Contains(t, got.AgentPreferences, "claude")

	// Saving again overwrites the checkpoint.
	state.RecordQuery(models.QueryRecord{Query: "durable objects", Timestamp: time.Now().UTC()})
	require.NoError(t, store.SaveRoomState(ctx, state))
	got, err = store.GetRoomState(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, got.QueryHistory, 2)
}

func TestMaintainSQLite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateTask(ctx, models.CreateTaskInput{ProjectID: "r1", Title: "t"})
	require.NoError(t, err)
	require.NoError(t, store.Maintain(ctx))
}
