package room

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/logger"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/task/models"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/task/repository"
)

func TestLoadRoomStateStartsFreshWhenMissing(t *testing.T) {
	store := repository.NewMemoryStore()
	state := loadRoomState(context.Background(), store, "room-1", logger.Default())
	require.NotNil(t, state)
	assert.Equal(t, "room-1", state.RoomID)
	assert.Empty(t, state.QueryHistory)
}

func TestLoadRoomStateRestoresCheckpoint(t *testing.T) {
	store := repository.NewMemoryStore()
	saved := models.NewRoomState("room-1")
	saved.RecordQuery(models.QueryRecord{Query: "how to deploy", Timestamp: time.Now().UTC()})
	saved.PreferencesFor("builder").LastQuery = "how to deploy"
	require.NoError(t, store.SaveRoomState(context.Background(), saved))

	state := loadRoomState(context.Background(), store, "room-1", logger.Default())
	require.Len(t, state.QueryHistory, 1)
	assert.Equal(t, "how to deploy", state.QueryHistory[0].Query)
	require.Contains(t, state.AgentPreferences, "builder")
	assert.Equal(t, "how to deploy", state.AgentPreferences["builder"].LastQuery)
}

func TestNewRoomRestoresPersistedState(t *testing.T) {
	r, _ := newTestRoom(t, nil)
	r.state.RecordPattern(models.CoordinationPattern{
		Pattern:   "unblock_ack",
		Success:   true,
		Timestamp: time.Now().UTC(),
	})
	ctx, cancel := opCtx()
	require.NoError(t, r.persistState(ctx))
	cancel()

	replacement := newRoom("room-1", testRoomConfig(), r.svc, nil, logger.Default(), nil)
	require.Len(t, replacement.state.CoordinationPatterns, 1)
	assert.Equal(t, "unblock_ack", replacement.state.CoordinationPatterns[0].Pattern)
}

func TestNewRoomAppliesConfiguredStateCaps(t *testing.T) {
	r, _ := newTestRoom(t, nil)

	cfg := testRoomConfig()
	cfg.MaxQueryHistory = 2
	cfg.MaxCoordinationPatterns = 1
	capped := newRoom("room-1", cfg, r.svc, nil, logger.Default(), nil)
	t.Cleanup(capped.stopTimers)

	for i := 0; i < 5; i++ {
		capped.state.RecordQuery(models.QueryRecord{Query: "q", Timestamp: time.Now().UTC()})
		capped.state.RecordPattern(models.CoordinationPattern{
			Pattern: "unblock_ack", Success: true, Timestamp: time.Now().UTC(),
		})
	}
	assert.Len(t, capped.state.QueryHistory, 2)
	assert.Len(t, capped.state.CoordinationPatterns, 1)
}