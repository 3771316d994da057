package models

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskStatusIsValid(t *testing.T) {
	for _, s := range ValidStatuses {
		assert.True(t, s.IsValid(), string(s))
	}
	assert.False(t, TaskStatus("archived").IsValid())
	assert.False(t, TaskStatus("").IsValid())
}

func TestTaskStatusIsOpen(t *testing.T) {
	assert.True(t, StatusTodo.IsOpen())
	assert.True(t, StatusBlocked.IsOpen())
	assert.True(t, StatusCancelled.IsOpen())
	assert.False(t, StatusDone.IsOpen())
}

func TestPriorityRank(t *testing.T) {
	assert.Greater(t, PriorityCritical.Rank(), PriorityHigh.Rank())
	assert.Greater(t, PriorityHigh.Rank(), PriorityMedium.Rank())
	assert.Greater(t, PriorityMedium.Rank(), PriorityLow.Rank())
	assert.Equal(t, 0, Priority("unknown").Rank())
	assert.False(t, Priority("urgent").IsValid())
}

func TestTaskJSONShape(t *testing.T) {
	task := Task{
		ID:        "t-1",
		ProjectID: "room-a",
		Title:     "wire auth",
		Status:    StatusTodo,
		Priority:  PriorityHigh,
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	raw, err := json.Marshal(task)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))

	// Unassigned tasks serialize an explicit null so clients can
	// distinguish "nobody" from a partial payload.
	v, ok := m["assignedAgent"]
	require.True(t, ok)
	assert.Nil(t, v)

	// Hierarchy fields are dropped entirely when null.
	_, hasEpic := m["epicId"]
	assert.False(t, hasEpic)
	_, hasParent := m["parentTaskId"]
	assert.False(t, hasParent)
}

func TestTaskJSONRoundTrip(t *testing.T) {
	epic := "e-1"
	agent := "claude"
	hours := 2.5
	in := Task{
		ID:             "t-2",
		ProjectID:      "room-a",
		EpicID:         &epic,
		Title:          "ship it",
		Status:         StatusInProgress,
		Priority:       PriorityCritical,
		AssignedAgent:  &agent,
		EstimatedHours: &hours,
		CreatedAt:      time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:      time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	}

	raw, err := json.Marshal(in)
	require.NoError(t, err)
	var out Task
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, in, out)
}

func TestBlockerResolved(t *testing.T) {
	b := &Blocker{ID: "b-1", TaskID: "t-1", BlockedAgent: "claude"}
	assert.False(t, b.Resolved())

	now := time.Now()
	b.ResolvedAt = &now
	assert.True(t, b.Resolved())
}

func TestRoomStateQueryHistoryCap(t *testing.T) {
	s := NewRoomState("room-a")
	for i := 0; i < DefaultMaxQueryHistory+25; i++ {
		s.RecordQuery(QueryRecord{Query: fmt.Sprintf("q-%d", i), Timestamp: time.Now()})
	}
	require.Len(t, s.QueryHistory, DefaultMaxQueryHistory)
	assert.Equal(t, "q-25", s.QueryHistory[0].Query)
	assert.Equal(t, fmt.Sprintf("q-%d", DefaultMaxQueryHistory+24), s.QueryHistory[len(s.QueryHistory)-1].Query)
}

func TestRoomStatePatternCap(t *testing.T) {
	s := NewRoomState("room-a")
	for i := 0; i < DefaultMaxCoordinationPatterns+10; i++ {
		s.RecordPattern(CoordinationPattern{Pattern: "unblock_ack", Success: true})
	}
	require.Len(t, s.CoordinationPatterns, DefaultMaxCoordinationPatterns)
}

func TestRoomStateSetCapsOverridesRingSizes(t *testing.T) {
	s := NewRoomState("room-a")
	s.SetCaps(3, 2)
	for i := 0; i < 10; i++ {
		s.RecordQuery(QueryRecord{Query: fmt.Sprintf("q-%d", i), Timestamp: time.Now()})
		s.RecordPattern(CoordinationPattern{Pattern: "unblock_ack", Success: true})
	}
	require.Len(t, s.QueryHistory, 3)
	assert.Equal(t, "q-7", s.QueryHistory[0].Query)
	require.Len(t, s.CoordinationPatterns, 2)

	// Unset caps fall back to the defaults rather than dropping entries.
	s.SetCaps(0, 0)
	s.RecordQuery(QueryRecord{Query: "q-10", Timestamp: time.Now()})
	assert.Len(t, s.QueryHistory, 4)
}

func TestRoomStatePreferencesFor(t *testing.T) {
	s := NewRoomState("room-a")
	p := s.PreferencesFor("claude")
	require.NotNil(t, p)
	p.LastQuery = "workers kv"
	assert.Same(t, p, s.PreferencesFor("claude"))
	assert.Equal(t, "workers kv", s.AgentPreferences["claude"].LastQuery)
}
