package gateway_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/config"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/logger"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/gateway"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/room"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/task/models"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/task/repository"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/task/service"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/pkg/frame"
)

// lateBinder lets the service target the test server once its URL is
// known.
type lateBinder struct {
	mu    sync.Mutex
	inner service.FrameInjector
}

func (lb *lateBinder) set(inj service.FrameInjector) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.inner = inj
}

func (lb *lateBinder) Inject(ctx context.Context, roomID string, f *frame.Frame) error {
	lb.mu.Lock()
	inner := lb.inner
	lb.mu.Unlock()
	if inner == nil {
		return nil
	}
	return inner.Inject(ctx, roomID, f)
}

type testEnv struct {
	ts    *httptest.Server
	store repository.Store
	svc   *service.Service
	mgr   *room.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logger.Default()
	store := repository.NewMemoryStore()
	binder := &lateBinder{}
	svc := service.New(store, nil, binder, log)

	roomCfg := config.RoomConfig{
		HeartbeatIntervalSec:      30,
		BlockedSummaryIntervalSec: 20,
		UnblockPingIntervalSec:    1,
		MaxQueryHistory:           100,
		MaxCoordinationPatterns:   50,
	}
	mgr := room.NewManager(roomCfg, svc, nil, log)
	srv := gateway.New(config.ServerConfig{}, mgr, store, nil, log)
	ts := httptest.NewServer(srv.Handler())
	binder.set(service.NewHTTPBroadcaster(ts.URL))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mgr.Shutdown(ctx)
		ts.Close()
	})
	return &testEnv{ts: ts, store: store, svc: svc, mgr: mgr}
}

func (e *testEnv) dial(t *testing.T, roomID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws?room=" + roomID
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// awaitFrame reads until a frame of wantType arrives, skipping
// everything else.
func awaitFrame(t *testing.T, conn *websocket.Conn, wantType string, timeout time.Duration) *frame.Frame {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", wantType)
		f, err := frame.Deserialize(data)
		require.NoError(t, err)
		if f.Type == wantType {
			return f
		}
	}
}

// assertNoFrame asserts no frame of unwantedType arrives within window.
func assertNoFrame(t *testing.T, conn *websocket.Conn, unwantedType string, window time.Duration) {
	t.Helper()
	deadline := time.Now().Add(window)
	for {
		_ = conn.SetReadDeadline(deadline)
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		f, derr := frame.Deserialize(data)
		require.NoError(t, derr)
		require.NotEqual(t, unwantedType, f.Type)
	}
}

func decodeJSON(resp *http.Response, v any) error {
	return json.NewDecoder(resp.Body).Decode(v)
}

func sendJSON(t *testing.T, conn *websocket.Conn, f *frame.Frame) {
	t.Helper()
	data, err := frame.Serialize(f)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func TestWSRequiresUpgradeHeaders(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.ts.URL + "/ws?room=r1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestWSRequiresRoomParam(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.Nil(t, conn)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status string `json:"status"`
		Store  bool   `json:"store"`
	}
	require.NoError(t, decodeJSON(resp, &body))
	assert.Equal(t, "ok", body.Status)
	assert.True(t, body.Store)
}

func TestBroadcastRejectsMalformedFrame(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Post(env.ts.URL+"/rooms/r1/broadcast", "application/json",
		bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestBroadcastAcceptsFrame(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "r1")
	awaitFrame(t, conn, frame.TypeSystemWelcome, 2*time.Second)

	f, err := frame.New("ops.notice", map[string]any{"text": "maintenance window"})
	require.NoError(t, err)
	data, err := frame.Serialize(f)
	require.NoError(t, err)

	resp, err := http.Post(env.ts.URL+"/rooms/r1/broadcast", "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := awaitFrame(t, conn, "ops.notice", 2*time.Second)
	var payload struct {
		Text string `json:"text"`
	}
	require.NoError(t, got.ParsePayload(&payload))
	assert.Equal(t, "maintenance window", payload.Text)
}

// TestCoordinationFlow walks one agent through the full block lifecycle
// over a live server: create, block, unblock with reminders, ack.
func TestCoordinationFlow(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "r1")
	awaitFrame(t, conn, frame.TypeSystemWelcome, 2*time.Second)

	// Register as agent A.
	reg, err := frame.New(frame.TypeAgentsRegister, map[string]any{"agentName": "A"})
	require.NoError(t, err)
	sendJSON(t, conn, reg)
	awaitFrame(t, conn, frame.TypeAgentsRegistered, 2*time.Second)

	// Create a task through the room.
	create, err := frame.New(frame.TypeTasksCreate, map[string]any{
		"projectId": "r1",
		"title":     "x",
	})
	require.NoError(t, err)
	create.RequestID = "c1"
	sendJSON(t, conn, create)

	created := awaitFrame(t, conn, frame.TypeTasksCreated, 2*time.Second)
	var createdPayload struct {
		Task *models.Task `json:"task"`
	}
	require.NoError(t, created.ParsePayload(&createdPayload))
	require.NotNil(t, createdPayload.Task)
	taskID := createdPayload.Task.ID
	assert.NotEmpty(t, taskID)
	assert.Equal(t, models.StatusTodo, createdPayload.Task.Status)

	listed, err := env.store.ListTasks(context.Background(), models.TaskFilter{ProjectID: "r1"})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, taskID, listed[0].ID)

	// Block the task; the room steers A with a prompt update.
	_, err = env.svc.BlockTask(context.Background(), models.BlockInput{
		ProjectID:    "r1",
		TaskID:       taskID,
		BlockedAgent: "A",
		Reason:       "missing asset",
		Severity:     models.SeverityHigh,
	})
	require.NoError(t, err)

	prompt := awaitFrame(t, conn, frame.TypeAgentsPromptUpdate, 3*time.Second)
	var promptPayload struct {
		TaskID  string          `json:"taskId"`
		Blocker *models.Blocker `json:"blocker"`
	}
	require.NoError(t, prompt.ParsePayload(&promptPayload))
	assert.Equal(t, taskID, promptPayload.TaskID)
	require.NotNil(t, promptPayload.Blocker)
	assert.Equal(t, "missing asset", promptPayload.Blocker.Reason)

	summary := awaitFrame(t, conn, frame.TypeTasksBlockedSummary, 3*time.Second)
	var summaryPayload struct {
		Blockers []*models.Blocker `json:"blockers"`
	}
	require.NoError(t, summary.ParsePayload(&summaryPayload))
	require.NotEmpty(t, summaryPayload.Blockers)
	assert.Equal(t, taskID, summaryPayload.Blockers[0].TaskID)

	// Unblock; the task returns to todo and reminders begin at once.
	_, err = env.svc.UnblockTask(context.Background(), models.ResolveInput{
		TaskID:       taskID,
		BlockedAgent: "A",
		ResolvedBy:   "ops",
	})
	require.NoError(t, err)

	unblocked := awaitFrame(t, conn, frame.TypeTasksUnblocked, 3*time.Second)
	var unblockedPayload struct {
		Blocker *models.Blocker `json:"blocker"`
	}
	require.NoError(t, unblocked.ParsePayload(&unblockedPayload))
	require.NotNil(t, unblockedPayload.Blocker)
	assert.NotNil(t, unblockedPayload.Blocker.ResolvedAt)

	awaitFrame(t, conn, frame.TypeAgentsUnblockedReminder, 3*time.Second)

	task, err := env.store.GetTaskByID(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusTodo, task.Status)

	// Acknowledge; reminders stop and the summary drains.
	ack, err := frame.New(frame.TypeAgentsAckUnblock, map[string]any{
		"taskId":    taskID,
		"agentName": "A",
	})
	require.NoError(t, err)
	sendJSON(t, conn, ack)
	awaitFrame(t, conn, frame.TypeAgentsUnblockAck, 3*time.Second)

	rows, err := env.store.ListBlockedTasks(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, rows)

	// The ping interval is 1s; a quiet window proves the cancel held.
	assertNoFrame(t, conn, frame.TypeAgentsUnblockedReminder, 1500*time.Millisecond)
}

// TestPromptUpdateFallsBackToBroadcast blocks an agent that is not
// connected; peers see the prompt update instead.
func TestPromptUpdateFallsBackToBroadcast(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "r1")
	awaitFrame(t, conn, frame.TypeSystemWelcome, 2*time.Second)

	reg, err := frame.New(frame.TypeAgentsRegister, map[string]any{"agentName": "B"})
	require.NoError(t, err)
	sendJSON(t, conn, reg)
	awaitFrame(t, conn, frame.TypeAgentsRegistered, 2*time.Second)

	task, err := env.store.CreateTask(context.Background(), models.CreateTaskInput{
		ProjectID: "r1",
		Title:     "deploy",
	})
	require.NoError(t, err)

	_, err = env.svc.BlockTask(context.Background(), models.BlockInput{
		ProjectID:    "r1",
		TaskID:       task.ID,
		BlockedAgent: "A",
		Reason:       "waiting",
	})
	require.NoError(t, err)

	prompt := awaitFrame(t, conn, frame.TypeAgentsPromptUpdate, 3*time.Second)
	var payload struct {
		AgentName string `json:"agentName"`
	}
	require.NoError(t, prompt.ParsePayload(&payload))
	assert.Equal(t, "A", payload.AgentName)
}
