// Package room implements the per-room actor. Each room owns its
// connection set, coordination timers, ack reminders, and durable room
// state; all of it is touched only by the actor goroutine, which drains
// a mailbox of connection events, client frames, and injected server
// frames.
package room

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/config"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/logger"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/docs"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/task/models"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/task/service"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/pkg/frame"
)

const (
	mailboxSize = 256
	opTimeout   = 5 * time.Second
)

// ErrRoomClosed is returned when posting to a room whose actor has
// exited.
var ErrRoomClosed = errors.New("room closed")

// Mailbox message kinds. Every mutation of actor state flows through
// one of these.
type (
	attachMsg struct{ conn *Conn }
	detachMsg struct{ conn *Conn }
	inboundMsg struct {
		conn *Conn
		data []byte
	}
	injectMsg      struct{ frame *frame.Frame }
	reminderFireMsg struct{ key reminderKey }
	checkpointMsg  struct{ done chan error }
)

// Room is one coordination room actor. Exported methods are safe for
// concurrent use; everything else runs on the actor goroutine.
type Room struct {
	id   string
	cfg  config.RoomConfig
	svc  *service.Service
	docs docs.Tool
	log  *logger.Logger

	mailbox chan any
	stop    chan struct{}
	stopped chan struct{}

	// Actor-owned state below.
	conns      map[*Conn]struct{}
	reminders  map[reminderKey]*reminder
	state      *models.RoomState
	dispatcher *frame.Dispatcher[*Conn]

	heartbeat  *time.Ticker
	summary    *time.Ticker
	heartbeatC <-chan time.Time
	summaryC   <-chan time.Time

	onIdle func(*Room)
}

func newRoom(id string, cfg config.RoomConfig, svc *service.Service, docsTool docs.Tool, log *logger.Logger, onIdle func(*Room)) *Room {
	r := &Room{
		id:        id,
		cfg:       cfg,
		svc:       svc,
		docs:      docsTool,
		log:       log.WithRoom(id),
		mailbox:   make(chan any, mailboxSize),
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
		conns:     make(map[*Conn]struct{}),
		reminders: make(map[reminderKey]*reminder),
		onIdle:    onIdle,
	}
	ctx, cancel := opCtx()
	r.state = loadRoomState(ctx, svc.Store(), id, log)
	cancel()
	r.state.SetCaps(cfg.MaxQueryHistory, cfg.MaxCoordinationPatterns)
	r.dispatcher = newHandlerTable(r)
	return r
}

// ID returns the room identifier.
func (r *Room) ID() string {
	return r.id
}

// Closed reports whether the actor has exited.
func (r *Room) Closed() bool {
	select {
	case <-r.stopped:
		return true
	default:
		return false
	}
}

// post delivers a mailbox message, blocking until the actor accepts it
// or has exited.
func (r *Room) post(msg any) bool {
	select {
	case r.mailbox <- msg:
		return true
	case <-r.stopped:
		return false
	}
}

// Inject queues a server frame for actor processing. It fails when the
// mailbox stays full past the caller's deadline or the room has closed.
func (r *Room) Inject(ctx context.Context, f *frame.Frame) error {
	select {
	case r.mailbox <- injectMsg{frame: f}:
		return nil
	case <-r.stopped:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Attach registers an upgraded WebSocket with the room and starts its
// pumps.
func (r *Room) Attach(ws *websocket.Conn) (*Conn, error) {
	conn := newConn(r, ws)
	if !r.post(attachMsg{conn: conn}) {
		return nil, ErrRoomClosed
	}
	go conn.writePump()
	go conn.readPump()
	return conn, nil
}

// Checkpoint persists the room state and waits for the write.
func (r *Room) Checkpoint(ctx context.Context) error {
	done := make(chan error, 1)
	select {
	case r.mailbox <- checkpointMsg{done: done}:
	case <-r.stopped:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop asks the actor to shut down. It does not wait; Wait does.
func (r *Room) Stop() {
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
}

// Wait blocks until the actor goroutine has exited.
func (r *Room) Wait() {
	<-r.stopped
}

func (r *Room) run() {
	defer close(r.stopped)
	for {
		select {
		case msg := <-r.mailbox:
			if r.handle(msg) {
				return
			}
		case <-r.heartbeatC:
			r.broadcastHeartbeat()
		case <-r.summaryC:
			r.refreshBlockedSummary()
		case <-r.stop:
			r.shutdown()
			return
		}
	}
}

// handle processes one mailbox message. A true return means the room
// reaped itself and the actor must exit.
func (r *Room) handle(msg any) bool {
	switch m := msg.(type) {
	case attachMsg:
		r.onOpen(m.conn)
	case detachMsg:
		r.onClose(m.conn)
		return r.maybeReap()
	case inboundMsg:
		r.onMessage(m.conn, m.data)
	case injectMsg:
		r.onInject(m.frame)
		return r.maybeReap()
	case reminderFireMsg:
		r.onReminderFire(m.key)
		return r.maybeReap()
	case checkpointMsg:
		ctx, cancel := opCtx()
		m.done <- r.persistState(ctx)
		cancel()
	}
	return false
}

func (r *Room) onOpen(conn *Conn) {
	r.conns[conn] = struct{}{}
	r.state.LastActivity = time.Now().UTC()
	r.ensureTimers()

	if f, err := frame.New(frame.TypeSystemWelcome, map[string]any{
		"connectionId": conn.ID,
		"roomId":       r.id,
		"connectedAt":  conn.ConnectedAt.Format(time.RFC3339),
		"peers":        r.peers(),
	}); err == nil {
		r.unicast(conn, f)
	}
	r.broadcastState()
	r.refreshBlockedSummary()
	r.log.Info("connection joined",
		zap.String("conn_id", conn.ID),
		zap.Int("peers", len(r.conns)))
}

func (r *Room) onClose(conn *Conn) {
	if _, ok := r.conns[conn]; !ok {
		return
	}
	delete(r.conns, conn)
	close(conn.send)
	r.state.LastActivity = time.Now().UTC()

	r.broadcastState()
	if len(r.conns) == 0 {
		r.stopTimers()
	}
	r.log.Info("connection left",
		zap.String("conn_id", conn.ID),
		zap.String("agent", conn.AgentName),
		zap.Int("peers", len(r.conns)))
}

func (r *Room) onMessage(conn *Conn, data []byte) {
	now := time.Now().UTC()
	conn.LastSeen = now
	r.state.LastActivity = now

	f, err := frame.Deserialize(data)
	if err != nil {
		r.log.Warn("dropping malformed frame",
			zap.String("conn_id", conn.ID),
			zap.Error(err))
		r.unicast(conn, f)
		return
	}

	if f.Type == frame.TypePing {
		if pong, perr := frame.NewReply(f.RequestID, frame.TypePong, map[string]any{
			"now": now.Format(time.RFC3339),
		}); perr == nil {
			r.unicast(conn, pong)
		}
		return
	}

	if err := validatePayload(f); err != nil {
		r.unicast(conn, frame.NewError(f.RequestID, errorFrameType(f.Type), frame.ErrorCodeHandleFailed, err.Error()))
		return
	}

	ctx, cancel := opCtx()
	defer cancel()
	if err := r.dispatcher.Dispatch(ctx, conn, f); err != nil {
		r.log.Warn("frame handling failed",
			zap.String("type", f.Type),
			zap.String("conn_id", conn.ID),
			zap.Error(err))
		r.unicast(conn, frame.NewError(f.RequestID, errorFrameType(f.Type), frame.ErrorCodeHandleFailed, err.Error()))
	}
}

// onInject fans an injected server frame out to every connection, then
// applies its protocol side effects.
func (r *Room) onInject(f *frame.Frame) {
	r.state.LastActivity = time.Now().UTC()
	r.broadcast(f)

	switch f.Type {
	case frame.TypeTasksBlocked:
		var payload struct {
			Blocker *models.Blocker `json:"blocker"`
		}
		if err := f.ParsePayload(&payload); err != nil || payload.Blocker == nil {
			r.log.Warn("tasks.blocked injection without blocker", zap.Error(err))
			return
		}
		r.sendPromptUpdate(payload.Blocker)
		r.refreshBlockedSummary()

	case frame.TypeTasksUnblocked:
		var payload struct {
			Blocker *models.Blocker `json:"blocker"`
		}
		if err := f.ParsePayload(&payload); err != nil || payload.Blocker == nil {
			r.log.Warn("tasks.unblocked injection without blocker", zap.Error(err))
			return
		}
		notify := f.MetaString(frame.MetaNotifyAgent)
		if notify == "" {
			notify = payload.Blocker.BlockedAgent
		}
		r.startReminder(notify, payload.Blocker)
		r.refreshBlockedSummary()

	case frame.TypeTasksBlockedSummary, frame.TypeAgentsActivity:
		// Keep the periodic timers alive for rooms woken by injection,
		// but only while someone is listening.
		if len(r.conns) > 0 {
			r.ensureTimers()
		}
	}
}

// sendPromptUpdate steers the blocked agent toward other work. Falls
// back to a broadcast when the agent has no live connection.
func (r *Room) sendPromptUpdate(blocker *models.Blocker) {
	f, err := frame.New(frame.TypeAgentsPromptUpdate, map[string]any{
		"agentName": blocker.BlockedAgent,
		"taskId":    blocker.TaskID,
		"blocker":   blocker,
		"prompt": "Task " + blocker.TaskID + " is blocked: " + blocker.Reason +
			". Pick up other open work or escalate while you wait.",
	})
	if err != nil {
		return
	}
	r.sendToAgent(blocker.BlockedAgent, f)
}

// maybeReap shuts the actor down once no connections and no pending
// reminders remain. The manager drops the room through onIdle.
func (r *Room) maybeReap() bool {
	if len(r.conns) > 0 || len(r.reminders) > 0 {
		return false
	}
	ctx, cancel := opCtx()
	_ = r.persistState(ctx)
	cancel()
	r.stopTimers()
	if r.onIdle != nil {
		r.onIdle(r)
	}
	r.log.Info("room idle, reaping")
	return true
}

func (r *Room) shutdown() {
	ctx, cancel := opCtx()
	_ = r.persistState(ctx)
	cancel()
	r.stopTimers()
	for key := range r.reminders {
		r.cancelReminder(key)
	}
	for conn := range r.conns {
		delete(r.conns, conn)
		close(conn.send)
	}
	if r.onIdle != nil {
		r.onIdle(r)
	}
}

func (r *Room) ensureTimers() {
	if r.heartbeat == nil {
		r.heartbeat = time.NewTicker(r.cfg.HeartbeatInterval())
		r.heartbeatC = r.heartbeat.C
	}
	if r.summary == nil {
		r.summary = time.NewTicker(r.cfg.BlockedSummaryInterval())
		r.summaryC = r.summary.C
	}
}

func (r *Room) stopTimers() {
	if r.heartbeat != nil {
		r.heartbeat.Stop()
		r.heartbeat = nil
		r.heartbeatC = nil
	}
	if r.summary != nil {
		r.summary.Stop()
		r.summary = nil
		r.summaryC = nil
	}
}

func (r *Room) broadcastHeartbeat() {
	f, err := frame.New(frame.TypeSystemHeartbeat, map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339),
		"peers": len(r.conns),
	})
	if err != nil {
		return
	}
	r.broadcast(f)
}

// refreshBlockedSummary reads the unacked blocker set and broadcasts
// it. Runs on the periodic tick and after every blocker transition.
func (r *Room) refreshBlockedSummary() {
	ctx, cancel := opCtx()
	defer cancel()
	blockers, err := r.svc.Store().ListBlockedTasks(ctx, false)
	if err != nil {
		r.log.Warn("failed to read blocked summary", zap.Error(err))
		return
	}
	f, err := frame.New(frame.TypeTasksBlockedSummary, map[string]any{
		"blockers": blockers,
		"count":    len(blockers),
		"ts":       time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	r.broadcast(f)
}

func (r *Room) broadcastState() {
	f, err := frame.New(frame.TypeSystemState, map[string]any{
		"roomId": r.id,
		"peers":  r.peers(),
		"count":  len(r.conns),
	})
	if err != nil {
		return
	}
	r.broadcast(f)
}

func (r *Room) broadcast(f *frame.Frame) {
	senders := make([]frame.Sender, 0, len(r.conns))
	for conn := range r.conns {
		senders = append(senders, conn)
	}
	frame.Broadcast(senders, f, r.log)
}

func (r *Room) unicast(conn *Conn, f *frame.Frame) {
	data, err := frame.Serialize(f)
	if err != nil {
		r.log.Error("failed to serialize frame", zap.String("type", f.Type), zap.Error(err))
		return
	}
	if err := conn.SendBytes(data); err != nil {
		r.log.Warn("unicast dropped",
			zap.String("type", f.Type),
			zap.String("peer", conn.Label()),
			zap.Error(err))
	}
}

// sendToAgent unicasts to the named agent's connection, broadcasting
// instead when the agent is not connected so peers can relay.
func (r *Room) sendToAgent(agent string, f *frame.Frame) {
	for conn := range r.conns {
		if conn.AgentName == agent {
			r.unicast(conn, f)
			return
		}
	}
	r.broadcast(f)
}

type peerInfo struct {
	AgentName   *string   `json:"agentName"`
	ConnectedAt time.Time `json:"connectedAt"`
	LastSeen    time.Time `json:"lastSeen"`
}

func (r *Room) peers() []peerInfo {
	peers := make([]peerInfo, 0, len(r.conns))
	for conn := range r.conns {
		p := peerInfo{ConnectedAt: conn.ConnectedAt, LastSeen: conn.LastSeen}
		if conn.AgentName != "" {
			name := conn.AgentName
			p.AgentName = &name
		}
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool {
		return peers[i].ConnectedAt.Before(peers[j].ConnectedAt)
	})
	return peers
}

// buildStats assembles the aggregate room snapshot served on stats
// requests and registration.
func (r *Room) buildStats(ctx context.Context) (*models.RoomStats, error) {
	store := r.svc.Store()
	counts, err := store.GetTaskCounts(ctx)
	if err != nil {
		return nil, err
	}
	activityRows, err := store.ListAgentActivity(ctx)
	if err != nil {
		return nil, err
	}
	blockerRows, err := store.ListBlockedTasks(ctx, false)
	if err != nil {
		return nil, err
	}

	stats := &models.RoomStats{
		RoomID:      r.id,
		Counts:      counts,
		GeneratedAt: time.Now().UTC(),
	}
	for _, a := range activityRows {
		stats.AgentActivity = append(stats.AgentActivity, *a)
	}
	for _, b := range blockerRows {
		stats.UnackedBlockers = append(stats.UnackedBlockers, *b)
	}
	return stats, nil
}

// errorFrameType picks the error frame namespace matching the request.
func errorFrameType(requestType string) string {
	if requestType == frame.TypeDocsQuery {
		return frame.TypeDocsError
	}
	return frame.TypeTasksError
}

func opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), opTimeout)
}
