package room

import (
	"context"
	"fmt"
	"time"

	storeerrors "github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/errors"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/task/models"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/pkg/frame"
)

// newHandlerTable wires the client frame dispatch table. Handlers run
// on the actor goroutine, so they may touch room and connection state
// freely. Unrecognized frame types fall through to a plain re-broadcast
// so agents can talk to each other.
func newHandlerTable(r *Room) *frame.Dispatcher[*Conn] {
	d := frame.NewDispatcher[*Conn]()

	d.RegisterFunc(frame.TypeAgentsRegister, r.handleRegister)
	d.RegisterFunc(frame.TypeAgentsRequestStats, r.handleRequestStats)
	d.RegisterFunc(frame.TypeAgentsAckUnblock, r.handleAckUnblock)

	d.RegisterFunc(frame.TypeTasksFetchByAgent, r.handleFetchByAgent)
	d.RegisterFunc(frame.TypeTasksFetchByID, r.handleFetchByID)
	d.RegisterFunc(frame.TypeTasksSearch, r.handleSearch)
	d.RegisterFunc(frame.TypeTasksFetchOpen, r.handleFetchOpen)
	d.RegisterFunc(frame.TypeTasksCreate, r.handleCreate)
	d.RegisterFunc(frame.TypeTasksUpdateStatus, r.handleUpdateStatus)
	d.RegisterFunc(frame.TypeTasksBulkUpdateStatus, r.handleBulkUpdateStatus)
	d.RegisterFunc(frame.TypeTasksBulkReassign, r.handleBulkReassign)

	d.RegisterFunc(frame.TypeDocsQuery, r.handleDocsQuery)

	d.Default(func(ctx context.Context, conn *Conn, f *frame.Frame) error {
		r.broadcast(f)
		return nil
	})
	return d
}

func (r *Room) handleRegister(ctx context.Context, conn *Conn, f *frame.Frame) error {
	var payload struct {
		AgentName       string   `json:"agentName"`
		PreferredTopics []string `json:"preferredTopics"`
	}
	if err := f.ParsePayload(&payload); err != nil {
		return err
	}

	conn.AgentName = payload.AgentName
	prefs := r.state.PreferencesFor(payload.AgentName)
	if len(payload.PreferredTopics) > 0 {
		prefs.PreferredTopics = payload.PreferredTopics
	}

	if reply, err := frame.NewReply(f.RequestID, frame.TypeAgentsRegistered, map[string]any{
		"agentName":   payload.AgentName,
		"roomId":      r.id,
		"preferences": prefs,
	}); err == nil {
		r.unicast(conn, reply)
	}
	r.broadcastState()

	stats, err := r.buildStats(ctx)
	if err != nil {
		return err
	}
	if reply, ferr := frame.New(frame.TypeTasksStats, stats); ferr == nil {
		r.unicast(conn, reply)
	}
	return nil
}

func (r *Room) handleRequestStats(ctx context.Context, conn *Conn, f *frame.Frame) error {
	stats, err := r.buildStats(ctx)
	if err != nil {
		return err
	}
	reply, err := frame.NewReply(f.RequestID, frame.TypeTasksStats, stats)
	if err != nil {
		return err
	}
	r.unicast(conn, reply)
	return nil
}

func (r *Room) handleAckUnblock(ctx context.Context, conn *Conn, f *frame.Frame) error {
	var payload struct {
		TaskID    string `json:"taskId"`
		AgentName string `json:"agentName"`
	}
	if err := f.ParsePayload(&payload); err != nil {
		return err
	}

	r.cancelReminder(reminderKey{Agent: payload.AgentName, TaskID: payload.TaskID})

	// The service reflects agents.unblockAck and a fresh summary back
	// into the room; the handler only records the pattern locally.
	if _, err := r.svc.AcknowledgeUnblock(ctx, payload.TaskID, payload.AgentName); err != nil {
		return err
	}
	r.state.RecordPattern(models.CoordinationPattern{
		Pattern:   "unblock_ack",
		Success:   true,
		Timestamp: time.Now().UTC(),
	})
	r.refreshBlockedSummary()
	return nil
}

func (r *Room) handleFetchByAgent(ctx context.Context, conn *Conn, f *frame.Frame) error {
	var payload struct {
		Agent string `json:"agent"`
	}
	if err := f.ParsePayload(&payload); err != nil {
		return err
	}

	tasks, err := r.svc.Store().ListTasks(ctx, models.TaskFilter{Agent: payload.Agent})
	if err != nil {
		return err
	}
	reply, err := frame.NewReply(f.RequestID, frame.TypeTasksAgentSnapshot, map[string]any{
		"agentName": payload.Agent,
		"tasks":     tasks,
		"count":     len(tasks),
	})
	if err != nil {
		return err
	}
	r.unicast(conn, reply)
	return nil
}

func (r *Room) handleFetchByID(ctx context.Context, conn *Conn, f *frame.Frame) error {
	var payload struct {
		ID string `json:"id"`
	}
	if err := f.ParsePayload(&payload); err != nil {
		return err
	}

	task, err := r.svc.Store().GetTaskByID(ctx, payload.ID)
	if err != nil && !storeerrors.IsNotFound(err) {
		return err
	}
	// A missing task answers with a null detail, not an error frame.
	reply, rerr := frame.NewReply(f.RequestID, frame.TypeTasksDetail, map[string]any{
		"taskId": payload.ID,
		"task":   task,
	})
	if rerr != nil {
		return rerr
	}
	r.unicast(conn, reply)
	return nil
}

func (r *Room) handleSearch(ctx context.Context, conn *Conn, f *frame.Frame) error {
	var payload struct {
		Query     string `json:"query"`
		ProjectID string `json:"projectId"`
		Status    string `json:"status"`
		Agent     string `json:"agent"`
	}
	if err := f.ParsePayload(&payload); err != nil {
		return err
	}

	filter := models.TaskFilter{
		Search:    payload.Query,
		ProjectID: payload.ProjectID,
		Agent:     payload.Agent,
	}
	if payload.Status != "" {
		status := models.TaskStatus(payload.Status)
		if !status.IsValid() {
			return fmt.Errorf("unknown status %q", payload.Status)
		}
		filter.Status = status
	}

	tasks, err := r.svc.Store().ListTasks(ctx, filter)
	if err != nil {
		return err
	}
	reply, err := frame.NewReply(f.RequestID, frame.TypeTasksSearchResults, map[string]any{
		"query": payload.Query,
		"tasks": tasks,
		"count": len(tasks),
	})
	if err != nil {
		return err
	}
	r.unicast(conn, reply)
	return nil
}

func (r *Room) handleFetchOpen(ctx context.Context, conn *Conn, f *frame.Frame) error {
	tasks, err := r.svc.Store().ListOpenTasks(ctx)
	if err != nil {
		return err
	}
	reply, err := frame.NewReply(f.RequestID, frame.TypeTasksOpen, map[string]any{
		"tasks": tasks,
		"count": len(tasks),
	})
	if err != nil {
		return err
	}
	r.unicast(conn, reply)
	return nil
}

func (r *Room) handleCreate(ctx context.Context, conn *Conn, f *frame.Frame) error {
	var input models.CreateTaskInput
	if err := f.ParsePayload(&input); err != nil {
		return err
	}
	if input.ProjectID == "" {
		input.ProjectID = r.id
	}
	if input.Status != "" && !input.Status.IsValid() {
		return fmt.Errorf("unknown status %q", input.Status)
	}
	if input.Priority != "" && !input.Priority.IsValid() {
		return fmt.Errorf("unknown priority %q", input.Priority)
	}

	task, err := r.svc.Create(ctx, input)
	if err != nil {
		return err
	}
	reply, err := frame.NewReply(f.RequestID, frame.TypeTasksCreated, map[string]any{"task": task})
	if err != nil {
		return err
	}
	r.unicast(conn, reply)
	return nil
}

func (r *Room) handleUpdateStatus(ctx context.Context, conn *Conn, f *frame.Frame) error {
	var payload struct {
		TaskID string `json:"taskId"`
		Status string `json:"status"`
	}
	if err := f.ParsePayload(&payload); err != nil {
		return err
	}
	status := models.TaskStatus(payload.Status)
	if !status.IsValid() {
		return fmt.Errorf("unknown status %q", payload.Status)
	}

	task, err := r.svc.UpdateSingleStatus(ctx, payload.TaskID, status)
	if err != nil {
		return err
	}
	reply, err := frame.NewReply(f.RequestID, frame.TypeTasksStatusUpdated, map[string]any{"task": task})
	if err != nil {
		return err
	}
	r.unicast(conn, reply)
	return nil
}

func (r *Room) handleBulkUpdateStatus(ctx context.Context, conn *Conn, f *frame.Frame) error {
	var payload struct {
		Updates []models.StatusUpdate `json:"updates"`
	}
	if err := f.ParsePayload(&payload); err != nil {
		return err
	}
	for _, u := range payload.Updates {
		if !u.Status.IsValid() {
			return fmt.Errorf("unknown status %q", u.Status)
		}
	}

	tasks, err := r.svc.UpdateStatuses(ctx, payload.Updates)
	if err != nil {
		return err
	}
	reply, err := frame.NewReply(f.RequestID, frame.TypeTasksBulkStatusUpdated, map[string]any{
		"tasks": tasks,
		"count": len(tasks),
	})
	if err != nil {
		return err
	}
	r.unicast(conn, reply)
	return nil
}

func (r *Room) handleBulkReassign(ctx context.Context, conn *Conn, f *frame.Frame) error {
	var payload struct {
		TaskIDs []string `json:"taskIds"`
		Agent   string   `json:"agent"`
	}
	if err := f.ParsePayload(&payload); err != nil {
		return err
	}

	tasks, err := r.svc.Reassign(ctx, payload.TaskIDs, payload.Agent)
	if err != nil {
		return err
	}
	reply, err := frame.NewReply(f.RequestID, frame.TypeTasksReassigned, map[string]any{
		"tasks": tasks,
		"agent": payload.Agent,
		"count": len(tasks),
	})
	if err != nil {
		return err
	}
	r.unicast(conn, reply)
	return nil
}

func (r *Room) handleDocsQuery(ctx context.Context, conn *Conn, f *frame.Frame) error {
	var payload struct {
		Query      string `json:"query"`
		Topic      string `json:"topic"`
		MaxResults int    `json:"maxResults"`
	}
	if err := f.ParsePayload(&payload); err != nil {
		return err
	}

	// The query lands in room memory whether or not the lookup works.
	r.state.RecordQuery(models.QueryRecord{
		Query:     payload.Query,
		Topic:     payload.Topic,
		Timestamp: time.Now().UTC(),
	})
	if conn.AgentName != "" {
		prefs := r.state.PreferencesFor(conn.AgentName)
		prefs.LastQuery = payload.Query
		if payload.Topic != "" && !containsTopic(prefs.PreferredTopics, payload.Topic) {
			prefs.PreferredTopics = append(prefs.PreferredTopics, payload.Topic)
		}
	}

	if r.docs == nil {
		return fmt.Errorf("documentation lookup is not configured")
	}
	result, err := r.docs.Query(ctx, payload.Query, payload.Topic, payload.MaxResults)
	if err != nil {
		return err
	}
	reply, err := frame.NewReply(f.RequestID, frame.TypeDocsQueryResult, map[string]any{
		"query":  payload.Query,
		"result": result,
	})
	if err != nil {
		return err
	}
	r.unicast(conn, reply)
	return nil
}

func containsTopic(topics []string, topic string) bool {
	for _, t := range topics {
		if t == topic {
			return true
		}
	}
	return false
}
