// Package service implements the write-through task orchestrator.
// Every mutation runs the store operation first, then reflects the
// result into the owning room as a server frame and onto the event bus.
// Reflection failures are logged and never surfaced to the caller.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	storeerrors "github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/errors"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/logger"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/events"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/events/bus"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/task/models"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/task/repository"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/pkg/frame"
)

const eventSource = "task-service"

// Service orchestrates task and blocker mutations. It is stateless;
// all state lives in the store and the room actors.
type Service struct {
	store    repository.Store
	bus      bus.EventBus
	injector FrameInjector
	log      *logger.Logger
}

// New creates the service. injector may be nil in tests that don't
// observe room reflection.
func New(store repository.Store, eventBus bus.EventBus, injector FrameInjector, log *logger.Logger) *Service {
	return &Service{store: store, bus: eventBus, injector: injector, log: log}
}

// Store exposes the underlying store for read-only handler paths.
func (s *Service) Store() repository.Store {
	return s.store
}

// inject delivers f to the room actor owning roomID. Failure is logged,
// never propagated; the store write already succeeded.
func (s *Service) inject(ctx context.Context, roomID string, f *frame.Frame) {
	if s.injector == nil {
		return
	}
	if err := s.injector.Inject(ctx, roomID, f); err != nil {
		s.log.WithRoom(roomID).Warn("frame injection failed",
			zap.String("frame_type", f.Type),
			zap.Error(err))
	}
}

// publish mirrors the mutation onto the event bus for external
// adapters. Failure is logged only.
func (s *Service) publish(ctx context.Context, eventType string, data map[string]any) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, eventType, bus.NewEvent(eventType, eventSource, data)); err != nil {
		s.log.Warn("event publish failed",
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}

// broadcastBlockedSummary pushes a fresh unacked-blocker summary into
// the room. Used after every blocker mutation so agents converge
// without waiting for the periodic tick.
func (s *Service) broadcastBlockedSummary(ctx context.Context, roomID string) {
	blockers, err := s.store.ListBlockedTasks(ctx, false)
	if err != nil {
		s.log.WithRoom(roomID).Warn("failed to fetch blocked summary", zap.Error(err))
		return
	}
	f, err := frame.New(frame.TypeTasksBlockedSummary, map[string]any{
		"blockers": blockers,
		"count":    len(blockers),
		"ts":       time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		s.log.Warn("failed to build blocked summary frame", zap.Error(err))
		return
	}
	s.inject(ctx, roomID, f)
}

// Create persists a new task and reflects tasks.created into its room.
func (s *Service) Create(ctx context.Context, input models.CreateTaskInput) (*models.Task, error) {
	task, err := s.store.CreateTask(ctx, input)
	if err != nil {
		return nil, err
	}

	if f, ferr := frame.New(frame.TypeTasksCreated, map[string]any{"task": task}); ferr == nil {
		s.inject(ctx, task.ProjectID, f)
	}
	s.publish(ctx, events.TaskCreated, map[string]any{"task": task})
	return task, nil
}

// UpdateSingleStatus moves one task to status and reflects
// tasks.statusUpdated.
func (s *Service) UpdateSingleStatus(ctx context.Context, taskID string, status models.TaskStatus) (*models.Task, error) {
	rows, err := s.store.BulkUpdateTaskStatuses(ctx, []models.StatusUpdate{
		{TaskID: taskID, Status: status},
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, storeerrors.NotFound("task", taskID)
	}
	task := rows[0]

	if f, ferr := frame.New(frame.TypeTasksStatusUpdated, map[string]any{"task": task}); ferr == nil {
		s.inject(ctx, task.ProjectID, f)
	}
	s.publish(ctx, events.TaskStatusChanged, map[string]any{"task": task})
	return task, nil
}

// UpdateStatuses applies a bulk status change and reflects
// tasks.bulkStatusUpdated into every touched room.
func (s *Service) UpdateStatuses(ctx context.Context, updates []models.StatusUpdate) ([]*models.Task, error) {
	rows, err := s.store.BulkUpdateTaskStatuses(ctx, updates)
	if err != nil {
		return nil, err
	}

	for roomID, tasks := range groupByRoom(rows) {
		if f, ferr := frame.New(frame.TypeTasksBulkStatusUpdated, map[string]any{"tasks": tasks}); ferr == nil {
			s.inject(ctx, roomID, f)
		}
	}
	s.publish(ctx, events.TaskStatusChanged, map[string]any{"tasks": rows})
	return rows, nil
}

// Reassign hands every listed task to agent and reflects
// tasks.reassigned into every touched room.
func (s *Service) Reassign(ctx context.Context, taskIDs []string, agent string) ([]*models.Task, error) {
	rows, err := s.store.BulkReassignTasks(ctx, taskIDs, agent)
	if err != nil {
		return nil, err
	}

	for roomID, tasks := range groupByRoom(rows) {
		if f, ferr := frame.New(frame.TypeTasksReassigned, map[string]any{
			"tasks": tasks,
			"agent": agent,
		}); ferr == nil {
			s.inject(ctx, roomID, f)
		}
	}
	s.publish(ctx, events.TaskReassigned, map[string]any{"tasks": rows, "agent": agent})
	return rows, nil
}

// BlockTask records a blocker, marks the agent blocked, and reflects
// tasks.blocked plus a fresh summary into the room. The room's
// server-frame processing turns tasks.blocked into the prompt update
// for the blocked agent.
func (s *Service) BlockTask(ctx context.Context, input models.BlockInput) (*models.Blocker, error) {
	blocker, err := s.store.InsertTaskBlock(ctx, input)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.UpsertAgentActivity(ctx, models.ActivityInput{
		AgentName: input.BlockedAgent,
		Status:    models.AgentStatusBlocked,
		TaskID:    &input.TaskID,
		Note:      &input.Reason,
	}); err != nil {
		s.log.WithAgent(input.BlockedAgent).Warn("failed to upsert blocked activity", zap.Error(err))
	}

	if f, ferr := frame.New(frame.TypeTasksBlocked, map[string]any{"blocker": blocker}); ferr == nil {
		s.inject(ctx, blocker.ProjectID, f)
	}
	s.broadcastBlockedSummary(ctx, blocker.ProjectID)
	s.publish(ctx, events.TaskBlocked, map[string]any{"blocker": blocker})
	return blocker, nil
}

// UnblockTask resolves the blocker, returns the task to todo, marks the
// agent available again, and reflects tasks.unblocked with the reminder
// target in meta.
func (s *Service) UnblockTask(ctx context.Context, input models.ResolveInput) (*models.Blocker, error) {
	blocker, err := s.store.ResolveTaskBlock(ctx, input)
	if err != nil {
		return nil, err
	}

	if _, err := s.UpdateSingleStatus(ctx, blocker.TaskID, models.StatusTodo); err != nil {
		if !storeerrors.IsNotFound(err) {
			s.log.Warn("failed to reset task status after unblock",
				zap.String("task_id", blocker.TaskID),
				zap.Error(err))
		}
	}

	note := ""
	if input.ResolutionNote != nil {
		note = *input.ResolutionNote
	}
	if _, err := s.store.UpsertAgentActivity(ctx, models.ActivityInput{
		AgentName: blocker.BlockedAgent,
		Status:    models.AgentStatusAvailable,
		TaskID:    &blocker.TaskID,
		Note:      &note,
	}); err != nil {
		s.log.WithAgent(blocker.BlockedAgent).Warn("failed to upsert unblocked activity", zap.Error(err))
	}

	if f, ferr := frame.New(frame.TypeTasksUnblocked, map[string]any{"blocker": blocker}); ferr == nil {
		f.WithMeta(frame.MetaNotifyAgent, blocker.BlockedAgent)
		s.inject(ctx, blocker.ProjectID, f)
	}
	s.broadcastBlockedSummary(ctx, blocker.ProjectID)
	s.publish(ctx, events.TaskUnblocked, map[string]any{"blocker": blocker})
	return blocker, nil
}

// AcknowledgeUnblock marks the blocker acknowledged and reflects
// agents.unblockAck plus a fresh summary.
func (s *Service) AcknowledgeUnblock(ctx context.Context, taskID, agent string) (*models.Blocker, error) {
	blocker, err := s.store.AckTaskBlock(ctx, taskID, agent)
	if err != nil {
		return nil, err
	}

	if f, ferr := frame.New(frame.TypeAgentsUnblockAck, map[string]any{
		"taskId":    taskID,
		"agentName": agent,
		"blocker":   blocker,
	}); ferr == nil {
		s.inject(ctx, blocker.ProjectID, f)
	}
	s.broadcastBlockedSummary(ctx, blocker.ProjectID)
	s.publish(ctx, events.TaskBlockAcknowledged, map[string]any{"blocker": blocker})
	return blocker, nil
}

// ReportActivity upserts an agent check-in and mirrors it on the bus.
// The room actor broadcasts the agents.activity frame itself, so no
// injection happens here.
func (s *Service) ReportActivity(ctx context.Context, input models.ActivityInput) (*models.AgentActivity, error) {
	activity, err := s.store.UpsertAgentActivity(ctx, input)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.AgentActivityUpdated, map[string]any{"activity": activity})
	return activity, nil
}

func groupByRoom(tasks []*models.Task) map[string][]*models.Task {
	grouped := make(map[string][]*models.Task)
	for _, t := range tasks {
		grouped[t.ProjectID] = append(grouped[t.ProjectID], t)
	}
	return grouped
}
