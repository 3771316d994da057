package repository

import (
	"context"

	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/task/models"
)

// Store defines the persistence contract for tasks, blockers, agent
// activity, and room state. Every operation runs as a single
// transaction and fails with a *errors.StoreError.
type Store interface {
	// Task operations
	ListTasks(ctx context.Context, filter models.TaskFilter) ([]*models.Task, error)
	GetTaskByID(ctx context.Context, id string) (*models.Task, error)
	ListOpenTasks(ctx context.Context) ([]*models.Task, error)
	CreateTask(ctx context.Context, input models.CreateTaskInput) (*models.Task, error)
	BulkReassignTasks(ctx context.Context, taskIDs []string, agent string) ([]*models.Task, error)
	BulkUpdateTaskStatuses(ctx context.Context, updates []models.StatusUpdate) ([]*models.Task, error)
	GetTaskCounts(ctx context.Context) (models.TaskCounts, error)

	// Agent activity operations
	ListAgentActivity(ctx context.Context) ([]*models.AgentActivity, error)
	UpsertAgentActivity(ctx context.Context, input models.ActivityInput) (*models.AgentActivity, error)

	// Blocker operations
	InsertTaskBlock(ctx context.Context, input models.BlockInput) (*models.Blocker, error)
	ResolveTaskBlock(ctx context.Context, input models.ResolveInput) (*models.Blocker, error)
	AckTaskBlock(ctx context.Context, taskID, agent string) (*models.Blocker, error)
	ListBlockedTasks(ctx context.Context, includeAcked bool) ([]*models.Blocker, error)
	TouchBlockLastNotified(ctx context.Context, blockID string) error

	// Room state checkpointing
	GetRoomState(ctx context.Context, roomID string) (*models.RoomState, error)
	SaveRoomState(ctx context.Context, state *models.RoomState) error

	// Maintain runs backend-specific housekeeping (WAL checkpoints on
	// SQLite). Safe to call concurrently with other operations.
	Maintain(ctx context.Context) error

	Close() error
}
