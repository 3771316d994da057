package room

import (
	"context"

	"go.uber.org/zap"

	storeerrors "github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/errors"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/logger"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/task/models"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/task/repository"
)

// loadRoomState restores the durable room memory from the store, or
// starts fresh when no checkpoint exists yet. A transient load failure
// also starts fresh; the next checkpoint overwrites whatever is there.
func loadRoomState(ctx context.Context, store repository.Store, roomID string, log *logger.Logger) *models.RoomState {
	state, err := store.GetRoomState(ctx, roomID)
	if err != nil {
		if !storeerrors.IsNotFound(err) {
			log.WithRoom(roomID).Warn("failed to load room state, starting fresh", zap.Error(err))
		}
		return models.NewRoomState(roomID)
	}
	return state
}

// persistState checkpoints the actor's state. Failure is logged only;
// room memory is advisory and the actor keeps running on the in-memory
// copy.
func (r *Room) persistState(ctx context.Context) error {
	if err := r.svc.Store().SaveRoomState(ctx, r.state); err != nil {
		r.log.Warn("failed to persist room state", zap.Error(err))
		return err
	}
	return nil
}
