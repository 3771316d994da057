package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	storeerrors "github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/errors"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/task/models"
)

// GetRoomState loads the checkpointed state for roomID.
func (s *Store) GetRoomState(ctx context.Context, roomID string) (*models.RoomState, error) {
	var raw string
	err := s.ro.QueryRowContext(ctx, s.ro.Rebind(
		"SELECT state FROM room_states WHERE room_id = ?"), roomID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, storeerrors.NotFound("room_state", roomID)
	}
	if err != nil {
		return nil, s.wrap("failed to get room state", err)
	}

	state := &models.RoomState{}
	if err := json.Unmarshal([]byte(raw), state); err != nil {
		return nil, storeerrors.Fatal("failed to decode room state", err)
	}
	return state, nil
}

// SaveRoomState upserts the JSON checkpoint for a room.
func (s *Store) SaveRoomState(ctx context.Context, state *models.RoomState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return storeerrors.Fatal("failed to encode room state", err)
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO room_states (room_id, state, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(room_id) DO UPDATE SET
			state = excluded.state,
			updated_at = excluded.updated_at
	`), state.RoomID, string(raw), time.Now().UTC())
	if err != nil {
		return s.wrap("failed to save room state", err)
	}
	return nil
}
