package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/task/models"
)

const activityColumns = `agent_name, status, task_id, note, last_check_in, updated_at`

func scanActivity(row rowScanner) (*models.AgentActivity, error) {
	a := &models.AgentActivity{}
	err := row.Scan(
		&a.AgentName,
		&a.Status,
		&a.TaskID,
		&a.Note,
		&a.LastCheckIn,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListAgentActivity returns every agent row, newest update first.
func (s *Store) ListAgentActivity(ctx context.Context) ([]*models.AgentActivity, error) {
	rows, err := s.ro.QueryContext(ctx,
		"SELECT "+activityColumns+" FROM agent_activity ORDER BY updated_at DESC")
	if err != nil {
		return nil, s.wrap("failed to list agent activity", err)
	}
	defer func() { _ = rows.Close() }()

	out := []*models.AgentActivity{}
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, s.wrap("failed to scan activity row", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("failed to iterate activity rows", err)
	}
	return out, nil
}

// UpsertAgentActivity inserts or refreshes the row keyed by agentName.
// lastCheckIn and updatedAt are stamped on every call.
func (s *Store) UpsertAgentActivity(ctx context.Context, input models.ActivityInput) (*models.AgentActivity, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO agent_activity (`+activityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_name) DO UPDATE SET
			status = excluded.status,
			task_id = excluded.task_id,
			note = excluded.note,
			last_check_in = excluded.last_check_in,
			updated_at = excluded.updated_at
	`), input.AgentName, string(input.Status), input.TaskID, input.Note, now, now)
	if err != nil {
		return nil, s.wrap("failed to upsert agent activity", err)
	}

	row := s.db.QueryRowContext(ctx, s.db.Rebind(
		"SELECT "+activityColumns+" FROM agent_activity WHERE agent_name = ?"), input.AgentName)
	a, err := scanActivity(row)
	if err == sql.ErrNoRows {
		// Upsert cannot leave the row missing; treat as a torn write.
		return nil, s.wrap("agent activity row missing after upsert", sql.ErrNoRows)
	}
	if err != nil {
		return nil, s.wrap("failed to read agent activity", err)
	}
	return a, nil
}
