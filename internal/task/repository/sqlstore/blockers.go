package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	storeerrors "github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/errors"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/db/dialect"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/task/models"
)

const blockerColumns = `id, project_id, task_id, blocked_agent, blocking_owner, reason,
	severity, requires_human_intervention, resolved_at, resolved_by,
	resolution_note, acked, last_notified, created_at, updated_at`

func scanBlocker(row rowScanner) (*models.Blocker, error) {
	b := &models.Blocker{}
	var requiresHuman, acked int
	err := row.Scan(
		&b.ID,
		&b.ProjectID,
		&b.TaskID,
		&b.BlockedAgent,
		&b.BlockingOwner,
		&b.Reason,
		&b.Severity,
		&requiresHuman,
		&b.ResolvedAt,
		&b.ResolvedBy,
		&b.ResolutionNote,
		&acked,
		&b.LastNotified,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.RequiresHumanIntervention = requiresHuman != 0
	b.Acked = acked != 0
	return b, nil
}

// blockerByIDTx fetches one blocker row inside tx.
func (s *Store) blockerByIDTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Blocker, error) {
	row := tx.QueryRowContext(ctx, tx.Rebind(
		"SELECT "+blockerColumns+" FROM task_blocks WHERE id = ?"), id)
	b, err := scanBlocker(row)
	if err == sql.ErrNoRows {
		return nil, storeerrors.NotFound("blocker", id)
	}
	if err != nil {
		return nil, s.wrap("failed to get blocker", err)
	}
	return b, nil
}

// latestBlockerIDTx returns the id of the most recently updated row for
// (taskID, agent), resolved or not, or sql.ErrNoRows.
func (s *Store) latestBlockerIDTx(ctx context.Context, tx *sqlx.Tx, taskID, agent string) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx, tx.Rebind(`
		SELECT id FROM task_blocks
		WHERE task_id = ? AND blocked_agent = ?
		ORDER BY updated_at DESC LIMIT 1
	`), taskID, agent).Scan(&id)
	return id, err
}

// InsertTaskBlock records an agent as blocked on a task. An existing
// open row for the same (task, agent) is updated in place with acked
// reset; otherwise a fresh row is inserted. The task itself moves to
// blocked within the same transaction.
func (s *Store) InsertTaskBlock(ctx context.Context, input models.BlockInput) (*models.Blocker, error) {
	severity := input.Severity
	if severity == "" {
		severity = models.SeverityMedium
	}

	var result *models.Blocker
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()

		var id string
		err := tx.QueryRowContext(ctx, tx.Rebind(`
			SELECT id FROM task_blocks
			WHERE task_id = ? AND blocked_agent = ? AND resolved_at IS NULL
		`), input.TaskID, input.BlockedAgent).Scan(&id)
		switch {
		case err == sql.ErrNoRows:
			id = uuid.New().String()
			if _, err := tx.ExecContext(ctx, tx.Rebind(`
				INSERT INTO task_blocks (`+blockerColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, NULL, 0, NULL, ?, ?)
			`),
				id, input.ProjectID, input.TaskID, input.BlockedAgent,
				input.BlockingOwner, input.Reason, string(severity),
				dialect.BoolToInt(input.RequiresHumanIntervention),
				now, now,
			); err != nil {
				return s.wrap("failed to insert blocker", err)
			}
		case err != nil:
			return s.wrap("failed to check open blocker", err)
		default:
			if _, err := tx.ExecContext(ctx, tx.Rebind(`
				UPDATE task_blocks
				SET reason = ?, blocking_owner = ?, severity = ?,
					requires_human_intervention = ?, acked = 0, updated_at = ?
				WHERE id = ?
			`),
				input.Reason, input.BlockingOwner, string(severity),
				dialect.BoolToInt(input.RequiresHumanIntervention), now, id,
			); err != nil {
				return s.wrap("failed to update open blocker", err)
			}
		}

		// Open blocker forces the task to blocked.
		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			UPDATE tasks SET status = ?, updated_at = ?
			WHERE id = ? AND status <> ?
		`), string(models.StatusBlocked), now, input.TaskID, string(models.StatusBlocked)); err != nil {
			return s.wrap("failed to mark task blocked", err)
		}

		result, err = s.blockerByIDTx(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ResolveTaskBlock closes the open row for (task, agent). A second
// resolve of the same key returns the already-resolved row unchanged.
func (s *Store) ResolveTaskBlock(ctx context.Context, input models.ResolveInput) (*models.Blocker, error) {
	var result *models.Blocker
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		res, err := tx.ExecContext(ctx, tx.Rebind(`
			UPDATE task_blocks
			SET resolved_at = ?, resolved_by = ?, resolution_note = ?, updated_at = ?
			WHERE task_id = ? AND blocked_agent = ? AND resolved_at IS NULL
		`), now, input.ResolvedBy, input.ResolutionNote, now, input.TaskID, input.BlockedAgent)
		if err != nil {
			return s.wrap("failed to resolve blocker", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// Already resolved, or never blocked.
			id, err := s.latestBlockerIDTx(ctx, tx, input.TaskID, input.BlockedAgent)
			if err == sql.ErrNoRows {
				return storeerrors.NotFound("blocker", input.TaskID+"/"+input.BlockedAgent)
			}
			if err != nil {
				return s.wrap("failed to look up blocker", err)
			}
			result, err = s.blockerByIDTx(ctx, tx, id)
			return err
		}

		id, err := s.latestBlockerIDTx(ctx, tx, input.TaskID, input.BlockedAgent)
		if err != nil {
			return s.wrap("failed to look up blocker", err)
		}
		result, err = s.blockerByIDTx(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AckTaskBlock marks the latest row for (task, agent) acknowledged,
// resolved or not.
func (s *Store) AckTaskBlock(ctx context.Context, taskID, agent string) (*models.Blocker, error) {
	var result *models.Blocker
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		id, err := s.latestBlockerIDTx(ctx, tx, taskID, agent)
		if err == sql.ErrNoRows {
			return storeerrors.NotFound("blocker", taskID+"/"+agent)
		}
		if err != nil {
			return s.wrap("failed to look up blocker", err)
		}
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, tx.Rebind(
			"UPDATE task_blocks SET acked = 1, updated_at = ? WHERE id = ?"), now, id); err != nil {
			return s.wrap("failed to ack blocker", err)
		}
		result, err = s.blockerByIDTx(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListBlockedTasks returns blockers newest first. Acked rows are
// excluded unless includeAcked is set.
func (s *Store) ListBlockedTasks(ctx context.Context, includeAcked bool) ([]*models.Blocker, error) {
	query := "SELECT " + blockerColumns + " FROM task_blocks"
	if !includeAcked {
		query += " WHERE acked = 0"
	}
	query += " ORDER BY updated_at DESC"

	rows, err := s.ro.QueryContext(ctx, query)
	if err != nil {
		return nil, s.wrap("failed to list blockers", err)
	}
	defer func() { _ = rows.Close() }()

	out := []*models.Blocker{}
	for rows.Next() {
		b, err := scanBlocker(rows)
		if err != nil {
			return nil, s.wrap("failed to scan blocker row", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("failed to iterate blocker rows", err)
	}
	return out, nil
}

// TouchBlockLastNotified stamps the reminder timestamp on a blocker.
func (s *Store) TouchBlockLastNotified(ctx context.Context, blockID string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		"UPDATE task_blocks SET last_notified = ? WHERE id = ?"),
		time.Now().UTC(), blockID)
	if err != nil {
		return s.wrap("failed to touch blocker", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storeerrors.NotFound("blocker", blockID)
	}
	return nil
}
