package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	storeerrors "github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/errors"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/db/dialect"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/task/models"
)

const taskColumns = `id, project_id, epic_id, parent_task_id, title, description,
	status, priority, assigned_agent, estimated_hours, actual_hours,
	requires_human_review, human_review_notes, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	t := &models.Task{}
	var requiresReview int
	err := row.Scan(
		&t.ID,
		&t.ProjectID,
		&t.EpicID,
		&t.ParentTaskID,
		&t.Title,
		&t.Description,
		&t.Status,
		&t.Priority,
		&t.AssignedAgent,
		&t.EstimatedHours,
		&t.ActualHours,
		&requiresReview,
		&t.HumanReviewNotes,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.RequiresHumanReview = requiresReview != 0
	return t, nil
}

func (s *Store) scanTasks(rows *sql.Rows) ([]*models.Task, error) {
	defer func() { _ = rows.Close() }()
	var out []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, s.wrap("failed to scan task row", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("failed to iterate task rows", err)
	}
	if out == nil {
		out = []*models.Task{}
	}
	return out, nil
}

// ListTasks returns tasks matching filter, newest update first.
func (s *Store) ListTasks(ctx context.Context, filter models.TaskFilter) ([]*models.Task, error) {
	var (
		conds []string
		args  []any
	)
	if filter.ProjectID != "" {
		conds = append(conds, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.EpicID != "" {
		conds = append(conds, "epic_id = ?")
		args = append(args, filter.EpicID)
	}
	if filter.ParentTaskID != "" {
		conds = append(conds, "parent_task_id = ?")
		args = append(args, filter.ParentTaskID)
	}
	if filter.Agent != "" {
		conds = append(conds, "assigned_agent = ?")
		args = append(args, filter.Agent)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Search != "" {
		like := dialect.Like(s.driver)
		pattern := "%" + filter.Search + "%"
		conds = append(conds, fmt.Sprintf(
			"(title %s ? OR description %s ? OR assigned_agent %s ?)", like, like, like))
		args = append(args, pattern, pattern, pattern)
	}
	if filter.TaskIDs != nil {
		if len(filter.TaskIDs) == 0 {
			return []*models.Task{}, nil
		}
		placeholders := strings.Repeat("?,", len(filter.TaskIDs))
		conds = append(conds, fmt.Sprintf("id IN (%s)", placeholders[:len(placeholders)-1]))
		for _, id := range filter.TaskIDs {
			args = append(args, id)
		}
	}

	query := "SELECT " + taskColumns + " FROM tasks"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY updated_at DESC"

	rows, err := s.ro.QueryContext(ctx, s.ro.Rebind(query), args...)
	if err != nil {
		return nil, s.wrap("failed to list tasks", err)
	}
	return s.scanTasks(rows)
}

// GetTaskByID returns the task or a notFound error.
func (s *Store) GetTaskByID(ctx context.Context, id string) (*models.Task, error) {
	row := s.ro.QueryRowContext(ctx, s.ro.Rebind(
		"SELECT "+taskColumns+" FROM tasks WHERE id = ?"), id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, storeerrors.NotFound("task", id)
	}
	if err != nil {
		return nil, s.wrap("failed to get task", err)
	}
	return t, nil
}

// ListOpenTasks returns every task not yet done, highest priority first
// and newest update first within a priority.
func (s *Store) ListOpenTasks(ctx context.Context) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE status <> 'done'
		ORDER BY CASE priority
			WHEN 'critical' THEN 4
			WHEN 'high' THEN 3
			WHEN 'medium' THEN 2
			WHEN 'low' THEN 1
			ELSE 0
		END DESC, updated_at DESC`
	rows, err := s.ro.QueryContext(ctx, query)
	if err != nil {
		return nil, s.wrap("failed to list open tasks", err)
	}
	return s.scanTasks(rows)
}

// CreateTask inserts a task with a fresh UUID and defaulted fields.
func (s *Store) CreateTask(ctx context.Context, input models.CreateTaskInput) (*models.Task, error) {
	now := time.Now().UTC()
	status := input.Status
	if status == "" {
		status = models.StatusTodo
	}
	priority := input.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	t := &models.Task{
		ID:                  uuid.New().String(),
		ProjectID:           input.ProjectID,
		EpicID:              input.EpicID,
		ParentTaskID:        input.ParentTaskID,
		Title:               input.Title,
		Description:         input.Description,
		Status:              status,
		Priority:            priority,
		AssignedAgent:       input.AssignedAgent,
		EstimatedHours:      input.EstimatedHours,
		RequiresHumanReview: input.RequiresHumanReview,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		t.ID, t.ProjectID, t.EpicID, t.ParentTaskID, t.Title, t.Description,
		string(t.Status), string(t.Priority), t.AssignedAgent,
		t.EstimatedHours, t.ActualHours,
		dialect.BoolToInt(t.RequiresHumanReview), t.HumanReviewNotes,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return nil, s.wrap("failed to create task", err)
	}
	return t, nil
}

// selectTasksByIDsTx fetches rows for ids within tx, newest update first.
func (s *Store) selectTasksByIDsTx(ctx context.Context, tx *sqlx.Tx, ids []string) ([]*models.Task, error) {
	if len(ids) == 0 {
		return []*models.Task{}, nil
	}
	query, args, err := sqlx.In(
		"SELECT "+taskColumns+" FROM tasks WHERE id IN (?) ORDER BY updated_at DESC", ids)
	if err != nil {
		return nil, storeerrors.Fatal("failed to build task id query", err)
	}
	rows, err := tx.QueryContext(ctx, tx.Rebind(query), args...)
	if err != nil {
		return nil, s.wrap("failed to select tasks by id", err)
	}
	return s.scanTasks(rows)
}

// BulkReassignTasks assigns every listed task to agent in one
// transaction. Missing ids are skipped.
func (s *Store) BulkReassignTasks(ctx context.Context, taskIDs []string, agent string) ([]*models.Task, error) {
	if len(taskIDs) == 0 {
		return []*models.Task{}, nil
	}
	var result []*models.Task
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		query, args, err := sqlx.In(
			"UPDATE tasks SET assigned_agent = ?, updated_at = ? WHERE id IN (?)",
			agent, now, taskIDs)
		if err != nil {
			return storeerrors.Fatal("failed to build reassign query", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return s.wrap("failed to reassign tasks", err)
		}
		result, err = s.selectTasksByIDsTx(ctx, tx, taskIDs)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// BulkUpdateTaskStatuses applies every update atomically and returns the
// deduplicated resulting rows. Missing ids are skipped.
func (s *Store) BulkUpdateTaskStatuses(ctx context.Context, updates []models.StatusUpdate) ([]*models.Task, error) {
	if len(updates) == 0 {
		return []*models.Task{}, nil
	}
	var result []*models.Task
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		seen := make(map[string]struct{}, len(updates))
		ids := make([]string, 0, len(updates))
		for _, u := range updates {
			if _, err := tx.ExecContext(ctx, tx.Rebind(
				"UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?"),
				string(u.Status), now, u.TaskID); err != nil {
				return s.wrap("failed to update task status", err)
			}
			if _, dup := seen[u.TaskID]; !dup {
				seen[u.TaskID] = struct{}{}
				ids = append(ids, u.TaskID)
			}
		}
		var err error
		result, err = s.selectTasksByIDsTx(ctx, tx, ids)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetTaskCounts returns per-status counts and the total.
func (s *Store) GetTaskCounts(ctx context.Context) (models.TaskCounts, error) {
	counts := models.TaskCounts{ByStatus: make(map[models.TaskStatus]int)}
	rows, err := s.ro.QueryContext(ctx, "SELECT status, COUNT(*) FROM tasks GROUP BY status")
	if err != nil {
		return counts, s.wrap("failed to count tasks", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return counts, s.wrap("failed to scan task count", err)
		}
		counts.ByStatus[models.TaskStatus(status)] = n
		counts.Total += n
	}
	if err := rows.Err(); err != nil {
		return counts, s.wrap("failed to iterate task counts", err)
	}
	return counts, nil
}
