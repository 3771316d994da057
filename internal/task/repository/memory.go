package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	storeerrors "github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/errors"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/task/models"
)

// MemoryStore keeps all records in process memory. Used in tests and
// for ephemeral single-node runs.
type MemoryStore struct {
	mu         sync.RWMutex
	tasks      map[string]*models.Task
	blockers   map[string]*models.Blocker
	activity   map[string]*models.AgentActivity
	roomStates map[string]*models.RoomState
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:      make(map[string]*models.Task),
		blockers:   make(map[string]*models.Blocker),
		activity:   make(map[string]*models.AgentActivity),
		roomStates: make(map[string]*models.RoomState),
	}
}

func (s *MemoryStore) Close() error { return nil }

// Maintain is a no-op for the in-memory backend.
func (s *MemoryStore) Maintain(ctx context.Context) error { return nil }

func cloneTask(t *models.Task) *models.Task {
	c := *t
	c.EpicID = cloneStr(t.EpicID)
	c.ParentTaskID = cloneStr(t.ParentTaskID)
	c.AssignedAgent = cloneStr(t.AssignedAgent)
	c.EstimatedHours = cloneFloat(t.EstimatedHours)
	c.ActualHours = cloneFloat(t.ActualHours)
	c.HumanReviewNotes = cloneStr(t.HumanReviewNotes)
	return &c
}

func cloneBlocker(b *models.Blocker) *models.Blocker {
	c := *b
	c.BlockingOwner = cloneStr(b.BlockingOwner)
	c.ResolvedBy = cloneStr(b.ResolvedBy)
	c.ResolutionNote = cloneStr(b.ResolutionNote)
	c.ResolvedAt = cloneTime(b.ResolvedAt)
	c.LastNotified = cloneTime(b.LastNotified)
	return &c
}

func cloneActivity(a *models.AgentActivity) *models.AgentActivity {
	c := *a
	c.TaskID = cloneStr(a.TaskID)
	c.Note = cloneStr(a.Note)
	return &c
}

func cloneStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func matchesFilter(t *models.Task, f models.TaskFilter) bool {
	if f.ProjectID != "" && t.ProjectID != f.ProjectID {
		return false
	}
	if f.EpicID != "" && (t.EpicID == nil || *t.EpicID != f.EpicID) {
		return false
	}
	if f.ParentTaskID != "" && (t.ParentTaskID == nil || *t.ParentTaskID != f.ParentTaskID) {
		return false
	}
	if f.Agent != "" && (t.AssignedAgent == nil || *t.AssignedAgent != f.Agent) {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Search != "" {
		agent := ""
		if t.AssignedAgent != nil {
			agent = *t.AssignedAgent
		}
		// Case-insensitive to match LIKE/ILIKE in the SQL backend.
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(t.Title), needle) &&
			!strings.Contains(strings.ToLower(t.Description), needle) &&
			!strings.Contains(strings.ToLower(agent), needle) {
			return false
		}
	}
	if f.TaskIDs != nil {
		found := false
		for _, id := range f.TaskIDs {
			if id == t.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (s *MemoryStore) ListTasks(ctx context.Context, filter models.TaskFilter) ([]*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if matchesFilter(t, filter) {
			out = append(out, cloneTask(t))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *MemoryStore) GetTaskByID(ctx context.Context, id string) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, storeerrors.NotFound("task", id)
	}
	return cloneTask(t), nil
}

func (s *MemoryStore) ListOpenTasks(ctx context.Context) ([]*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if t.Status.IsOpen() {
			out = append(out, cloneTask(t))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if ri, rj := out[i].Priority.Rank(), out[j].Priority.Rank(); ri != rj {
			return ri > rj
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *MemoryStore) CreateTask(ctx context.Context, input models.CreateTaskInput) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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
		EpicID:              cloneStr(input.EpicID),
		ParentTaskID:        cloneStr(input.ParentTaskID),
		Title:               input.Title,
		Description:         input.Description,
		Status:              status,
		Priority:            priority,
		AssignedAgent:       cloneStr(input.AssignedAgent),
		EstimatedHours:      cloneFloat(input.EstimatedHours),
		RequiresHumanReview: input.RequiresHumanReview,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	s.tasks[t.ID] = t
	return cloneTask(t), nil
}

func (s *MemoryStore) BulkReassignTasks(ctx context.Context, taskIDs []string, agent string) ([]*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	out := make([]*models.Task, 0, len(taskIDs))
	for _, id := range taskIDs {
		t, ok := s.tasks[id]
		if !ok {
			continue
		}
		a := agent
		t.AssignedAgent = &a
		t.UpdatedAt = now
		out = append(out, cloneTask(t))
	}
	return out, nil
}

func (s *MemoryStore) BulkUpdateTaskStatuses(ctx context.Context, updates []models.StatusUpdate) ([]*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	seen := make(map[string]struct{}, len(updates))
	out := make([]*models.Task, 0, len(updates))
	for _, u := range updates {
		t, ok := s.tasks[u.TaskID]
		if !ok {
			continue
		}
		t.Status = u.Status
		t.UpdatedAt = now
		if _, dup := seen[u.TaskID]; dup {
			continue
		}
		seen[u.TaskID] = struct{}{}
		out = append(out, cloneTask(t))
	}
	// Re-clone duplicated ids so the returned rows carry the last
	// applied status.
	for i, t := range out {
		out[i] = cloneTask(s.tasks[t.ID])
	}
	return out, nil
}

func (s *MemoryStore) GetTaskCounts(ctx context.Context) (models.TaskCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := models.TaskCounts{ByStatus: make(map[models.TaskStatus]int)}
	for _, t := range s.tasks {
		counts.ByStatus[t.Status]++
		counts.Total++
	}
	return counts, nil
}

func (s *MemoryStore) ListAgentActivity(ctx context.Context) ([]*models.AgentActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.AgentActivity, 0, len(s.activity))
	for _, a := range s.activity {
		out = append(out, cloneActivity(a))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *MemoryStore) UpsertAgentActivity(ctx context.Context, input models.ActivityInput) (*models.AgentActivity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	a, ok := s.activity[input.AgentName]
	if !ok {
		a = &models.AgentActivity{AgentName: input.AgentName}
		s.activity[input.AgentName] = a
	}
	a.Status = input.Status
	a.TaskID = cloneStr(input.TaskID)
	a.Note = cloneStr(input.Note)
	a.LastCheckIn = now
	a.UpdatedAt = now
	return cloneActivity(a), nil
}

// openBlockerLocked returns the open row for (taskID, agent), if any.
func (s *MemoryStore) openBlockerLocked(taskID, agent string) *models.Blocker {
	for _, b := range s.blockers {
		if b.TaskID == taskID && b.BlockedAgent == agent && b.ResolvedAt == nil {
			return b
		}
	}
	return nil
}

// latestBlockerLocked returns the most recently updated row for
// (taskID, agent), resolved or not.
func (s *MemoryStore) latestBlockerLocked(taskID, agent string) *models.Blocker {
	var latest *models.Blocker
	for _, b := range s.blockers {
		if b.TaskID != taskID || b.BlockedAgent != agent {
			continue
		}
		if latest == nil || b.UpdatedAt.After(latest.UpdatedAt) {
			latest = b
		}
	}
	return latest
}

func (s *MemoryStore) InsertTaskBlock(ctx context.Context, input models.BlockInput) (*models.Blocker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	severity := input.Severity
	if severity == "" {
		severity = models.SeverityMedium
	}

	b := s.openBlockerLocked(input.TaskID, input.BlockedAgent)
	if b != nil {
		b.Reason = input.Reason
		b.BlockingOwner = cloneStr(input.BlockingOwner)
		b.Severity = severity
		b.RequiresHumanIntervention = input.RequiresHumanIntervention
		b.Acked = false
		b.UpdatedAt = now
	} else {
		b = &models.Blocker{
			ID:                        uuid.New().String(),
			ProjectID:                 input.ProjectID,
			TaskID:                    input.TaskID,
			BlockedAgent:              input.BlockedAgent,
			BlockingOwner:             cloneStr(input.BlockingOwner),
			Reason:                    input.Reason,
			Severity:                  severity,
			RequiresHumanIntervention: input.RequiresHumanIntervention,
			CreatedAt:                 now,
			UpdatedAt:                 now,
		}
		s.blockers[b.ID] = b
	}

	// An open blocker forces the task itself to blocked.
	if t, ok := s.tasks[input.TaskID]; ok && t.Status != models.StatusBlocked {
		t.Status = models.StatusBlocked
		t.UpdatedAt = now
	}
	return cloneBlocker(b), nil
}

func (s *MemoryStore) ResolveTaskBlock(ctx context.Context, input models.ResolveInput) (*models.Blocker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if b := s.openBlockerLocked(input.TaskID, input.BlockedAgent); b != nil {
		b.ResolvedAt = &now
		b.ResolvedBy = &input.ResolvedBy
		b.ResolutionNote = cloneStr(input.ResolutionNote)
		b.UpdatedAt = now
		return cloneBlocker(b), nil
	}
	// Second resolve of the same key is a no-op returning the row
	// resolved by the first call.
	if b := s.latestBlockerLocked(input.TaskID, input.BlockedAgent); b != nil && b.ResolvedAt != nil {
		return cloneBlocker(b), nil
	}
	return nil, storeerrors.NotFound("blocker", input.TaskID+"/"+input.BlockedAgent)
}

func (s *MemoryStore) AckTaskBlock(ctx context.Context, taskID, agent string) (*models.Blocker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.latestBlockerLocked(taskID, agent)
	if b == nil {
		return nil, storeerrors.NotFound("blocker", taskID+"/"+agent)
	}
	b.Acked = true
	b.UpdatedAt = time.Now().UTC()
	return cloneBlocker(b), nil
}

func (s *MemoryStore) ListBlockedTasks(ctx context.Context, includeAcked bool) ([]*models.Blocker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Blocker, 0, len(s.blockers))
	for _, b := range s.blockers {
		if !includeAcked && b.Acked {
			continue
		}
		out = append(out, cloneBlocker(b))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *MemoryStore) TouchBlockLastNotified(ctx context.Context, blockID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.blockers[blockID]
	if !ok {
		return storeerrors.NotFound("blocker", blockID)
	}
	now := time.Now().UTC()
	b.LastNotified = &now
	return nil
}

func (s *MemoryStore) GetRoomState(ctx context.Context, roomID string) (*models.RoomState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.roomStates[roomID]
	if !ok {
		return nil, storeerrors.NotFound("room_state", roomID)
	}
	return cloneRoomState(st), nil
}

func (s *MemoryStore) SaveRoomState(ctx context.Context, state *models.RoomState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roomStates[state.RoomID] = cloneRoomState(state)
	return nil
}

func cloneRoomState(st *models.RoomState) *models.RoomState {
	c := *st
	c.AgentPreferences = make(map[string]*models.AgentPreferences, len(st.AgentPreferences))
	for k, v := range st.AgentPreferences {
		p := *v
		p.PreferredTopics = append([]string(nil), v.PreferredTopics...)
		c.AgentPreferences[k] = &p
	}
	c.QueryHistory = append([]models.QueryRecord(nil), st.QueryHistory...)
	c.CoordinationPatterns = append([]models.CoordinationPattern(nil), st.CoordinationPatterns...)
	return &c
}
