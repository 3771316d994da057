package models

import (
	"time"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusBacklog    TaskStatus = "backlog"
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in_progress"
	StatusReview     TaskStatus = "review"
	StatusBlocked    TaskStatus = "blocked"
	StatusDone       TaskStatus = "done"
	StatusCancelled  TaskStatus = "cancelled"
	StatusOnHold     TaskStatus = "on_hold"
)

// ValidStatuses lists every accepted task status.
var ValidStatuses = []TaskStatus{
	StatusPending, StatusBacklog, StatusTodo, StatusInProgress,
	StatusReview, StatusBlocked, StatusDone, StatusCancelled, StatusOnHold,
}

// IsValid reports whether s is one of the known statuses.
func (s TaskStatus) IsValid() bool {
	for _, v := range ValidStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// IsOpen reports whether a task in this status appears in the open-task
// listing (every status except done).
func (s TaskStatus) IsOpen() bool {
	return s != StatusDone
}

// Priority orders tasks within the open-task listing.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

var priorityRank = map[Priority]int{
	PriorityLow:      1,
	PriorityMedium:   2,
	PriorityHigh:     3,
	PriorityCritical: 4,
}

// Rank returns the sort weight of the priority; higher sorts first.
// Unknown priorities rank below low.
func (p Priority) Rank() int {
	return priorityRank[p]
}

// IsValid reports whether p is one of the known priorities.
func (p Priority) IsValid() bool {
	_, ok := priorityRank[p]
	return ok
}

// Task is a unit of work scoped to a project (the room id).
// epicId and parentTaskId are omitted from the wire form when null.
type Task struct {
	ID                  string     `json:"id" db:"id"`
	ProjectID           string     `json:"projectId" db:"project_id"`
	EpicID              *string    `json:"epicId,omitempty" db:"epic_id"`
	ParentTaskID        *string    `json:"parentTaskId,omitempty" db:"parent_task_id"`
	Title               string     `json:"title" db:"title"`
	Description         string     `json:"description" db:"description"`
	Status              TaskStatus `json:"status" db:"status"`
	Priority            Priority   `json:"priority" db:"priority"`
	AssignedAgent       *string    `json:"assignedAgent" db:"assigned_agent"`
	EstimatedHours      *float64   `json:"estimatedHours" db:"estimated_hours"`
	ActualHours         *float64   `json:"actualHours" db:"actual_hours"`
	RequiresHumanReview bool       `json:"requiresHumanReview" db:"requires_human_review"`
	HumanReviewNotes    *string    `json:"humanReviewNotes" db:"human_review_notes"`
	CreatedAt           time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt           time.Time  `json:"updatedAt" db:"updated_at"`
}

// Severity grades a blocker.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Blocker records one agent waiting on a task. At most one open row
// (resolvedAt null) exists per (taskId, blockedAgent); acked is
// meaningful only once resolvedAt is set.
type Blocker struct {
	ID                        string     `json:"id" db:"id"`
	ProjectID                 string     `json:"projectId" db:"project_id"`
	TaskID                    string     `json:"taskId" db:"task_id"`
	BlockedAgent              string     `json:"blockedAgent" db:"blocked_agent"`
	BlockingOwner             *string    `json:"blockingOwner" db:"blocking_owner"`
	Reason                    string     `json:"reason" db:"reason"`
	Severity                  Severity   `json:"severity" db:"severity"`
	RequiresHumanIntervention bool       `json:"requiresHumanIntervention" db:"requires_human_intervention"`
	ResolvedAt                *time.Time `json:"resolvedAt" db:"resolved_at"`
	ResolvedBy                *string    `json:"resolvedBy" db:"resolved_by"`
	ResolutionNote            *string    `json:"resolutionNote" db:"resolution_note"`
	Acked                     bool       `json:"acked" db:"acked"`
	LastNotified              *time.Time `json:"lastNotified" db:"last_notified"`
	CreatedAt                 time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt                 time.Time  `json:"updatedAt" db:"updated_at"`
}

// Resolved reports whether the blocker has been cleared.
func (b *Blocker) Resolved() bool {
	return b.ResolvedAt != nil
}

// AgentStatus is the coarse activity state an agent reports.
type AgentStatus string

const (
	AgentStatusOffline       AgentStatus = "offline"
	AgentStatusAvailable     AgentStatus = "available"
	AgentStatusBusy          AgentStatus = "busy"
	AgentStatusInProgress    AgentStatus = "in_progress"
	AgentStatusBlocked       AgentStatus = "blocked"
	AgentStatusAwaitingHuman AgentStatus = "awaiting_human"
	AgentStatusDone          AgentStatus = "done"
	AgentStatusError         AgentStatus = "error"
)

// ValidAgentStatuses lists every accepted agent status.
var ValidAgentStatuses = []AgentStatus{
	AgentStatusOffline, AgentStatusAvailable, AgentStatusBusy,
	AgentStatusInProgress, AgentStatusBlocked, AgentStatusAwaitingHuman,
	AgentStatusDone, AgentStatusError,
}

// IsValid reports whether s is one of the known agent statuses.
func (s AgentStatus) IsValid() bool {
	for _, v := range ValidAgentStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// AgentActivity is the last reported state of one agent, keyed by
// agentName. lastCheckIn and updatedAt are stamped on every upsert.
type AgentActivity struct {
	AgentName   string      `json:"agentName" db:"agent_name"`
	Status      AgentStatus `json:"status" db:"status"`
	TaskID      *string     `json:"taskId" db:"task_id"`
	Note        *string     `json:"note" db:"note"`
	LastCheckIn time.Time   `json:"lastCheckIn" db:"last_check_in"`
	UpdatedAt   time.Time   `json:"updatedAt" db:"updated_at"`
}

const (
	// DefaultMaxQueryHistory caps the per-room query history ring when
	// no override is configured.
	DefaultMaxQueryHistory = 100
	// DefaultMaxCoordinationPatterns caps the per-room coordination
	// pattern log when no override is configured.
	DefaultMaxCoordinationPatterns = 50
)

// QueryRecord is one docs query remembered in room state.
type QueryRecord struct {
	Query     string    `json:"query"`
	Topic     string    `json:"topic,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CoordinationPattern is one observed coordination event, such as an
// acknowledged unblock.
type CoordinationPattern struct {
	Pattern   string    `json:"pattern"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

// AgentPreferences is the per-agent slice of room state.
type AgentPreferences struct {
	PreferredTopics []string `json:"preferredTopics,omitempty"`
	LastQuery       string   `json:"lastQuery,omitempty"`
}

// RoomState is the durable per-room memory owned by the room actor and
// checkpointed to the store. Only the actor loop writes it.
type RoomState struct {
	RoomID               string                       `json:"roomId"`
	CreatedAt            time.Time                    `json:"createdAt"`
	LastActivity         time.Time                    `json:"lastActivity"`
	AgentPreferences     map[string]*AgentPreferences `json:"agentPreferences"`
	QueryHistory         []QueryRecord                `json:"queryHistory"`
	CoordinationPatterns []CoordinationPattern        `json:"coordinationPatterns"`

	// Ring caps, set from config by the room actor. Not serialized; a
	// state loaded from a checkpoint falls back to the defaults until
	// the actor calls SetCaps again.
	maxQueries  int
	maxPatterns int
}

// NewRoomState returns an empty state for roomID.
func NewRoomState(roomID string) *RoomState {
	now := time.Now().UTC()
	return &RoomState{
		RoomID:           roomID,
		CreatedAt:        now,
		LastActivity:     now,
		AgentPreferences: map[string]*AgentPreferences{},
	}
}

// PreferencesFor returns the preference slot for agent, creating it on
// first use.
func (s *RoomState) PreferencesFor(agent string) *AgentPreferences {
	if s.AgentPreferences == nil {
		s.AgentPreferences = map[string]*AgentPreferences{}
	}
	p, ok := s.AgentPreferences[agent]
	if !ok {
		p = &AgentPreferences{}
		s.AgentPreferences[agent] = p
	}
	return p
}

// SetCaps overrides the history ring sizes. Zero or negative values
// keep the defaults.
func (s *RoomState) SetCaps(maxQueries, maxPatterns int) {
	s.maxQueries = maxQueries
	s.maxPatterns = maxPatterns
}

// RecordQuery appends q, evicting the oldest entries past the query
// history cap.
func (s *RoomState) RecordQuery(q QueryRecord) {
	limit := s.maxQueries
	if limit <= 0 {
		limit = DefaultMaxQueryHistory
	}
	s.QueryHistory = append(s.QueryHistory, q)
	if n := len(s.QueryHistory); n > limit {
		s.QueryHistory = s.QueryHistory[n-limit:]
	}
}

// RecordPattern appends p, evicting the oldest entries past the
// coordination pattern cap.
func (s *RoomState) RecordPattern(p CoordinationPattern) {
	limit := s.maxPatterns
	if limit <= 0 {
		limit = DefaultMaxCoordinationPatterns
	}
	s.CoordinationPatterns = append(s.CoordinationPatterns, p)
	if n := len(s.CoordinationPatterns); n > limit {
		s.CoordinationPatterns = s.CoordinationPatterns[n-limit:]
	}
}

// TaskFilter narrows task listings. Zero values mean no constraint.
// Search matches as a substring against title, description, and
// assignedAgent. A non-nil TaskIDs restricts results to that set.
type TaskFilter struct {
	ProjectID    string
	EpicID       string
	ParentTaskID string
	Agent        string
	Status       TaskStatus
	Search       string
	TaskIDs      []string
}

// CreateTaskInput carries the fields accepted when creating a task.
// Status defaults to todo and priority to medium when unset.
type CreateTaskInput struct {
	ProjectID           string     `json:"projectId"`
	EpicID              *string    `json:"epicId"`
	ParentTaskID        *string    `json:"parentTaskId"`
	Title               string     `json:"title"`
	Description         string     `json:"description"`
	Status              TaskStatus `json:"status"`
	Priority            Priority   `json:"priority"`
	AssignedAgent       *string    `json:"assignedAgent"`
	EstimatedHours      *float64   `json:"estimatedHours"`
	RequiresHumanReview bool       `json:"requiresHumanReview"`
}

// StatusUpdate pairs a task with its target status for bulk updates.
type StatusUpdate struct {
	TaskID string     `json:"taskId"`
	Status TaskStatus `json:"status"`
}

// BlockInput carries the fields accepted when blocking a task.
// Severity defaults to medium when unset.
type BlockInput struct {
	ProjectID                 string   `json:"projectId"`
	TaskID                    string   `json:"taskId"`
	BlockedAgent              string   `json:"blockedAgent"`
	BlockingOwner             *string  `json:"blockingOwner"`
	Reason                    string   `json:"reason"`
	Severity                  Severity `json:"severity"`
	RequiresHumanIntervention bool     `json:"requiresHumanIntervention"`
}

// ResolveInput carries the fields accepted when resolving a blocker.
type ResolveInput struct {
	TaskID         string  `json:"taskId"`
	BlockedAgent   string  `json:"blockedAgent"`
	ResolvedBy     string  `json:"resolvedBy"`
	ResolutionNote *string `json:"resolutionNote"`
}

// ActivityInput carries the fields accepted on an agent check-in.
type ActivityInput struct {
	AgentName string      `json:"agentName"`
	Status    AgentStatus `json:"status"`
	TaskID    *string     `json:"taskId"`
	Note      *string     `json:"note"`
}

// TaskCounts is the per-status tally reported in room stats.
type TaskCounts struct {
	ByStatus map[TaskStatus]int `json:"byStatus"`
	Total    int                `json:"total"`
}

// RoomStats is the aggregate snapshot served on stats requests.
type RoomStats struct {
	RoomID          string          `json:"roomId"`
	Counts          TaskCounts      `json:"counts"`
	AgentActivity   []AgentActivity `json:"agentActivity"`
	UnackedBlockers []Blocker       `json:"unackedBlockers"`
	GeneratedAt     time.Time       `json:"generatedAt"`
}
