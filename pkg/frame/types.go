package frame

// Frame type names use dotted namespaces: tasks.*, agents.*, system.*,
// docs.*. Bare "ping"/"pong"/"error" are protocol-level.
const (
	TypePing  = "ping"
	TypePong  = "pong"
	TypeError = "error"

	TypeSystemWelcome   = "system.welcome"
	TypeSystemState     = "system.state"
	TypeSystemHeartbeat = "system.heartbeat"

	TypeAgentsRegister          = "agents.register"
	TypeAgentsRegistered        = "agents.registered"
	TypeAgentsRequestStats      = "agents.requestStats"
	TypeAgentsAckUnblock        = "agents.ackUnblock"
	TypeAgentsUnblockAck        = "agents.unblockAck"
	TypeAgentsUnblockedReminder = "agents.unblockedReminder"
	TypeAgentsPromptUpdate      = "agents.promptUpdate"
	TypeAgentsActivity          = "agents.activity"

	TypeTasksFetchByAgent      = "tasks.fetchByAgent"
	TypeTasksAgentSnapshot     = "tasks.agentSnapshot"
	TypeTasksFetchByID         = "tasks.fetchById"
	TypeTasksDetail            = "tasks.detail"
	TypeTasksSearch            = "tasks.search"
	TypeTasksSearchResults     = "tasks.searchResults"
	TypeTasksFetchOpen         = "tasks.fetchOpen"
	TypeTasksOpen              = "tasks.open"
	TypeTasksCreate            = "tasks.create"
	TypeTasksCreated           = "tasks.created"
	TypeTasksUpdateStatus      = "tasks.updateStatus"
	TypeTasksStatusUpdated     = "tasks.statusUpdated"
	TypeTasksBulkUpdateStatus  = "tasks.bulkUpdateStatus"
	TypeTasksBulkStatusUpdated = "tasks.bulkStatusUpdated"
	TypeTasksBulkReassign      = "tasks.bulkReassign"
	TypeTasksReassigned        = "tasks.reassigned"
	TypeTasksStats             = "tasks.stats"
	TypeTasksError             = "tasks.error"
	TypeTasksBlocked           = "tasks.blocked"
	TypeTasksUnblocked         = "tasks.unblocked"
	TypeTasksBlockedSummary    = "tasks.blockedSummary"

	TypeDocsQuery       = "docs.query"
	TypeDocsQueryResult = "docs.queryResult"
	TypeDocsError       = "docs.error"
)

// Error codes carried in tasks.error payloads.
const (
	ErrorCodeHandleFailed = "TASKS_HANDLE_FAILED"
)

// Meta keys with protocol meaning.
const (
	// MetaNotifyAgent overrides the reminder target on tasks.unblocked.
	MetaNotifyAgent = "notifyAgent"
)
