// Package events defines the bus subjects the coordination room server
// publishes on. External adapters (REST, RPC, MCP) subscribe to these to
// mirror task and agent state without a WebSocket connection.
package events

// Event types for tasks
const (
	TaskCreated           = "task.created"
	TaskStatusChanged     = "task.status_changed"
	TaskReassigned        = "task.reassigned"
	TaskBlocked           = "task.blocked"
	TaskUnblocked         = "task.unblocked"
	TaskBlockAcknowledged = "task.block_acknowledged"
)

// Event types for agents
const (
	AgentActivityUpdated = "agent.activity_updated"
)

// Event types for room frame injection. Out-of-process producers publish a
// serialized frame on room.frame.inject.{roomId}; the gateway bridge feeds
// it into the local room actor, equivalent to POST /rooms/{roomId}/broadcast.
const (
	RoomFrameInject = "room.frame.inject"
)

// BuildRoomFrameSubject creates a frame-injection subject for a specific room.
func BuildRoomFrameSubject(roomID string) string {
	return RoomFrameInject + "." + roomID
}

// BuildRoomFrameWildcardSubject creates a wildcard subscription for all
// frame-injection events.
func BuildRoomFrameWildcardSubject() string {
	return RoomFrameInject + ".*"
}

// RoomIDFromFrameSubject extracts the room id from a frame-injection
// subject. Returns "" when the subject is not a frame-injection subject.
func RoomIDFromFrameSubject(subject string) string {
	prefix := RoomFrameInject + "."
	if len(subject) <= len(prefix) || subject[:len(prefix)] != prefix {
		return ""
	}
	return subject[len(prefix):]
}
