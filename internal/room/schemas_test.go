package room

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmbish04/core-agent-chatroom-api-sub000/pkg/frame"
)

func TestValidatePayloadAcceptsWellFormedFrames(t *testing.T) {
	cases := map[string]string{
		frame.TypeAgentsRegister:    `{"agentName":"builder","preferredTopics":["deploys"]}`,
		frame.TypeAgentsAckUnblock:  `{"taskId":"t1","agentName":"builder"}`,
		frame.TypeTasksFetchByAgent: `{"agent":"builder"}`,
		frame.TypeTasksFetchByID:    `{"id":"t1"}`,
		frame.TypeTasksSearch:       `{"query":"deploy","status":"todo"}`,
		frame.TypeTasksCreate:       `{"title":"ship it","estimatedHours":1.5}`,
		frame.TypeTasksUpdateStatus: `{"taskId":"t1","status":"done"}`,
		frame.TypeTasksBulkUpdateStatus: `{
			"updates":[{"taskId":"t1","status":"done"},{"taskId":"t2","status":"todo"}]
		}`,
		frame.TypeTasksBulkReassign: `{"taskIds":["t1","t2"],"agent":"builder"}`,
		frame.TypeDocsQuery:         `{"query":"how to release","maxResults":2}`,
	}
	for frameType, payload := range cases {
		f := &frame.Frame{Type: frameType, Payload: json.RawMessage(payload)}
		assert.NoError(t, validatePayload(f), frameType)
	}
}

func TestValidatePayloadRejectsMissingFields(t *testing.T) {
	cases := map[string]string{
		frame.TypeAgentsRegister:        `{}`,
		frame.TypeAgentsAckUnblock:      `{"taskId":"t1"}`,
		frame.TypeTasksFetchByID:        `{"id":""}`,
		frame.TypeTasksFetchByAgent:     `{"agentName":"builder"}`,
		frame.TypeTasksSearch:           `{}`,
		frame.TypeTasksCreate:           `{"description":"no title"}`,
		frame.TypeTasksUpdateStatus:     `{"status":"done"}`,
		frame.TypeTasksBulkUpdateStatus: `{"updates":[]}`,
		frame.TypeTasksBulkReassign:     `{"taskIds":[],"agent":"builder"}`,
		frame.TypeDocsQuery:             `{"maxResults":2}`,
	}
	for frameType, payload := range cases {
		f := &frame.Frame{Type: frameType, Payload: json.RawMessage(payload)}
		assert.Error(t, validatePayload(f), frameType)
	}
}

func TestValidatePayloadRejectsMissingPayload(t *testing.T) {
	f := &frame.Frame{Type: frame.TypeTasksCreate}
	require.Error(t, validatePayload(f))
}

func TestValidatePayloadSkipsUnknownTypes(t *testing.T) {
	f := &frame.Frame{Type: "chat.message", Payload: json.RawMessage(`{"anything":true}`)}
	assert.NoError(t, validatePayload(f))

	// Payload-free request types carry no schema.
	assert.NoError(t, validatePayload(&frame.Frame{Type: frame.TypeTasksFetchOpen}))
	assert.NoError(t, validatePayload(&frame.Frame{Type: frame.TypeAgentsRequestStats}))
}
