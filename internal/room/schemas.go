package room

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/jmbish04/core-agent-chatroom-api-sub000/pkg/frame"
)

// Inbound payload schemas, one per client frame type that carries a
// payload. Frames without a registered schema skip validation.
var payloadSchemaJSON = map[string]string{
	frame.TypeAgentsRegister: `{
		"type": "object",
		"required": ["agentName"],
		"properties": {
			"agentName": {"type": "string", "minLength": 1},
			"preferredTopics": {"type": "array", "items": {"type": "string"}}
		}
	}`,
	frame.TypeAgentsAckUnblock: `{
		"type": "object",
		"required": ["taskId", "agentName"],
		"properties": {
			"taskId": {"type": "string", "minLength": 1},
			"agentName": {"type": "string", "minLength": 1}
		}
	}`,
	frame.TypeTasksFetchByAgent: `{
		"type": "object",
		"required": ["agent"],
		"properties": {
			"agent": {"type": "string", "minLength": 1}
		}
	}`,
	frame.TypeTasksFetchByID: `{
		"type": "object",
		"required": ["id"],
		"properties": {
			"id": {"type": "string", "minLength": 1}
		}
	}`,
	frame.TypeTasksSearch: `{
		"type": "object",
		"required": ["query"],
		"properties": {
			"query": {"type": "string", "minLength": 1},
			"projectId": {"type": "string"},
			"status": {"type": "string"},
			"agent": {"type": "string"}
		}
	}`,
	frame.TypeTasksCreate: `{
		"type": "object",
		"required": ["title"],
		"properties": {
			"projectId": {"type": "string"},
			"epicId": {"type": ["string", "null"]},
			"parentTaskId": {"type": ["string", "null"]},
			"title": {"type": "string", "minLength": 1},
			"description": {"type": "string"},
			"status": {"type": "string"},
			"priority": {"type": "string"},
			"assignedAgent": {"type": ["string", "null"]},
			"estimatedHours": {"type": ["number", "null"]},
			"requiresHumanReview": {"type": "boolean"}
		}
	}`,
	frame.TypeTasksUpdateStatus: `{
		"type": "object",
		"required": ["taskId", "status"],
		"properties": {
			"taskId": {"type": "string", "minLength": 1},
			"status": {"type": "string", "minLength": 1}
		}
	}`,
	frame.TypeTasksBulkUpdateStatus: `{
		"type": "object",
		"required": ["updates"],
		"properties": {
			"updates": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"required": ["taskId", "status"],
					"properties": {
						"taskId": {"type": "string", "minLength": 1},
						"status": {"type": "string", "minLength": 1}
					}
				}
			}
		}
	}`,
	frame.TypeTasksBulkReassign: `{
		"type": "object",
		"required": ["taskIds", "agent"],
		"properties": {
			"taskIds": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}},
			"agent": {"type": "string", "minLength": 1}
		}
	}`,
	frame.TypeDocsQuery: `{
		"type": "object",
		"required": ["query"],
		"properties": {
			"query": {"type": "string", "minLength": 1},
			"topic": {"type": "string"},
			"maxResults": {"type": "integer", "minimum": 1}
		}
	}`,
}

var payloadSchemas = compilePayloadSchemas()

// compilePayloadSchemas compiles every inbound schema once at package
// init. Use jsonschema.UnmarshalJSON for correct number handling.
func compilePayloadSchemas() map[string]*jsonschema.Schema {
	compiled := make(map[string]*jsonschema.Schema, len(payloadSchemaJSON))
	for frameType, raw := range payloadSchemaJSON {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
		if err != nil {
			panic(fmt.Sprintf("unmarshal %s schema: %v", frameType, err))
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("schema.json", doc); err != nil {
			panic(fmt.Sprintf("add %s schema resource: %v", frameType, err))
		}
		schema, err := c.Compile("schema.json")
		if err != nil {
			panic(fmt.Sprintf("compile %s schema: %v", frameType, err))
		}
		compiled[frameType] = schema
	}
	return compiled
}

// validatePayload checks f's payload against the schema registered for
// its type. Types without a schema pass unconditionally.
func validatePayload(f *frame.Frame) error {
	schema, ok := payloadSchemas[f.Type]
	if !ok {
		return nil
	}
	if len(f.Payload) == 0 {
		return fmt.Errorf("%s requires a payload", f.Type)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(f.Payload))
	if err != nil {
		return fmt.Errorf("invalid %s payload: %w", f.Type, err)
	}
	if err := schema.Validate(inst); err != nil {
		return fmt.Errorf("invalid %s payload: %w", f.Type, err)
	}
	return nil
}
