// Package frame provides the typed JSON envelope exchanged over WebSocket
// connections and injected through the room broadcast endpoint.
package frame

import (
	"encoding/json"
	"fmt"
)

// Frame is the wire envelope for every inter-agent message. Payload is kept
// as raw JSON so a frame round-trips byte-identically through the codec.
// RequestID correlates a unicast reply with its originating request.
type Frame struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Meta      map[string]any  `json:"meta,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
}

// ErrorPayload is the payload shape of tasks.error and docs.error frames.
type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// New builds a frame of the given type, marshaling payload to JSON.
func New(frameType string, payload any) (*Frame, error) {
	f := &Frame{Type: frameType}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", frameType, err)
		}
		f.Payload = data
	}
	return f, nil
}

// NewReply builds a frame carrying the requestId of the frame it answers.
func NewReply(requestID, frameType string, payload any) (*Frame, error) {
	f, err := New(frameType, payload)
	if err != nil {
		return nil, err
	}
	f.RequestID = requestID
	return f, nil
}

// NewError builds an error frame of the given type (tasks.error or
// docs.error) correlated with requestID.
func NewError(requestID, frameType, code, message string) *Frame {
	data, _ := json.Marshal(ErrorPayload{Code: code, Message: message})
	return &Frame{Type: frameType, Payload: data, RequestID: requestID}
}

// Malformed is the synthetic frame the codec yields for undecodable input.
func Malformed() *Frame {
	data, _ := json.Marshal(ErrorPayload{Message: "Malformed payload"})
	return &Frame{Type: TypeError, Payload: data}
}

// WithMeta sets a meta key on the frame, allocating the map on first use,
// and returns the frame for chaining.
func (f *Frame) WithMeta(key string, value any) *Frame {
	if f.Meta == nil {
		f.Meta = make(map[string]any)
	}
	f.Meta[key] = value
	return f
}

// MetaString returns the string value of a meta key, or "" when absent or
// not a string.
func (f *Frame) MetaString(key string) string {
	if f.Meta == nil {
		return ""
	}
	s, _ := f.Meta[key].(string)
	return s
}

// ParsePayload parses the payload into the given struct.
func (f *Frame) ParsePayload(v any) error {
	if f.Payload == nil {
		return nil
	}
	return json.Unmarshal(f.Payload, v)
}

// Serialize encodes the frame as UTF-8 JSON.
func Serialize(f *Frame) ([]byte, error) {
	return json.Marshal(f)
}

// Deserialize decodes frame bytes. It always returns a usable frame: on
// malformed input the synthetic error frame is returned together with the
// parse error so the router can log it without closing the connection.
func Deserialize(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Malformed(), fmt.Errorf("decode frame: %w", err)
	}
	return &f, nil
}
