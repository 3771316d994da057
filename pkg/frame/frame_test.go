package frame

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/logger"
)

func TestNewMarshalsPayload(t *testing.T) {
	f, err := New(TypeTasksCreated, map[string]string{"taskId": "t-1"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if f.Type != TypeTasksCreated {
		t.Errorf("expected type %s, got %s", TypeTasksCreated, f.Type)
	}

	var payload map[string]string
	if err := f.ParsePayload(&payload); err != nil {
		t.Fatalf("ParsePayload failed: %v", err)
	}
	if payload["taskId"] != "t-1" {
		t.Errorf("expected taskId t-1, got %s", payload["taskId"])
	}
}

func TestNewReplyCarriesRequestID(t *testing.T) {
	f, err := NewReply("req-42", TypeTasksDetail, map[string]any{"task": nil})
	if err != nil {
		t.Fatalf("NewReply failed: %v", err)
	}
	if f.RequestID != "req-42" {
		t.Errorf("expected requestId req-42, got %s", f.RequestID)
	}
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	original := &Frame{
		Type:      TypeTasksBlocked,
		Payload:   json.RawMessage(`{"blocker":{"taskId":"t-9","blockedAgent":"A"}}`),
		Meta:      map[string]any{"notifyAgent": "A"},
		RequestID: "r-1",
	}

	data, err := Serialize(original)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	decoded, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	if decoded.Type != original.Type || decoded.RequestID != original.RequestID {
		t.Errorf("envelope fields lost in round trip: %+v", decoded)
	}
	if decoded.MetaString(MetaNotifyAgent) != "A" {
		t.Errorf("meta lost in round trip: %v", decoded.Meta)
	}

	// A second serialize of the decoded frame is byte-identical: the
	// payload is raw JSON and is never re-encoded.
	again, err := Serialize(decoded)
	if err != nil {
		t.Fatalf("second Serialize failed: %v", err)
	}
	if string(again) != string(data) {
		t.Errorf("round trip not stable:\n first %s\nsecond %s", data, again)
	}
}

func TestDeserializeMalformed(t *testing.T) {
	f, err := Deserialize([]byte(`{not json`))
	if err == nil {
		t.Fatal("expected an error for malformed input")
	}
	if f == nil {
		t.Fatal("expected a synthetic frame, got nil")
	}
	if f.Type != TypeError {
		t.Errorf("expected synthetic type %q, got %q", TypeError, f.Type)
	}

	var payload ErrorPayload
	if err := f.ParsePayload(&payload); err != nil {
		t.Fatalf("ParsePayload failed: %v", err)
	}
	if payload.Message != "Malformed payload" {
		t.Errorf("expected synthetic message, got %q", payload.Message)
	}
}

func TestNewErrorFrame(t *testing.T) {
	f := NewError("req-7", TypeTasksError, ErrorCodeHandleFailed, "agentName is required")
	if f.RequestID != "req-7" {
		t.Errorf("expected requestId to be echoed, got %q", f.RequestID)
	}

	var payload ErrorPayload
	if err := f.ParsePayload(&payload); err != nil {
		t.Fatalf("ParsePayload failed: %v", err)
	}
	if payload.Code != ErrorCodeHandleFailed {
		t.Errorf("expected code %s, got %s", ErrorCodeHandleFailed, payload.Code)
	}
	if !strings.Contains(payload.Message, "agentName") {
		t.Errorf("unexpected message %q", payload.Message)
	}
}

type fakeSender struct {
	label string
	sent  [][]byte
	fail  bool
}

func (s *fakeSender) SendBytes(data []byte) error {
	if s.fail {
		return errors.New("send buffer full")
	}
	s.sent = append(s.sent, data)
	return nil
}

func (s *fakeSender) Label() string { return s.label }

func TestBroadcastSkipsFailedSender(t *testing.T) {
	good1 := &fakeSender{label: "c1"}
	bad := &fakeSender{label: "c2", fail: true}
	good2 := &fakeSender{label: "c3"}

	f, _ := New(TypeSystemHeartbeat, map[string]any{"ts": 1, "peers": 3})
	delivered := Broadcast([]Sender{good1, bad, good2}, f, logger.Default())

	if delivered != 2 {
		t.Errorf("expected 2 deliveries, got %d", delivered)
	}
	if len(good1.sent) != 1 || len(good2.sent) != 1 {
		t.Error("expected both healthy senders to receive the frame")
	}
	if string(good1.sent[0]) != string(good2.sent[0]) {
		t.Error("expected a single serialized form for all peers")
	}
}

func TestBroadcastEmptySet(t *testing.T) {
	f, _ := New(TypeSystemState, map[string]any{"count": 0})
	if delivered := Broadcast(nil, f, logger.Default()); delivered != 0 {
		t.Errorf("expected 0 deliveries, got %d", delivered)
	}
}
