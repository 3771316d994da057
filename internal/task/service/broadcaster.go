package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jmbish04/core-agent-chatroom-api-sub000/pkg/frame"
)

// FrameInjector delivers a server-originated frame into the room actor
// that owns roomID.
type FrameInjector interface {
	Inject(ctx context.Context, roomID string, f *frame.Frame) error
}

// HTTPBroadcaster injects frames through the per-room broadcast
// endpoint. The HTTP path is used even when the room actor runs in the
// same process, so server-frame side effects always execute through the
// one code path.
type HTTPBroadcaster struct {
	baseURL string
	client  *http.Client
}

// NewHTTPBroadcaster targets a gateway at baseURL, e.g.
// "http://127.0.0.1:8080".
func NewHTTPBroadcaster(baseURL string) *HTTPBroadcaster {
	return &HTTPBroadcaster{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Inject POSTs the serialized frame to /rooms/{roomID}/broadcast.
func (b *HTTPBroadcaster) Inject(ctx context.Context, roomID string, f *frame.Frame) error {
	body, err := frame.Serialize(f)
	if err != nil {
		return fmt.Errorf("failed to serialize frame: %w", err)
	}
	url := fmt.Sprintf("%s/rooms/%s/broadcast", b.baseURL, roomID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build broadcast request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("broadcast request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("broadcast rejected with status %d", resp.StatusCode)
	}
	return nil
}
