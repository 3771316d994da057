package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/logger"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/events"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/events/bus"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/room"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/pkg/frame"
)

// FrameBridge forwards room.frame.inject.* bus events into local room
// actors, giving out-of-process producers a NATS path equivalent to the
// broadcast endpoint.
type FrameBridge struct {
	sub bus.Subscription
	log *logger.Logger
}

// StartFrameBridge subscribes to the injection wildcard subject.
func StartFrameBridge(eventBus bus.EventBus, mgr *room.Manager, log *logger.Logger) (*FrameBridge, error) {
	b := &FrameBridge{log: log}
	sub, err := eventBus.Subscribe(events.BuildRoomFrameWildcardSubject(), func(ctx context.Context, event *bus.Event) error {
		roomID := events.RoomIDFromFrameSubject(event.Type)
		if roomID == "" {
			return fmt.Errorf("injection event without room subject: %s", event.Type)
		}
		f, err := frameFromEvent(event)
		if err != nil {
			log.WithRoom(roomID).Warn("dropping undecodable injection event", zap.Error(err))
			return err
		}
		ictx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := mgr.Inject(ictx, roomID, f); err != nil {
			log.WithRoom(roomID).Warn("bus frame injection failed",
				zap.String("frame_type", f.Type),
				zap.Error(err))
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	b.sub = sub
	return b, nil
}

// Stop unsubscribes the bridge.
func (b *FrameBridge) Stop() {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
}

// frameFromEvent decodes the frame carried under the event's "frame"
// key, accepting either an embedded object or a pre-serialized string.
func frameFromEvent(event *bus.Event) (*frame.Frame, error) {
	raw, ok := event.Data["frame"]
	if !ok {
		return nil, fmt.Errorf("injection event missing frame data")
	}

	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode frame data: %w", err)
		}
		data = encoded
	}

	f, err := frame.Deserialize(data)
	if err != nil {
		return nil, err
	}
	return f, nil
}
