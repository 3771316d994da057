package frame

import (
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/logger"
	"go.uber.org/zap"
)

// Sender is the minimal connection surface the codec needs for fan-out.
type Sender interface {
	// SendBytes queues an already-serialized frame for delivery. It must
	// not block; a full or dead connection returns an error.
	SendBytes(data []byte) error
	// Label identifies the connection in logs.
	Label() string
}

// Broadcast serializes the frame once and delivers it to every sender.
// A per-connection send failure is logged and skipped; the remaining
// senders still receive the frame. Returns the number of deliveries.
func Broadcast(senders []Sender, f *Frame, log *logger.Logger) int {
	data, err := Serialize(f)
	if err != nil {
		if log != nil {
			log.Error("failed to serialize frame", zap.String("type", f.Type), zap.Error(err))
		}
		return 0
	}

	delivered := 0
	for _, s := range senders {
		if err := s.SendBytes(data); err != nil {
			if log != nil {
				log.Warn("skipping peer on send error",
					zap.String("type", f.Type),
					zap.String("peer", s.Label()),
					zap.Error(err))
			}
			continue
		}
		delivered++
	}
	return delivered
}
