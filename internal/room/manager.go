package room

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/config"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/logger"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/docs"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/task/service"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/pkg/frame"
)

// Manager creates rooms on first use and drops them once their actor
// reaps itself.
type Manager struct {
	cfg  config.RoomConfig
	svc  *service.Service
	docs docs.Tool
	log  *logger.Logger

	mu       sync.Mutex
	rooms    map[string]*Room
	shutdown bool
}

// NewManager creates the room registry. docsTool may be nil; rooms
// then answer docs.query with docs.error.
func NewManager(cfg config.RoomConfig, svc *service.Service, docsTool docs.Tool, log *logger.Logger) *Manager {
	return &Manager{
		cfg:   cfg,
		svc:   svc,
		docs:  docsTool,
		log:   log,
		rooms: make(map[string]*Room),
	}
}

// Get returns the room actor for roomID, creating and starting it on
// first use.
func (m *Manager) Get(roomID string) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shutdown {
		return nil, ErrRoomClosed
	}
	if r, ok := m.rooms[roomID]; ok && !r.Closed() {
		return r, nil
	}
	r := newRoom(roomID, m.cfg, m.svc, m.docs, m.log, m.drop)
	m.rooms[roomID] = r
	go r.run()
	m.log.WithRoom(roomID).Debug("room created")
	return r, nil
}

// Inject routes a server frame into the owning room, creating the room
// when it does not exist yet. A room that reaps itself mid-delivery is
// recreated once.
func (m *Manager) Inject(ctx context.Context, roomID string, f *frame.Frame) error {
	for attempt := 0; attempt < 2; attempt++ {
		r, err := m.Get(roomID)
		if err != nil {
			return err
		}
		err = r.Inject(ctx, f)
		if errors.Is(err, ErrRoomClosed) {
			continue
		}
		return err
	}
	return ErrRoomClosed
}

// drop removes a reaped room. Only the exact instance is removed so a
// replacement created in the meantime survives.
func (m *Manager) drop(r *Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.rooms[r.id]; ok && current == r {
		delete(m.rooms, r.id)
	}
}

// CheckpointAll persists the state of every live room. Failures are
// logged per room; the first error is returned.
func (m *Manager) CheckpointAll(ctx context.Context) error {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.Unlock()

	var first error
	for _, r := range rooms {
		if err := r.Checkpoint(ctx); err != nil && !errors.Is(err, ErrRoomClosed) {
			m.log.WithRoom(r.id).Warn("room checkpoint failed", zap.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Shutdown stops every room actor and waits for them to exit. The
// manager refuses new rooms afterwards.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	m.shutdown = true
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.Unlock()

	for _, r := range rooms {
		r.Stop()
	}
	for _, r := range rooms {
		select {
		case <-r.stopped:
		case <-ctx.Done():
			m.log.Warn("shutdown deadline reached before rooms drained")
			return
		}
	}
}

// Count reports how many rooms are live.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}
