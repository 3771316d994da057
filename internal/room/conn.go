package room

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024

	// Outbound queue depth per connection.
	sendBufferSize = 256
)

var errSendBufferFull = errors.New("send buffer full")

// Conn is one WebSocket participant in a room. AgentName, ConnectedAt,
// and LastSeen are owned by the room actor goroutine; the pumps never
// touch them.
type Conn struct {
	ID   string
	room *Room
	ws   *websocket.Conn
	send chan []byte
	log  *logger.Logger

	AgentName   string
	ConnectedAt time.Time
	LastSeen    time.Time

	closeOnce sync.Once
}

func newConn(r *Room, ws *websocket.Conn) *Conn {
	id := uuid.New().String()
	now := time.Now().UTC()
	return &Conn{
		ID:          id,
		room:        r,
		ws:          ws,
		send:        make(chan []byte, sendBufferSize),
		log:         r.log.WithFields(zap.String("conn_id", id)),
		ConnectedAt: now,
		LastSeen:    now,
	}
}

// SendBytes queues an already-serialized frame without blocking. Only
// the room actor calls it, so the send channel is never closed under a
// concurrent push.
func (c *Conn) SendBytes(data []byte) error {
	select {
	case c.send <- data:
		return nil
	default:
		return errSendBufferFull
	}
}

// Label identifies the connection in logs, preferring the registered
// agent name.
func (c *Conn) Label() string {
	if c.AgentName != "" {
		return c.AgentName
	}
	return c.ID
}

// close terminates the underlying socket. Safe to call more than once.
func (c *Conn) close(code int, reason string) {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

// closeCodeForReadErr maps a read failure to the close code reported
// to the peer: 1000 when the peer hung up cleanly, 1011 otherwise.
func closeCodeForReadErr(err error) int {
	if err == nil {
		return websocket.CloseNormalClosure
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return websocket.CloseNormalClosure
	}
	return websocket.CloseInternalServerErr
}

// readPump reads frames off the socket and posts them to the room
// mailbox. It exits on any read error and detaches the connection.
func (c *Conn) readPump() {
	code := websocket.CloseNormalClosure
	defer func() {
		c.room.post(detachMsg{conn: c})
		c.close(code, "")
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			code = closeCodeForReadErr(err)
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		c.room.post(inboundMsg{conn: c, data: data})
	}
}

// writePump drains the send channel onto the socket and keeps the
// connection alive with periodic pings. The room actor closing the send
// channel ends the pump with a normal close handshake.
func (c *Conn) writePump() {
	code := websocket.CloseNormalClosure
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close(code, "")
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				code = websocket.CloseInternalServerErr
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				code = websocket.CloseInternalServerErr
				return
			}
		}
	}
}
