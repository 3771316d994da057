package gateway

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jmbish04/core-agent-chatroom-api-sub000/pkg/frame"
)

// injectTimeout bounds how long a broadcast request may wait on a full
// room mailbox before answering 503.
const injectTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Agents connect from anywhere; rooms are not origin-scoped.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS upgrades GET /ws?room={id} and hands the socket to the room
// actor.
func (s *Server) handleWS(c *gin.Context) {
	if !websocket.IsWebSocketUpgrade(c.Request) {
		c.JSON(http.StatusUpgradeRequired, gin.H{"error": "websocket upgrade required"})
		return
	}
	roomID := c.Query("room")
	if roomID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room query parameter is required"})
		return
	}

	r, err := s.mgr.Get(roomID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server is shutting down"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the failure response.
		s.log.WithRoom(roomID).Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	if _, err := r.Attach(ws); err != nil {
		s.log.WithRoom(roomID).Warn("room refused connection", zap.Error(err))
		_ = ws.Close()
	}
}

// handleBroadcast injects a server frame into the owning room. A frame
// that does not parse is the caller's bug (500); a room that cannot
// accept within the ceiling answers 503.
func (s *Server) handleBroadcast(c *gin.Context) {
	roomID := c.Param("roomId")

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "unreadable body"})
		return
	}
	f, err := frame.Deserialize(body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "malformed frame"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), injectTimeout)
	defer cancel()
	if err := s.mgr.Inject(ctx, roomID, f); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleHealth reports liveness plus store and bus reachability.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
	defer cancel()

	storeOK := true
	if _, err := s.store.GetTaskCounts(ctx); err != nil {
		storeOK = false
	}
	busOK := s.bus != nil && s.bus.IsConnected()

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"store":  storeOK,
		"bus":    busOK,
		"rooms":  s.mgr.Count(),
	})
}
