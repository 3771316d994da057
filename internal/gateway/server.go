// Package gateway is the HTTP and WebSocket ingress for the
// coordination room server: the /ws upgrade endpoint, the per-room
// broadcast injection route, and the health probe.
package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/config"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/httpmw"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/common/logger"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/events/bus"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/room"
	"github.com/jmbish04/core-agent-chatroom-api-sub000/internal/task/repository"
)

// Server is the ingress HTTP server.
type Server struct {
	cfg    config.ServerConfig
	mgr    *room.Manager
	store  repository.Store
	bus    bus.EventBus
	log    *logger.Logger
	engine *gin.Engine
	httpd  *http.Server
}

// New builds the router with the standard middleware chain.
func New(cfg config.ServerConfig, mgr *room.Manager, store repository.Store, eventBus bus.EventBus, log *logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(httpmw.CORS())
	engine.Use(httpmw.RequestLogger(log, "gateway"))
	engine.Use(httpmw.OtelTracing("gateway"))

	s := &Server{
		cfg:    cfg,
		mgr:    mgr,
		store:  store,
		bus:    eventBus,
		log:    log,
		engine: engine,
	}

	engine.GET("/ws", s.handleWS)
	engine.POST("/rooms/:roomId/broadcast", s.handleBroadcast)
	engine.GET("/health", s.handleHealth)
	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.httpd = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:      s.engine,
		ReadTimeout:  s.cfg.ReadTimeoutDuration(),
		WriteTimeout: s.cfg.WriteTimeoutDuration(),
	}
	if err := s.httpd.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpd == nil {
		return nil
	}
	return s.httpd.Shutdown(ctx)
}
