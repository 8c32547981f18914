// Package api exposes the HTTP and WebSocket operation surface.
// Authentication is delegated to a fronting proxy; handlers trust the
// identity headers it injects and enforce role and ownership rules on
// top of them.
package api

import (
	"context"
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/encounterlive/encounterd/pkg/broadcast"
	"github.com/encounterlive/encounterd/pkg/chat"
	"github.com/encounterlive/encounterd/pkg/config"
	"github.com/encounterlive/encounterd/pkg/room"
)

// Server wires the room manager, chat service, and broadcaster to the
// HTTP surface.
type Server struct {
	cfg         *config.ServerConfig
	rooms       *room.Manager
	chat        *chat.Service
	broadcaster *broadcast.Broadcaster
	httpServer  *http.Server
}

// NewServer creates a new API server.
func NewServer(cfg *config.ServerConfig, rooms *room.Manager, chatSvc *chat.Service, broadcaster *broadcast.Broadcaster) *Server {
	if cfg == nil {
		cfg = config.DefaultServerConfig()
	}
	return &Server{
		cfg:         cfg,
		rooms:       rooms,
		chat:        chatSvc,
		broadcaster: broadcaster,
	}
}

// Handler builds the echo instance with all routes registered.
func (s *Server) Handler() *echo.Echo {
	e := echo.New()
	e.Use(securityHeaders())

	e.GET("/metrics", func(c *echo.Context) error {
		promhttp.Handler().ServeHTTP(c.Response(), c.Request())
		return nil
	})

	v1 := e.Group("/api/v1")
	v1.GET("/health", s.healthHandler)

	rooms := v1.Group("/rooms", requireUser())
	rooms.GET("", s.listRoomsHandler)
	rooms.POST("/:interactionID/join", s.joinRoomHandler)
	rooms.POST("/:interactionID/leave", s.leaveRoomHandler)
	rooms.GET("/:interactionID/state", s.roomStateHandler)
	rooms.POST("/:interactionID/turn", s.turnActionHandler)
	rooms.POST("/:interactionID/skip", s.skipTurnHandler)
	rooms.GET("/:interactionID/queue", s.listQueueHandler)
	rooms.DELETE("/:interactionID/queue/:queuedActionID", s.cancelQueuedActionHandler)
	rooms.POST("/:interactionID/chat/messages", s.sendMessageHandler)
	rooms.GET("/:interactionID/chat/history", s.chatHistoryHandler)

	dm := rooms.Group("", requireDM())
	dm.POST("/:interactionID/activate", s.activateHandler)
	dm.POST("/:interactionID/pause", s.pauseHandler)
	dm.POST("/:interactionID/resume", s.resumeHandler)
	dm.POST("/:interactionID/complete", s.completeHandler)
	dm.POST("/:interactionID/backtrack", s.backtrackHandler)
	dm.POST("/:interactionID/redo", s.redoHandler)
	dm.PUT("/:interactionID/initiative", s.updateInitiativeHandler)

	v1.GET("/ws", s.wsHandler, requireUser())

	return e
}

// Start serves HTTP on the given address. Blocks until shutdown.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// getRoom resolves the :interactionID path parameter to a live room.
func (s *Server) getRoom(c *echo.Context) (*room.Room, error) {
	interactionID := c.Param("interactionID")
	if interactionID == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "interaction id is required")
	}
	r, err := s.rooms.Get(interactionID)
	if err != nil {
		return nil, mapServiceError(err)
	}
	return r, nil
}
