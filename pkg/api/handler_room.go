package api

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/encounterlive/encounterd/pkg/models"
	"github.com/encounterlive/encounterd/pkg/room"
	"github.com/encounterlive/encounterd/pkg/version"
)

// healthHandler handles GET /api/v1/health.
func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, &HealthResponse{
		Status:    "healthy",
		Version:   version.Full(),
		Rooms:     s.rooms.Count(),
		Timestamp: time.Now(),
	})
}

// listRoomsHandler handles GET /api/v1/rooms.
func (s *Server) listRoomsHandler(c *echo.Context) error {
	rooms := s.rooms.RoomList()
	return c.JSON(http.StatusOK, &StatsResponse{
		Summary: s.rooms.Stats(),
		Rooms:   rooms,
		Count:   len(rooms),
	})
}

// joinRoomHandler handles POST /api/v1/rooms/:interactionID/join.
// The room is created on first join; a repeated join by the same user
// is a reconnect.
func (s *Server) joinRoomHandler(c *echo.Context) error {
	interactionID := c.Param("interactionID")
	if interactionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "interaction id is required")
	}

	var req JoinRoomRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	r, err := s.rooms.GetOrCreate(c.Request().Context(), interactionID)
	if err != nil {
		return mapServiceError(err)
	}

	entityType := req.EntityType
	if isDM(c) && entityType == "" {
		entityType = models.EntityTypeNPC
	}

	participant, err := r.Join(room.JoinRequest{
		UserID:     extractUser(c),
		EntityID:   req.EntityID,
		EntityType: entityType,
		Initiative: req.Initiative,
		Position:   req.Position,
		MaxHP:      req.MaxHP,
	})
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, &JoinRoomResponse{
		Participant: *participant,
		State:       r.State(),
	})
}

// leaveRoomHandler handles POST /api/v1/rooms/:interactionID/leave.
func (s *Server) leaveRoomHandler(c *echo.Context) error {
	r, err := s.getRoom(c)
	if err != nil {
		return err
	}
	if err := r.Leave(extractUser(c)); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, okResponse)
}

// roomStateHandler handles GET /api/v1/rooms/:interactionID/state.
func (s *Server) roomStateHandler(c *echo.Context) error {
	r, err := s.getRoom(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, &RoomStateResponse{
		State:        r.State(),
		Participants: r.Participants(),
	})
}

// activateHandler handles POST /api/v1/rooms/:interactionID/activate.
func (s *Server) activateHandler(c *echo.Context) error {
	r, err := s.getRoom(c)
	if err != nil {
		return err
	}
	if err := r.Engine().Activate(); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, okResponse)
}

// pauseHandler handles POST /api/v1/rooms/:interactionID/pause.
func (s *Server) pauseHandler(c *echo.Context) error {
	r, err := s.getRoom(c)
	if err != nil {
		return err
	}
	if err := r.Pause(); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, okResponse)
}

// resumeHandler handles POST /api/v1/rooms/:interactionID/resume.
func (s *Server) resumeHandler(c *echo.Context) error {
	r, err := s.getRoom(c)
	if err != nil {
		return err
	}
	if err := r.Resume(); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, okResponse)
}

// completeHandler handles POST /api/v1/rooms/:interactionID/complete.
func (s *Server) completeHandler(c *echo.Context) error {
	r, err := s.getRoom(c)
	if err != nil {
		return err
	}
	if err := r.Complete(); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, okResponse)
}
