package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/encounterlive/encounterd/pkg/chat"
	"github.com/encounterlive/encounterd/pkg/models"
)

// sendMessageHandler handles POST /api/v1/rooms/:interactionID/chat/messages.
func (s *Server) sendMessageHandler(c *echo.Context) error {
	r, err := s.getRoom(c)
	if err != nil {
		return err
	}

	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var entityID string
	if p, err := r.Participant(extractUser(c)); err == nil {
		entityID = p.EntityID
	}

	msg, err := s.chat.Send(r, extractUser(c), chat.SendRequest{
		Content:    req.Content,
		Type:       req.Type,
		EntityID:   entityID,
		Recipients: req.Recipients,
	})
	if err != nil {
		return mapServiceError(err)
	}
	r.Touch()
	return c.JSON(http.StatusCreated, msg)
}

// chatHistoryHandler handles GET /api/v1/rooms/:interactionID/chat/history.
// Visibility is evaluated per caller; the DM sees every message.
// Optional query parameters: channel_type, limit.
func (s *Server) chatHistoryHandler(c *echo.Context) error {
	r, err := s.getRoom(c)
	if err != nil {
		return err
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
	}
	channelType := models.MessageType(c.QueryParam("channel_type"))

	messages, total := s.chat.History(r, extractUser(c), isDM(c), channelType, limit)
	return c.JSON(http.StatusOK, &ChatHistoryResponse{Messages: messages, TotalCount: total})
}
