package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/encounterlive/encounterd/pkg/broadcast"
	"github.com/encounterlive/encounterd/pkg/chat"
	"github.com/encounterlive/encounterd/pkg/engine"
	"github.com/encounterlive/encounterd/pkg/room"
)

// mapServiceError maps service-layer errors to HTTP error responses.
func mapServiceError(err error) *echo.HTTPError {
	var roomValidErr *room.ValidationError
	if errors.As(err, &roomValidErr) {
		return echo.NewHTTPError(http.StatusBadRequest, roomValidErr.Error())
	}
	var chatValidErr *chat.ValidationError
	if errors.As(err, &chatValidErr) {
		return echo.NewHTTPError(http.StatusBadRequest, chatValidErr.Error())
	}
	if errors.Is(err, room.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "room not found")
	}
	if errors.Is(err, room.ErrAlreadyExists) {
		return echo.NewHTTPError(http.StatusConflict, "room already exists")
	}
	if errors.Is(err, room.ErrParticipantNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "participant not found")
	}
	if errors.Is(err, room.ErrPermissionDenied) {
		return echo.NewHTTPError(http.StatusForbidden, "permission denied")
	}
	if errors.Is(err, room.ErrRoomCompleted) {
		return echo.NewHTTPError(http.StatusConflict, "room is completed")
	}
	if errors.Is(err, room.ErrShuttingDown) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "server is shutting down")
	}
	if errors.Is(err, engine.ErrInvalidState) {
		return echo.NewHTTPError(http.StatusConflict, "operation not allowed in current game state")
	}
	if errors.Is(err, engine.ErrTurnRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "turn record not found")
	}
	if errors.Is(err, engine.ErrNotYourTurn) {
		return echo.NewHTTPError(http.StatusConflict, "current turn belongs to a different entity")
	}
	if errors.Is(err, engine.ErrQueueDisabled) {
		return echo.NewHTTPError(http.StatusConflict, "action queue is disabled")
	}
	if errors.Is(err, engine.ErrEntityExists) {
		return echo.NewHTTPError(http.StatusConflict, "entity already exists")
	}
	if errors.Is(err, chat.ErrRateLimited) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
	}
	if errors.Is(err, chat.ErrNotParticipant) {
		return echo.NewHTTPError(http.StatusForbidden, "sender is not a room participant")
	}
	if errors.Is(err, chat.ErrSystemReserved) {
		return echo.NewHTTPError(http.StatusForbidden, "system messages are reserved")
	}
	if errors.Is(err, chat.ErrFilterUnavailable) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "chat filter unavailable")
	}
	if errors.Is(err, broadcast.ErrSubscriptionLimit) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "subscription limit reached")
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
