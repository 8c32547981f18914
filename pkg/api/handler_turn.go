package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/encounterlive/encounterd/pkg/models"
	"github.com/encounterlive/encounterd/pkg/room"
)

// resolveActingEntity determines which entity an action targets. A
// player always acts as their own entity; the DM may name any entity.
func resolveActingEntity(c *echo.Context, r *room.Room, requested string) (string, error) {
	if isDM(c) && requested != "" {
		return requested, nil
	}
	participant, err := r.Participant(extractUser(c))
	if err != nil {
		return "", err
	}
	if requested != "" && requested != participant.EntityID {
		return "", room.ErrPermissionDenied
	}
	return participant.EntityID, nil
}

// turnActionHandler handles POST /api/v1/rooms/:interactionID/turn.
// With queue=true the action joins the entity's FIFO queue instead of
// executing immediately.
func (s *Server) turnActionHandler(c *echo.Context) error {
	r, err := s.getRoom(c)
	if err != nil {
		return err
	}

	var req TurnActionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Type == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "action type is required")
	}

	entityID, err := resolveActingEntity(c, r, req.EntityID)
	if err != nil {
		return mapServiceError(err)
	}

	action := models.TurnAction{
		Type:       req.Type,
		EntityID:   entityID,
		TargetID:   req.TargetID,
		Position:   req.Position,
		ItemID:     req.ItemID,
		SpellID:    req.SpellID,
		Parameters: req.Parameters,
	}
	r.Touch()

	if req.Queue {
		id, err := r.Engine().QueueTurnAction(action)
		if err != nil {
			return mapServiceError(err)
		}
		return c.JSON(http.StatusAccepted, &TurnActionResponse{
			Result:         models.ActionResult{Valid: true},
			QueuedActionID: id,
		})
	}

	result := r.Engine().ProcessTurnAction(action)
	status := http.StatusOK
	if !result.Valid {
		status = http.StatusUnprocessableEntity
	}
	return c.JSON(status, &TurnActionResponse{Result: result, State: r.State()})
}

// skipTurnHandler handles POST /api/v1/rooms/:interactionID/skip.
// Players may only skip their own turn; the DM may skip anyone's.
func (s *Server) skipTurnHandler(c *echo.Context) error {
	r, err := s.getRoom(c)
	if err != nil {
		return err
	}

	var req SkipTurnRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if !isDM(c) {
		participant, err := r.Participant(extractUser(c))
		if err != nil {
			return mapServiceError(err)
		}
		cur := r.State().CurrentEntity()
		if cur == nil || cur.EntityID != participant.EntityID {
			return mapServiceError(room.ErrPermissionDenied)
		}
	}

	reason := req.Reason
	if reason == "" {
		reason = "player requested"
	}
	if err := r.Engine().SkipTurn(reason); err != nil {
		return mapServiceError(err)
	}
	r.Touch()
	return c.JSON(http.StatusOK, okResponse)
}

// listQueueHandler handles GET /api/v1/rooms/:interactionID/queue.
func (s *Server) listQueueHandler(c *echo.Context) error {
	r, err := s.getRoom(c)
	if err != nil {
		return err
	}
	entityID, err := resolveActingEntity(c, r, c.QueryParam("entity_id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &QueueResponse{
		EntityID: entityID,
		Pending:  r.Engine().QueuedActions(entityID),
	})
}

// cancelQueuedActionHandler handles DELETE /api/v1/rooms/:interactionID/queue/:queuedActionID.
func (s *Server) cancelQueuedActionHandler(c *echo.Context) error {
	r, err := s.getRoom(c)
	if err != nil {
		return err
	}
	entityID, err := resolveActingEntity(c, r, c.QueryParam("entity_id"))
	if err != nil {
		return mapServiceError(err)
	}
	if !r.Engine().CancelQueuedAction(entityID, c.Param("queuedActionID")) {
		return echo.NewHTTPError(http.StatusNotFound, "queued action not found")
	}
	return c.JSON(http.StatusOK, okResponse)
}

// backtrackHandler handles POST /api/v1/rooms/:interactionID/backtrack.
func (s *Server) backtrackHandler(c *echo.Context) error {
	r, err := s.getRoom(c)
	if err != nil {
		return err
	}
	var req BacktrackRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := r.Engine().Backtrack(req.TurnNumber, req.RoundNumber); err != nil {
		return mapServiceError(err)
	}
	r.Touch()
	return c.JSON(http.StatusOK, okResponse)
}

// redoHandler handles POST /api/v1/rooms/:interactionID/redo.
func (s *Server) redoHandler(c *echo.Context) error {
	r, err := s.getRoom(c)
	if err != nil {
		return err
	}
	var req RedoRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.EntityID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "entity id is required")
	}
	result, err := r.Engine().Redo(req.EntityID, req.Actions)
	if err != nil {
		return mapServiceError(err)
	}
	r.Touch()
	status := http.StatusOK
	if !result.Valid {
		status = http.StatusUnprocessableEntity
	}
	return c.JSON(status, &TurnActionResponse{Result: result, State: r.State()})
}

// updateInitiativeHandler handles PUT /api/v1/rooms/:interactionID/initiative.
func (s *Server) updateInitiativeHandler(c *echo.Context) error {
	r, err := s.getRoom(c)
	if err != nil {
		return err
	}
	var req UpdateInitiativeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.InitiativeOrder) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "initiative order must not be empty")
	}
	if err := r.Engine().UpdateInitiative(req.InitiativeOrder); err != nil {
		return mapServiceError(err)
	}
	r.Touch()
	return c.JSON(http.StatusOK, okResponse)
}
