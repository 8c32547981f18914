package engine

import (
	"log/slog"

	"github.com/encounterlive/encounterd/pkg/models"
)

// Backtrack rewinds the turn pointer to a previously recorded turn.
// It locates the most recent history record matching (turnNumber,
// roundNumber), truncates history to it, marks it backtracked, moves
// the turn pointer there, clears all action queues, and restarts the
// turn timer. Entity state is not restored; backtracking rewinds the
// turn order, and the DM corrects entity state via redone actions.
func (e *Engine) Backtrack(turnNumber, roundNumber int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Status != models.GameStatusActive && e.state.Status != models.GameStatusPaused {
		return ErrInvalidState
	}

	idx := -1
	for i := len(e.state.TurnHistory) - 1; i >= 0; i-- {
		r := e.state.TurnHistory[i]
		if r.TurnNumber == turnNumber && r.RoundNumber == roundNumber {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrTurnRecordNotFound
	}

	prev := e.state.Clone()

	target := e.state.TurnHistory[idx]
	e.state.TurnHistory = append([]models.TurnRecord(nil), e.state.TurnHistory[:idx+1]...)
	e.state.TurnHistory[idx].Status = models.TurnRecordBacktracked

	if turnNumber >= 0 && turnNumber < len(e.state.InitiativeOrder) {
		e.state.CurrentTurnIndex = turnNumber
	} else {
		e.state.CurrentTurnIndex = 0
	}
	e.state.RoundNumber = roundNumber

	// Stale queued actions target a timeline that no longer exists.
	e.clearAllQueuesLocked()

	for _, entity := range e.state.Entities {
		entity.TurnStatus = models.TurnStatusWaiting
	}
	e.syncTurnStatusLocked()
	e.touchLocked()

	slog.Info("Turn backtracked",
		"interaction_id", e.state.InteractionID,
		"turn_number", turnNumber,
		"round_number", roundNumber,
		"entity_id", target.EntityID)

	e.emit(models.GameEvent{
		Type:     models.EventTurnBacktracked,
		EntityID: target.EntityID,
		Payload: map[string]any{
			"turn_number":  turnNumber,
			"round_number": roundNumber,
		},
	})
	e.armTimerLocked()
	e.emitDeltaLocked(prev)
	return nil
}

// Redo replays a sequence of DM-supplied actions for the entity whose
// turn it now is, typically after a Backtrack. Every action must
// belong to that entity. Replay stops at the first invalid action; the
// returned result describes the action that stopped it.
func (e *Engine) Redo(entityID string, actions []models.TurnAction) (models.ActionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Status != models.GameStatusActive {
		return models.ActionResult{}, ErrInvalidState
	}
	cur := e.state.CurrentEntity()
	if cur == nil || cur.EntityID != entityID {
		return models.ActionResult{}, ErrNotYourTurn
	}

	for _, action := range actions {
		if action.EntityID != entityID {
			return models.ActionResult{
				Valid:  false,
				Errors: []string{"redo actions must all belong to entity " + entityID},
			}, nil
		}
		result := e.processLocked(action)
		if !result.Valid {
			return result, nil
		}
	}
	return models.ActionResult{Valid: true}, nil
}
