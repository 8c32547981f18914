package engine

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/encounterlive/encounterd/pkg/models"
)

// entityQueue is one entity's FIFO of queued actions. At most one
// worker drains a queue at a time; processing guards the spawn.
type entityQueue struct {
	pending    []*models.QueuedAction
	processing bool
}

// QueueTurnAction enqueues an action on its entity's FIFO queue and
// returns the queued action id. A worker is spawned lazily when the
// queue is not already draining. Per-entity order is preserved; queues
// of different entities drain independently.
func (e *Engine) QueueTurnAction(action models.TurnAction) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.cfg.EnableActionQueue {
		return "", ErrQueueDisabled
	}
	if e.state.Status == models.GameStatusCompleted {
		return "", ErrInvalidState
	}

	qa := &models.QueuedAction{
		ID:       uuid.NewString(),
		Action:   action,
		QueuedAt: time.Now(),
		Status:   models.QueuedActionPending,
	}

	q := e.queues[action.EntityID]
	if q == nil {
		q = &entityQueue{}
		e.queues[action.EntityID] = q
	}
	q.pending = append(q.pending, qa)

	if !q.processing {
		q.processing = true
		go e.drainQueue(action.EntityID)
	}
	return qa.ID, nil
}

// drainQueue processes one entity's queue until it empties or halts.
// Each iteration takes the engine lock, pops the head, and runs it
// through the same validate/execute path as direct actions. The drain
// halts, leaving the remainder pending, when an action fails or after
// an explicit end action.
func (e *Engine) drainQueue(entityID string) {
	for {
		e.mu.Lock()
		q := e.queues[entityID]
		if q == nil || len(q.pending) == 0 || e.state.Status == models.GameStatusCompleted {
			if q != nil {
				q.processing = false
			}
			e.mu.Unlock()
			return
		}

		qa := q.pending[0]
		q.pending = q.pending[1:]
		qa.Status = models.QueuedActionProcessing

		result := e.processLocked(qa.Action)
		qa.Result = &result
		if result.Valid {
			qa.Status = models.QueuedActionCompleted
		} else {
			qa.Status = models.QueuedActionFailed
		}

		e.emit(models.GameEvent{
			Type:     models.EventQueuedActionCompleted,
			EntityID: entityID,
			Payload: map[string]any{
				"queued_action_id": qa.ID,
				"action_type":      qa.Action.Type,
				"status":           qa.Status,
				"result":           result,
			},
		})

		// Only failure or an explicit end halts the drain. An attack
		// passes the turn but keeps draining, so anything queued behind
		// it fails out of turn right away instead of lingering into a
		// later round.
		halt := !result.Valid || qa.Action.Type == models.ActionEnd
		if halt {
			if !result.Valid {
				slog.Debug("Queued action failed, halting queue",
					"interaction_id", e.state.InteractionID,
					"entity_id", entityID,
					"queued_action_id", qa.ID,
					"errors", result.Errors)
			}
			q.processing = false
			e.mu.Unlock()
			return
		}
		e.mu.Unlock()
	}
}

// QueuedActions returns a copy of an entity's pending queue.
func (e *Engine) QueuedActions(entityID string) []models.QueuedAction {
	e.mu.Lock()
	defer e.mu.Unlock()
	q := e.queues[entityID]
	if q == nil {
		return nil
	}
	out := make([]models.QueuedAction, 0, len(q.pending))
	for _, qa := range q.pending {
		out = append(out, *qa)
	}
	return out
}

// CancelQueuedAction removes a pending action from an entity's queue.
// An action already taken by the drain cannot be cancelled.
func (e *Engine) CancelQueuedAction(entityID, queuedActionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	q := e.queues[entityID]
	if q == nil {
		return false
	}
	for i, qa := range q.pending {
		if qa.ID == queuedActionID {
			qa.Status = models.QueuedActionCancelled
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return true
		}
	}
	return false
}

// ClearQueue drops all pending actions for one entity.
func (e *Engine) ClearQueue(entityID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	q := e.queues[entityID]
	if q == nil {
		return 0
	}
	n := len(q.pending)
	for _, qa := range q.pending {
		qa.Status = models.QueuedActionCancelled
	}
	q.pending = nil
	return n
}

// clearAllQueuesLocked drops every pending action. Active drains exit
// on their next iteration when they find their queue empty.
func (e *Engine) clearAllQueuesLocked() {
	for _, q := range e.queues {
		for _, qa := range q.pending {
			qa.Status = models.QueuedActionCancelled
		}
		q.pending = nil
	}
}
