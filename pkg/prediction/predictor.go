// Package prediction implements optimistic client-side execution.
// A predictor validates and applies actions against a local copy of
// the game state using the same rules as the server, keeps a bounded
// ledger of unconfirmed predictions, and rebases them whenever an
// authoritative server delta arrives. The server always wins: any
// prediction that no longer validates after a rebase is rolled back.
package prediction

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/encounterlive/encounterd/pkg/engine"
	"github.com/encounterlive/encounterd/pkg/models"
)

var (
	// ErrLedgerFull is returned when too many predictions are awaiting
	// confirmation.
	ErrLedgerFull = errors.New("prediction ledger full")

	// ErrPredictionNotFound is returned for unknown prediction ids.
	ErrPredictionNotFound = errors.New("prediction not found")
)

// maxLedger bounds unconfirmed predictions per predictor.
const maxLedger = 10

// Status tracks a prediction's lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusRolledBack Status = "rolled_back"
)

// Prediction is one optimistically applied action.
type Prediction struct {
	ID          string            `json:"id"`
	Action      models.TurnAction `json:"action"`
	PredictedAt time.Time         `json:"predicted_at"`
	Status      Status            `json:"status"`
}

// Predictor holds the confirmed server state and the predicted state
// derived from it by replaying the pending ledger.
type Predictor struct {
	mu        sync.Mutex
	rules     engine.Rules
	confirmed *models.GameState
	predicted *models.GameState
	ledger    []*Prediction
}

// New creates a predictor seeded with an authoritative snapshot.
func New(initial *models.GameState, rules engine.Rules) *Predictor {
	return &Predictor{
		rules:     rules,
		confirmed: initial.Clone(),
		predicted: initial.Clone(),
	}
}

// State returns a copy of the predicted state.
func (p *Predictor) State() *models.GameState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.predicted.Clone()
}

// ConfirmedState returns a copy of the last authoritative state.
func (p *Predictor) ConfirmedState() *models.GameState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.confirmed.Clone()
}

// Pending returns the unconfirmed predictions, oldest first.
func (p *Predictor) Pending() []Prediction {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Prediction, 0, len(p.ledger))
	for _, pr := range p.ledger {
		out = append(out, *pr)
	}
	return out
}

// Predict validates an action against the predicted state and, when
// legal, applies it locally and records it in the ledger. The returned
// id matches the prediction against later server confirmation.
func (p *Predictor) Predict(action models.TurnAction) (string, models.ActionResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.ledger) >= maxLedger {
		return "", models.ActionResult{}, ErrLedgerFull
	}

	if errs := engine.ValidateAction(p.predicted, action, p.rules); len(errs) > 0 {
		return "", models.ActionResult{Valid: false, Errors: errs}, nil
	}

	engine.ApplyAction(p.predicted, action)
	p.advancePredicted(action)

	pr := &Prediction{
		ID:          uuid.NewString(),
		Action:      action,
		PredictedAt: time.Now(),
		Status:      StatusPending,
	}
	p.ledger = append(p.ledger, pr)
	return pr.ID, models.ActionResult{Valid: true}, nil
}

// advancePredicted mirrors the server's turn advancement so follow-up
// predictions validate against the right current entity.
func (p *Predictor) advancePredicted(action models.TurnAction) {
	if !action.Type.EndsTurn() {
		return
	}
	s := p.predicted
	if len(s.InitiativeOrder) == 0 {
		return
	}
	if entity, ok := s.Entities[action.EntityID]; ok {
		entity.TurnStatus = models.TurnStatusCompleted
	}
	s.CurrentTurnIndex++
	if s.CurrentTurnIndex >= len(s.InitiativeOrder) {
		s.CurrentTurnIndex = 0
		s.RoundNumber++
		for _, entity := range s.Entities {
			entity.TurnStatus = models.TurnStatusWaiting
		}
	}
	if cur := s.CurrentEntity(); cur != nil {
		if entity, ok := s.Entities[cur.EntityID]; ok {
			entity.TurnStatus = models.TurnStatusActive
		}
	}
}

// Confirm marks a prediction acknowledged by the server and drops it
// from the ledger. The server's own delta carries the real effects, so
// confirmation never touches state.
func (p *Predictor) Confirm(predictionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, pr := range p.ledger {
		if pr.ID == predictionID {
			pr.Status = StatusConfirmed
			p.ledger = append(p.ledger[:i], p.ledger[i+1:]...)
			return nil
		}
	}
	return ErrPredictionNotFound
}

// ApplyServerDelta folds an authoritative delta into the confirmed
// state and rebases the pending ledger on top of it. Predictions that
// no longer validate are rolled back; the rest are reapplied in order.
// Returns the rolled-back predictions.
func (p *Predictor) ApplyServerDelta(delta models.StateDelta) []Prediction {
	p.mu.Lock()
	defer p.mu.Unlock()

	engine.ApplyDelta(p.confirmed, delta)
	return p.rebaseLocked()
}

// Rollback discards every pending prediction and resets the predicted
// state to the confirmed one.
func (p *Predictor) Rollback() []Prediction {
	p.mu.Lock()
	defer p.mu.Unlock()

	dropped := make([]Prediction, 0, len(p.ledger))
	for _, pr := range p.ledger {
		pr.Status = StatusRolledBack
		dropped = append(dropped, *pr)
	}
	p.ledger = nil
	p.predicted = p.confirmed.Clone()
	return dropped
}

// RollbackFrom discards one prediction and everything predicted after
// it, then rebuilds the predicted state.
func (p *Predictor) RollbackFrom(predictionID string) ([]Prediction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := -1
	for i, pr := range p.ledger {
		if pr.ID == predictionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrPredictionNotFound
	}

	dropped := make([]Prediction, 0, len(p.ledger)-idx)
	for _, pr := range p.ledger[idx:] {
		pr.Status = StatusRolledBack
		dropped = append(dropped, *pr)
	}
	p.ledger = p.ledger[:idx]
	p.rebaseLocked()
	return dropped, nil
}

// rebaseLocked rebuilds the predicted state by replaying the pending
// ledger over the confirmed state, dropping whatever fails validation.
func (p *Predictor) rebaseLocked() []Prediction {
	p.predicted = p.confirmed.Clone()

	var dropped []Prediction
	kept := p.ledger[:0]
	for _, pr := range p.ledger {
		if errs := engine.ValidateAction(p.predicted, pr.Action, p.rules); len(errs) > 0 {
			pr.Status = StatusRolledBack
			dropped = append(dropped, *pr)
			slog.Debug("Prediction rolled back on rebase",
				"prediction_id", pr.ID, "action_type", pr.Action.Type, "errors", errs)
			continue
		}
		engine.ApplyAction(p.predicted, pr.Action)
		p.advancePredicted(pr.Action)
		kept = append(kept, pr)
	}
	p.ledger = kept
	return dropped
}
