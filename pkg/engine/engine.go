// Package engine implements the authoritative game state machine for a
// single room: action validation and execution, turn advancement, the
// turn timer, per-entity action queues, turn history, and DM
// backtrack/redo.
//
// All engine state is guarded by one mutex, the room-scoped lock of
// the concurrency model. Timer callbacks and queue workers reacquire
// it before touching state, so there is never a race between a
// timeout-skip and a concurrent same-turn action: one of them observes
// the other's state change.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/encounterlive/encounterd/pkg/config"
	"github.com/encounterlive/encounterd/pkg/models"
)

var (
	// ErrInvalidState is returned when an operation is incompatible
	// with the current game status.
	ErrInvalidState = errors.New("operation not allowed in current game state")

	// ErrTurnRecordNotFound is returned by Backtrack when no history
	// record matches the requested turn and round.
	ErrTurnRecordNotFound = errors.New("turn record not found")

	// ErrNotYourTurn is returned by Redo when the current turn belongs
	// to a different entity.
	ErrNotYourTurn = errors.New("current turn belongs to a different entity")

	// ErrQueueDisabled is returned by QueueTurnAction when the action
	// queue is turned off.
	ErrQueueDisabled = errors.New("action queue is disabled")

	// ErrEntityExists is returned by AddEntity on duplicate entity ids.
	ErrEntityExists = errors.New("entity already exists")
)

// EmitFunc receives engine events. The broadcaster enriches them with
// interaction id and timestamp; the engine only fills type and payload.
type EmitFunc func(models.GameEvent)

// DeltaFunc receives the non-empty state delta produced by a mutation.
type DeltaFunc func(models.StateDelta)

// Engine drives one room's game state.
type Engine struct {
	mu    sync.Mutex
	cfg   *config.EngineConfig
	rules Rules
	state *models.GameState

	emit    EmitFunc
	onDelta DeltaFunc

	// Turn timer. timerGen invalidates a pending callback: the timer
	// belongs to exactly one (turn index, round, generation) and any
	// completion, skip, pause, backtrack, or game completion bumps the
	// generation before re-arming.
	timer    *time.Timer
	timerGen uint64

	// Per-entity FIFO action queues.
	queues map[string]*entityQueue
}

// New creates an engine over the given state. emit and onDelta may be
// nil (tests often drive the engine without a broadcaster).
func New(cfg *config.EngineConfig, state *models.GameState, emit EmitFunc, onDelta DeltaFunc) *Engine {
	if cfg == nil {
		cfg = config.DefaultEngineConfig()
	}
	if emit == nil {
		emit = func(models.GameEvent) {}
	}
	if onDelta == nil {
		onDelta = func(models.StateDelta) {}
	}
	return &Engine{
		cfg:     cfg,
		rules:   Rules{MaxMoveDistance: cfg.MaxMoveDistance, MaxAttackRange: cfg.MaxAttackRange},
		state:   state,
		emit:    emit,
		onDelta: onDelta,
		queues:  make(map[string]*entityQueue),
	}
}

// Snapshot returns a deep value copy of the current game state.
func (e *Engine) Snapshot() *models.GameState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// Status returns the current game status.
func (e *Engine) Status() models.GameStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Status
}

// Stats is a point-in-time census of one engine for the stats surface.
type Stats struct {
	Status           models.GameStatus `json:"status"`
	RoundNumber      int               `json:"round_number"`
	CurrentTurnIndex int               `json:"current_turn_index"`
	Entities         int               `json:"entities"`
	PendingActions   int               `json:"pending_actions"`
	TurnHistorySize  int               `json:"turn_history_size"`
	ChatLogSize      int               `json:"chat_log_size"`
}

// Stats reports engine counters without cloning the full state.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	pending := 0
	for _, q := range e.queues {
		pending += len(q.pending)
	}
	return Stats{
		Status:           e.state.Status,
		RoundNumber:      e.state.RoundNumber,
		CurrentTurnIndex: e.state.CurrentTurnIndex,
		Entities:         len(e.state.Entities),
		PendingActions:   pending,
		TurnHistorySize:  len(e.state.TurnHistory),
		ChatLogSize:      len(e.state.ChatLog),
	}
}

// AddEntity registers an entity, places it on the map, and inserts it
// into the initiative order (descending initiative, ties keep
// insertion order). The current entity keeps its turn when the
// insertion shifts indices.
func (e *Engine) AddEntity(entity *models.EntityState, initiative int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Status == models.GameStatusCompleted {
		return ErrInvalidState
	}
	if _, exists := e.state.Entities[entity.EntityID]; exists {
		return ErrEntityExists
	}

	prev := e.state.Clone()

	currentID := ""
	if cur := e.state.CurrentEntity(); cur != nil {
		currentID = cur.EntityID
	}

	entity.TurnStatus = models.TurnStatusWaiting
	e.state.Entities[entity.EntityID] = entity
	e.state.Map.Entities[entity.EntityID] = entity.Position

	e.state.InitiativeOrder = append(e.state.InitiativeOrder, models.InitiativeEntry{
		EntityID:   entity.EntityID,
		EntityType: entity.EntityType,
		Initiative: initiative,
		UserID:     entity.UserID,
	})
	sort.SliceStable(e.state.InitiativeOrder, func(i, j int) bool {
		return e.state.InitiativeOrder[i].Initiative > e.state.InitiativeOrder[j].Initiative
	})

	if currentID != "" {
		for i, entry := range e.state.InitiativeOrder {
			if entry.EntityID == currentID {
				e.state.CurrentTurnIndex = i
				break
			}
		}
	}
	e.syncTurnStatusLocked()
	e.touchLocked()
	e.emitDeltaLocked(prev)
	return nil
}

// Activate transitions a waiting game to active, starts the first
// turn, and arms the turn timer.
func (e *Engine) Activate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Status != models.GameStatusWaiting {
		return ErrInvalidState
	}
	prev := e.state.Clone()
	e.activateLocked()
	e.emitDeltaLocked(prev)
	return nil
}

func (e *Engine) activateLocked() {
	e.state.Status = models.GameStatusActive
	e.syncTurnStatusLocked()
	e.touchLocked()
	if cur := e.state.CurrentEntity(); cur != nil {
		e.emit(models.GameEvent{
			Type:     models.EventTurnStarted,
			EntityID: cur.EntityID,
			Payload:  map[string]any{"turn_index": e.state.CurrentTurnIndex, "round_number": e.state.RoundNumber},
		})
	}
	e.armTimerLocked()
}

// Pause stops the turn timer and freezes the state machine.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Status != models.GameStatusActive {
		return ErrInvalidState
	}
	prev := e.state.Clone()
	e.cancelTimerLocked()
	e.state.Status = models.GameStatusPaused
	e.touchLocked()
	e.emitDeltaLocked(prev)
	return nil
}

// Resume re-activates a paused game. The current turn gets a fresh
// full timer budget; no credit for time served before the pause.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Status != models.GameStatusPaused {
		return ErrInvalidState
	}
	prev := e.state.Clone()
	e.state.Status = models.GameStatusActive
	e.touchLocked()
	e.armTimerLocked()
	e.emitDeltaLocked(prev)
	return nil
}

// Complete terminally finishes the game: the timer is cancelled and
// all queues cleared. Further mutations fail with ErrInvalidState.
func (e *Engine) Complete() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Status == models.GameStatusCompleted {
		return ErrInvalidState
	}
	prev := e.state.Clone()
	e.cancelTimerLocked()
	e.clearAllQueuesLocked()
	e.state.Status = models.GameStatusCompleted
	e.touchLocked()
	e.emitDeltaLocked(prev)
	return nil
}

// ProcessTurnAction validates, executes, and records one action, then
// advances the turn when the action type ends it. Validation failures
// are reported in the result, never as errors; a failed action leaves
// the state unchanged.
func (e *Engine) ProcessTurnAction(action models.TurnAction) models.ActionResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.processLocked(action)
}

func (e *Engine) processLocked(action models.TurnAction) models.ActionResult {
	prev := e.state.Clone()

	// The first valid action implicitly activates a waiting game.
	// Validation runs against the provisional active status so a
	// rejected action leaves the game waiting, its timer unarmed.
	wasWaiting := e.state.Status == models.GameStatusWaiting
	if wasWaiting {
		e.state.Status = models.GameStatusActive
	}

	if e.cfg.ValidateActions {
		if errs := ValidateAction(e.state, action, e.rules); len(errs) > 0 {
			if wasWaiting {
				e.state.Status = models.GameStatusWaiting
			}
			return models.ActionResult{Valid: false, Errors: errs}
		}
	} else if e.state.Status != models.GameStatusActive {
		return models.ActionResult{Valid: false, Errors: []string{
			fmt.Sprintf("game is not active (status: %s)", e.state.Status),
		}}
	}

	if wasWaiting {
		e.activateLocked()
	}

	ApplyAction(e.state, action)
	e.recordActionLocked(action)
	e.touchLocked()

	if action.Type.EndsTurn() {
		e.emit(models.GameEvent{
			Type:     models.EventTurnCompleted,
			EntityID: action.EntityID,
			Payload:  map[string]any{"turn_index": e.state.CurrentTurnIndex, "round_number": e.state.RoundNumber},
		})
		e.advanceLocked(models.TurnStatusCompleted)
	}

	e.emitDeltaLocked(prev)
	return models.ActionResult{Valid: true}
}

// SkipTurn records a skipped turn for the current entity and advances.
// Caller ownership of the current entity is enforced at the operation
// surface, not here.
func (e *Engine) SkipTurn(reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.skipLocked(reason)
}

func (e *Engine) skipLocked(reason string) error {
	if e.state.Status != models.GameStatusActive {
		return ErrInvalidState
	}
	cur := e.state.CurrentEntity()
	if cur == nil {
		return ErrInvalidState
	}

	prev := e.state.Clone()
	now := time.Now()
	e.appendHistoryLocked(models.TurnRecord{
		EntityID:    cur.EntityID,
		TurnNumber:  e.state.CurrentTurnIndex,
		RoundNumber: e.state.RoundNumber,
		Actions:     []models.TurnAction{},
		StartTime:   now,
		EndTime:     now,
		Status:      models.TurnRecordSkipped,
		Reason:      reason,
	})
	if entity, ok := e.state.Entities[cur.EntityID]; ok {
		entity.TurnStatus = models.TurnStatusSkipped
	}
	e.touchLocked()

	e.emit(models.GameEvent{
		Type:     models.EventTurnSkipped,
		EntityID: cur.EntityID,
		Payload:  map[string]any{"reason": reason, "turn_index": e.state.CurrentTurnIndex, "round_number": e.state.RoundNumber},
	})
	e.advanceLocked(models.TurnStatusSkipped)
	e.emitDeltaLocked(prev)
	return nil
}

// advanceLocked moves to the next initiative slot, wrapping into a new
// round, and re-arms the turn timer.
func (e *Engine) advanceLocked(endedAs models.TurnStatus) {
	order := e.state.InitiativeOrder
	if len(order) == 0 {
		return
	}

	ending := order[e.state.CurrentTurnIndex]
	if entity, ok := e.state.Entities[ending.EntityID]; ok {
		entity.TurnStatus = endedAs
	}

	e.state.CurrentTurnIndex++
	if e.state.CurrentTurnIndex >= len(order) {
		e.state.CurrentTurnIndex = 0
		e.state.RoundNumber++
		// New round: everyone is waiting again.
		for _, entity := range e.state.Entities {
			entity.TurnStatus = models.TurnStatusWaiting
		}
		e.emit(models.GameEvent{
			Type:    models.EventNewRound,
			Payload: map[string]any{"round_number": e.state.RoundNumber},
		})
	}

	next := order[e.state.CurrentTurnIndex]
	if entity, ok := e.state.Entities[next.EntityID]; ok {
		entity.TurnStatus = models.TurnStatusActive
	}
	e.emit(models.GameEvent{
		Type:     models.EventTurnStarted,
		EntityID: next.EntityID,
		Payload:  map[string]any{"turn_index": e.state.CurrentTurnIndex, "round_number": e.state.RoundNumber},
	})
	e.armTimerLocked()
}

// recordActionLocked appends a completed record for one processed action.
func (e *Engine) recordActionLocked(action models.TurnAction) {
	now := time.Now()
	e.appendHistoryLocked(models.TurnRecord{
		EntityID:    action.EntityID,
		TurnNumber:  e.state.CurrentTurnIndex,
		RoundNumber: e.state.RoundNumber,
		Actions:     []models.TurnAction{action},
		StartTime:   now,
		EndTime:     now,
		Status:      models.TurnRecordCompleted,
	})
}

// appendHistoryLocked appends and trims to the configured bound,
// dropping the oldest records first.
func (e *Engine) appendHistoryLocked(record models.TurnRecord) {
	e.state.TurnHistory = append(e.state.TurnHistory, record)
	if limit := e.cfg.MaxTurnHistory; limit > 0 && len(e.state.TurnHistory) > limit {
		excess := len(e.state.TurnHistory) - limit
		e.state.TurnHistory = append([]models.TurnRecord(nil), e.state.TurnHistory[excess:]...)
	}
}

// AppendChatMessage appends to the chat log under the engine lock,
// trimming to the configured bound.
func (e *Engine) AppendChatMessage(msg models.ChatMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.ChatLog = append(e.state.ChatLog, msg)
	if limit := e.cfg.MaxChatHistory; limit > 0 && len(e.state.ChatLog) > limit {
		excess := len(e.state.ChatLog) - limit
		e.state.ChatLog = append([]models.ChatMessage(nil), e.state.ChatLog[excess:]...)
	}
	e.touchLocked()
}

// ChatLog returns a copy of the chat log.
func (e *Engine) ChatLog() []models.ChatMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	log := make([]models.ChatMessage, len(e.state.ChatLog))
	copy(log, e.state.ChatLog)
	return log
}

// UpdateInitiative atomically replaces the initiative order. A current
// turn index beyond the new order resets to 0. Entities removed from
// the order keep their state but cannot take turns.
func (e *Engine) UpdateInitiative(newOrder []models.InitiativeEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Status == models.GameStatusCompleted {
		return ErrInvalidState
	}

	prev := e.state.Clone()
	e.state.InitiativeOrder = append([]models.InitiativeEntry(nil), newOrder...)
	if e.state.CurrentTurnIndex >= len(e.state.InitiativeOrder) {
		e.state.CurrentTurnIndex = 0
	}
	e.syncTurnStatusLocked()
	e.touchLocked()

	e.emit(models.GameEvent{
		Type:    models.EventInitiativeUpdated,
		Payload: map[string]any{"initiative_order": e.state.InitiativeOrder},
	})
	e.emitDeltaLocked(prev)
	return nil
}

// syncTurnStatusLocked enforces the exactly-one-active invariant: the
// entity at the current turn index is active, everyone else waits
// unless already completed or skipped this round.
func (e *Engine) syncTurnStatusLocked() {
	cur := e.state.CurrentEntity()
	for id, entity := range e.state.Entities {
		switch {
		case cur != nil && id == cur.EntityID && e.state.Status == models.GameStatusActive:
			entity.TurnStatus = models.TurnStatusActive
		case entity.TurnStatus == models.TurnStatusActive:
			entity.TurnStatus = models.TurnStatusWaiting
		}
	}
}

func (e *Engine) touchLocked() {
	e.state.UpdatedAt = time.Now()
}

// --- Turn timer ---

// armTimerLocked arms a fresh single-shot timer for the current turn.
// Any previously armed timer is invalidated first.
func (e *Engine) armTimerLocked() {
	e.cancelTimerLocked()
	if !e.cfg.AutoAdvance || e.state.Status != models.GameStatusActive {
		return
	}
	if len(e.state.InitiativeOrder) == 0 {
		return
	}
	gen := e.timerGen
	e.timer = time.AfterFunc(e.cfg.TurnTimeout, func() {
		e.onTurnTimeout(gen)
	})
}

// cancelTimerLocked invalidates any pending timer callback.
func (e *Engine) cancelTimerLocked() {
	e.timerGen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// onTurnTimeout fires from the timer goroutine. It reacquires the
// engine lock and re-checks the generation: a stale callback (the turn
// already ended, or the game paused) is a no-op.
func (e *Engine) onTurnTimeout(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.timerGen {
		return
	}
	if e.state.Status != models.GameStatusActive {
		return
	}
	slog.Debug("Turn timer fired, skipping turn",
		"interaction_id", e.state.InteractionID,
		"turn_index", e.state.CurrentTurnIndex,
		"round_number", e.state.RoundNumber)
	if err := e.skipLocked("timeout"); err != nil {
		slog.Warn("Timeout skip failed",
			"interaction_id", e.state.InteractionID, "error", err)
	}
}

// emitDeltaLocked diffs the previous snapshot against the live state
// and forwards a non-empty delta.
func (e *Engine) emitDeltaLocked(prev *models.GameState) {
	delta := ComputeDelta(prev, e.state)
	if delta.Empty() {
		return
	}
	delta.InteractionID = e.state.InteractionID
	delta.Timestamp = time.Now()
	e.onDelta(delta)
}
