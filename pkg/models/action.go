package models

import "time"

// ActionType identifies what an entity does on its turn.
type ActionType string

const (
	ActionMove     ActionType = "move"
	ActionAttack   ActionType = "attack"
	ActionUseItem  ActionType = "useItem"
	ActionCast     ActionType = "cast"
	ActionInteract ActionType = "interact"
	ActionEnd      ActionType = "end"
)

// EndsTurn reports whether executing this action type ends the
// entity's turn. Move and interact allow follow-up actions.
func (t ActionType) EndsTurn() bool {
	switch t {
	case ActionAttack, ActionUseItem, ActionCast, ActionEnd:
		return true
	default:
		return false
	}
}

// TurnAction is one action submitted by or for an entity.
type TurnAction struct {
	Type       ActionType     `json:"type"`
	EntityID   string         `json:"entity_id"`
	TargetID   string         `json:"target_id,omitempty"`
	Position   *Position      `json:"position,omitempty"`
	ItemID     string         `json:"item_id,omitempty"`
	SpellID    string         `json:"spell_id,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// ActionResult reports the outcome of validating and executing an
// action. Errors is non-empty exactly when Valid is false.
type ActionResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// TurnRecordStatus is how a history record ended.
type TurnRecordStatus string

const (
	TurnRecordCompleted   TurnRecordStatus = "completed"
	TurnRecordSkipped     TurnRecordStatus = "skipped"
	TurnRecordBacktracked TurnRecordStatus = "backtracked"
)

// TurnRecord is one turn history entry. Completed records carry the
// single action they recorded; skipped records carry none and a reason.
type TurnRecord struct {
	EntityID    string           `json:"entity_id"`
	TurnNumber  int              `json:"turn_number"`
	RoundNumber int              `json:"round_number"`
	Actions     []TurnAction     `json:"actions"`
	StartTime   time.Time        `json:"start_time"`
	EndTime     time.Time        `json:"end_time"`
	Status      TurnRecordStatus `json:"status"`
	Reason      string           `json:"reason,omitempty"`
}

// Clone returns a deep copy.
func (r *TurnRecord) Clone() *TurnRecord {
	c := *r
	c.Actions = append([]TurnAction(nil), r.Actions...)
	return &c
}

// QueuedActionStatus is a queued action's processing state.
type QueuedActionStatus string

const (
	QueuedActionPending    QueuedActionStatus = "pending"
	QueuedActionProcessing QueuedActionStatus = "processing"
	QueuedActionCompleted  QueuedActionStatus = "completed"
	QueuedActionFailed     QueuedActionStatus = "failed"
	QueuedActionCancelled  QueuedActionStatus = "cancelled"
)

// QueuedAction wraps a TurnAction waiting in an entity's FIFO queue.
type QueuedAction struct {
	ID       string             `json:"id"`
	Action   TurnAction         `json:"action"`
	QueuedAt time.Time          `json:"queued_at"`
	Status   QueuedActionStatus `json:"status"`
	Result   *ActionResult      `json:"result,omitempty"`
}
