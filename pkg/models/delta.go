package models

import "time"

// EntityDelta describes the changed observable fields of one entity.
// Nil fields were unchanged.
type EntityDelta struct {
	EntityID   string      `json:"entity_id"`
	Position   *Position   `json:"position,omitempty"`
	CurrentHP  *int        `json:"current_hp,omitempty"`
	TurnStatus *TurnStatus `json:"turn_status,omitempty"`
	Inventory  *Inventory  `json:"inventory,omitempty"`
	Removed    bool        `json:"removed,omitempty"`
}

// StateDelta is a minimal change description between two consecutive
// game state snapshots over the fixed observable field set. Applying a
// sequence of deltas to the earlier snapshot reproduces the later one's
// observable fields.
type StateDelta struct {
	InteractionID    string              `json:"interaction_id"`
	Timestamp        time.Time           `json:"timestamp"`
	Status           *GameStatus         `json:"status,omitempty"`
	CurrentTurnIndex *int                `json:"current_turn_index,omitempty"`
	RoundNumber      *int                `json:"round_number,omitempty"`
	Entities         []EntityDelta       `json:"entities,omitempty"`
	InitiativeOrder  []InitiativeEntry   `json:"initiative_order,omitempty"`
	MapEntities      map[string]Position `json:"map_entities,omitempty"`
	NewTurnRecords   []TurnRecord        `json:"new_turn_records,omitempty"`
	NewChatMessages  []ChatMessage       `json:"new_chat_messages,omitempty"`
}

// Empty reports whether the delta carries no changes at all.
func (d *StateDelta) Empty() bool {
	return d.Status == nil &&
		d.CurrentTurnIndex == nil &&
		d.RoundNumber == nil &&
		len(d.Entities) == 0 &&
		d.InitiativeOrder == nil &&
		d.MapEntities == nil &&
		len(d.NewTurnRecords) == 0 &&
		len(d.NewChatMessages) == 0
}
