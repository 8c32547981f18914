package api

import (
	"github.com/encounterlive/encounterd/pkg/models"
)

// JoinRoomRequest is the body for POST /api/v1/rooms/:interactionID/join.
type JoinRoomRequest struct {
	EntityID   string            `json:"entity_id"`
	EntityType models.EntityType `json:"entity_type,omitempty"`
	Initiative int               `json:"initiative"`
	Position   *models.Position  `json:"position,omitempty"`
	MaxHP      int               `json:"max_hp,omitempty"`
}

// TurnActionRequest is the body for POST /api/v1/rooms/:interactionID/turn.
// EntityID is optional for players (their own entity is implied) and
// lets the DM act for any entity. Queue enqueues instead of executing.
type TurnActionRequest struct {
	Type       models.ActionType `json:"type"`
	EntityID   string            `json:"entity_id,omitempty"`
	TargetID   string            `json:"target_id,omitempty"`
	Position   *models.Position  `json:"position,omitempty"`
	ItemID     string            `json:"item_id,omitempty"`
	SpellID    string            `json:"spell_id,omitempty"`
	Parameters map[string]any    `json:"parameters,omitempty"`
	Queue      bool              `json:"queue,omitempty"`
}

// SkipTurnRequest is the body for POST /api/v1/rooms/:interactionID/skip.
type SkipTurnRequest struct {
	Reason string `json:"reason,omitempty"`
}

// BacktrackRequest is the body for POST /api/v1/rooms/:interactionID/backtrack.
type BacktrackRequest struct {
	TurnNumber  int `json:"turn_number"`
	RoundNumber int `json:"round_number"`
}

// RedoRequest is the body for POST /api/v1/rooms/:interactionID/redo.
type RedoRequest struct {
	EntityID string              `json:"entity_id"`
	Actions  []models.TurnAction `json:"actions"`
}

// UpdateInitiativeRequest is the body for PUT /api/v1/rooms/:interactionID/initiative.
type UpdateInitiativeRequest struct {
	InitiativeOrder []models.InitiativeEntry `json:"initiative_order"`
}

// SendMessageRequest is the body for POST /api/v1/rooms/:interactionID/chat/messages.
type SendMessageRequest struct {
	Content    string             `json:"content"`
	Type       models.MessageType `json:"type,omitempty"`
	Recipients []string           `json:"recipients,omitempty"`
}
