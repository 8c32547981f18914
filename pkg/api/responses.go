package api

import (
	"time"

	"github.com/encounterlive/encounterd/pkg/models"
	"github.com/encounterlive/encounterd/pkg/room"
)

// JoinRoomResponse is returned by the join endpoint.
type JoinRoomResponse struct {
	Participant models.Participant `json:"participant"`
	State       *models.GameState  `json:"state"`
}

// TurnActionResponse is returned by the turn endpoint. State is the
// authoritative game state after the action; queued actions carry no
// state because they have not executed yet.
type TurnActionResponse struct {
	Result         models.ActionResult `json:"result"`
	State          *models.GameState   `json:"state,omitempty"`
	QueuedActionID string              `json:"queued_action_id,omitempty"`
}

// RoomStateResponse is returned by the state endpoint.
type RoomStateResponse struct {
	State        *models.GameState    `json:"state"`
	Participants []models.Participant `json:"participants"`
}

// ChatHistoryResponse is returned by the chat history endpoint.
// TotalCount counts every visible matching message, including those
// past the requested limit.
type ChatHistoryResponse struct {
	Messages   []models.ChatMessage `json:"messages"`
	TotalCount int                  `json:"total_count"`
}

// QueueResponse lists an entity's pending queued actions.
type QueueResponse struct {
	EntityID string                `json:"entity_id"`
	Pending  []models.QueuedAction `json:"pending"`
}

// StatsResponse is returned by the rooms listing endpoint.
type StatsResponse struct {
	Summary room.ManagerStats `json:"summary"`
	Rooms   []room.RoomStats  `json:"rooms"`
	Count   int               `json:"count"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Rooms     int       `json:"rooms"`
	Timestamp time.Time `json:"timestamp"`
}

// statusResponse acknowledges state-changing calls with no body to return.
type statusResponse struct {
	Status string `json:"status"`
}

var okResponse = statusResponse{Status: "ok"}
