package models

import "time"

// EventType tags a GameEvent.
type EventType string

const (
	EventParticipantJoined     EventType = "PARTICIPANT_JOINED"
	EventParticipantLeft       EventType = "PARTICIPANT_LEFT"
	EventTurnStarted           EventType = "TURN_STARTED"
	EventTurnCompleted         EventType = "TURN_COMPLETED"
	EventTurnSkipped           EventType = "TURN_SKIPPED"
	EventTurnBacktracked       EventType = "TURN_BACKTRACKED"
	EventNewRound              EventType = "NEW_ROUND"
	EventInitiativeUpdated     EventType = "INITIATIVE_UPDATED"
	EventInteractionPaused     EventType = "INTERACTION_PAUSED"
	EventInteractionResumed    EventType = "INTERACTION_RESUMED"
	EventStateDelta            EventType = "STATE_DELTA"
	EventChatMessage           EventType = "CHAT_MESSAGE"
	EventQueuedActionCompleted EventType = "QUEUED_ACTION_COMPLETED"
)

// EventTypeWildcard subscribes to every event type of a room.
const EventTypeWildcard = "*"

// GameEvent is the unit of fan-out. Every event carries the room's
// interaction id and a timestamp assigned at broadcast time; within a
// room, timestamps are non-decreasing in delivery order.
type GameEvent struct {
	Type          EventType      `json:"type"`
	InteractionID string         `json:"interaction_id"`
	Timestamp     time.Time      `json:"timestamp"`
	EntityID      string         `json:"entity_id,omitempty"`
	UserID        string         `json:"user_id,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// RoomChannel returns the broadcast channel name for a room.
// Format: "room:{interaction_id}".
func RoomChannel(interactionID string) string {
	return "room:" + interactionID
}
