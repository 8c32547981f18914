package models

import "time"

// Participant associates an authenticated principal with an entity
// inside a room. Participants reference rooms by interaction id; they
// never own them.
type Participant struct {
	UserID       string     `json:"user_id"`
	EntityID     string     `json:"entity_id"`
	EntityType   EntityType `json:"entity_type"`
	ConnectionID string     `json:"connection_id,omitempty"`
	Connected    bool       `json:"connected"`
	LastActivity time.Time  `json:"last_activity"`
}
