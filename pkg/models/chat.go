package models

import "time"

// MessageType is the chat channel a message belongs to.
type MessageType string

const (
	MessageTypeParty   MessageType = "party"
	MessageTypeDM      MessageType = "dm"
	MessageTypePrivate MessageType = "private"
	MessageTypeSystem  MessageType = "system"
)

// SystemPrincipal is the only user id allowed to author system messages.
const SystemPrincipal = "system"

// ChatMessage is a single chat entry. Recipients is set only for
// private messages and for targeted system messages.
type ChatMessage struct {
	ID         string      `json:"id"`
	UserID     string      `json:"user_id"`
	EntityID   string      `json:"entity_id,omitempty"`
	Content    string      `json:"content"`
	Type       MessageType `json:"type"`
	Recipients []string    `json:"recipients,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// VisibleTo reports whether userID may see this message. The DM sees
// everything. Private messages are visible only to the author and
// listed recipients; dm-channel messages to their author and the DM;
// targeted system messages only to their recipients.
func (m *ChatMessage) VisibleTo(userID string, isDM bool) bool {
	if isDM {
		return true
	}
	switch m.Type {
	case MessageTypeParty:
		return true
	case MessageTypeDM:
		return m.UserID == userID
	case MessageTypePrivate:
		if m.UserID == userID {
			return true
		}
		for _, r := range m.Recipients {
			if r == userID {
				return true
			}
		}
		return false
	case MessageTypeSystem:
		if len(m.Recipients) == 0 {
			return true
		}
		for _, r := range m.Recipients {
			if r == userID {
				return true
			}
		}
		return false
	default:
		return false
	}
}
