// Package chat implements room chat: per-user rate limiting, message
// validation, profanity filtering, visibility-scoped history, and
// channel-aware routing. Private and targeted system messages reach
// only the sender's and recipients' subscriptions; party and dm
// messages fan out room-wide.
package chat

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/encounterlive/encounterd/pkg/config"
	"github.com/encounterlive/encounterd/pkg/models"
)

var (
	// ErrRateLimited is returned when a sender exhausts their token bucket.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrNotParticipant is returned when the sender is not in the room.
	ErrNotParticipant = errors.New("sender is not a room participant")

	// ErrFilterUnavailable is returned when filtering is enabled but no
	// filter is wired. The service fails closed: no message passes
	// unfiltered.
	ErrFilterUnavailable = errors.New("profanity filter unavailable")

	// ErrSystemReserved is returned when a regular user tries to send a
	// system message.
	ErrSystemReserved = errors.New("system messages are reserved")
)

// ValidationError mirrors the room package's field errors for the
// operation surface.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// Room is the slice of a live room the chat service needs.
// Implemented by room.Room.
type Room interface {
	InteractionID() string
	HasParticipant(userID string) bool
	AppendChatMessage(msg models.ChatMessage)
	ChatLog() []models.ChatMessage
	Publish(ev models.GameEvent)
	PublishToUser(userID string, ev models.GameEvent)
}

// SendRequest describes one outgoing chat message.
type SendRequest struct {
	Content    string
	Type       models.MessageType
	EntityID   string
	Recipients []string
}

// Service is the chat pipeline. One instance serves every room; rate
// limiter buckets are keyed by room and sender.
type Service struct {
	cfg    *config.ChatConfig
	filter *Filter

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewService creates a chat service. filter may be nil only when the
// config disables filtering.
func NewService(cfg *config.ChatConfig, filter *Filter) *Service {
	if cfg == nil {
		cfg = config.DefaultChatConfig()
	}
	return &Service{
		cfg:      cfg,
		filter:   filter,
		limiters: make(map[string]*rate.Limiter),
	}
}

// limiter returns the token bucket for one sender in one room. The
// bucket holds a minute's budget and refills continuously.
func (s *Service) limiter(interactionID, userID string) *rate.Limiter {
	key := interactionID + "/" + userID
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.cfg.RateLimitPerMinute)), s.cfg.RateLimitPerMinute)
		s.limiters[key] = l
	}
	return l
}

// Send runs the message pipeline: rate limit, content validation,
// profanity filter, construction, permission check, routing. System
// messages bypass the rate limit but only the system principal may
// send them. The stored and broadcast content is always the filtered
// form.
func (s *Service) Send(r Room, senderID string, req SendRequest) (*models.ChatMessage, error) {
	if senderID == "" {
		return nil, &ValidationError{Field: "user_id", Message: "must not be empty"}
	}
	if req.Type == "" {
		req.Type = models.MessageTypeParty
	}

	if req.Type != models.MessageTypeSystem && !s.limiter(r.InteractionID(), senderID).Allow() {
		return nil, ErrRateLimited
	}

	if err := s.validateContent(req.Content); err != nil {
		return nil, err
	}

	content := req.Content
	if s.cfg.EnableFilter {
		if s.filter == nil {
			return nil, ErrFilterUnavailable
		}
		content = s.filter.Clean(content)
	}

	// Recipients only mean something on private and targeted system
	// messages.
	recipients := req.Recipients
	if req.Type == models.MessageTypeParty || req.Type == models.MessageTypeDM {
		recipients = nil
	}
	msg := models.ChatMessage{
		ID:         uuid.NewString(),
		UserID:     senderID,
		EntityID:   req.EntityID,
		Content:    content,
		Type:       req.Type,
		Recipients: append([]string(nil), recipients...),
		Timestamp:  time.Now(),
	}

	if err := s.checkPermissions(r, senderID, req); err != nil {
		return nil, err
	}

	r.AppendChatMessage(msg)
	s.route(r, msg)
	return &msg, nil
}

func (s *Service) validateContent(content string) error {
	if content == "" {
		return &ValidationError{Field: "content", Message: "must not be empty"}
	}
	if len(content) > s.cfg.MaxMessageLength {
		return &ValidationError{
			Field:   "content",
			Message: fmt.Sprintf("exceeds maximum length of %d", s.cfg.MaxMessageLength),
		}
	}
	return nil
}

// checkPermissions enforces who may send what: the system principal
// for system messages, participants for everything else, and known
// participant recipients on private messages.
func (s *Service) checkPermissions(r Room, senderID string, req SendRequest) error {
	switch req.Type {
	case models.MessageTypeSystem:
		if senderID != models.SystemPrincipal {
			return ErrSystemReserved
		}
		return nil
	case models.MessageTypeParty, models.MessageTypeDM:
	case models.MessageTypePrivate:
		if len(req.Recipients) == 0 {
			return &ValidationError{Field: "recipients", Message: "private messages need at least one recipient"}
		}
		for _, rec := range req.Recipients {
			if !r.HasParticipant(rec) {
				return &ValidationError{
					Field:   "recipients",
					Message: fmt.Sprintf("recipient %s is not in the room", rec),
				}
			}
		}
	default:
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unknown message type %q", req.Type)}
	}
	if !r.HasParticipant(senderID) {
		return ErrNotParticipant
	}
	return nil
}

// route applies the delivery rules: private and targeted system
// messages go only to the sender's and each recipient's own
// subscriptions, never onto the room-wide channel. Everything else
// fans out room-wide; per-connection visibility filtering still
// applies on top for the dm channel.
func (s *Service) route(r Room, msg models.ChatMessage) {
	ev := models.GameEvent{
		Type:    models.EventChatMessage,
		UserID:  msg.UserID,
		Payload: map[string]any{"message": msg},
	}
	if len(msg.Recipients) == 0 {
		r.Publish(ev)
		return
	}

	r.PublishToUser(msg.UserID, ev)
	delivered := map[string]struct{}{msg.UserID: {}}
	for _, rec := range msg.Recipients {
		if _, ok := delivered[rec]; ok {
			continue
		}
		delivered[rec] = struct{}{}
		r.PublishToUser(rec, ev)
	}
}

// History returns the most recent messages visible to userID, newest
// first, optionally filtered to one channel type. The second return is
// the total number of visible matching messages before the limit.
// limit <= 0 uses the default; limits above the cap are clamped.
func (s *Service) History(r Room, userID string, isDM bool, channelType models.MessageType, limit int) ([]models.ChatMessage, int) {
	if limit <= 0 {
		limit = s.cfg.DefaultHistoryLimit
	}
	if limit > s.cfg.MaxHistoryLimit {
		limit = s.cfg.MaxHistoryLimit
	}

	log := r.ChatLog()
	visible := make([]models.ChatMessage, 0, limit)
	total := 0
	for i := len(log) - 1; i >= 0; i-- {
		if channelType != "" && log[i].Type != channelType {
			continue
		}
		if !log[i].VisibleTo(userID, isDM) {
			continue
		}
		total++
		if len(visible) < limit {
			visible = append(visible, log[i])
		}
	}
	return visible, total
}

// ResetLimiter drops a sender's bucket. Used when their room is reaped.
func (s *Service) ResetLimiter(interactionID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.limiters, interactionID+"/"+userID)
}
