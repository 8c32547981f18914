package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/encounterlive/encounterd/pkg/config"
	"github.com/encounterlive/encounterd/pkg/models"
)

// fakeRoom implements Room over in-memory state.
type fakeRoom struct {
	participants map[string]bool
	log          []models.ChatMessage
	published    []models.GameEvent
	targeted     map[string][]models.GameEvent
}

func newFakeRoom(users ...string) *fakeRoom {
	r := &fakeRoom{
		participants: make(map[string]bool),
		targeted:     make(map[string][]models.GameEvent),
	}
	for _, u := range users {
		r.participants[u] = true
	}
	return r
}

func (r *fakeRoom) InteractionID() string                    { return "int-1" }
func (r *fakeRoom) HasParticipant(userID string) bool        { return r.participants[userID] }
func (r *fakeRoom) AppendChatMessage(msg models.ChatMessage) { r.log = append(r.log, msg) }
func (r *fakeRoom) ChatLog() []models.ChatMessage            { return r.log }
func (r *fakeRoom) Publish(ev models.GameEvent)              { r.published = append(r.published, ev) }
func (r *fakeRoom) PublishToUser(userID string, ev models.GameEvent) {
	r.targeted[userID] = append(r.targeted[userID], ev)
}

func newTestService() *Service {
	return NewService(config.DefaultChatConfig(), NewFilter())
}

func TestSendPartyMessage(t *testing.T) {
	room := newFakeRoom("alice", "bob")
	svc := newTestService()

	msg, err := svc.Send(room, "alice", SendRequest{Content: "hello there"})
	require.NoError(t, err)
	assert.Equal(t, models.MessageTypeParty, msg.Type, "party is the default type")
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.Timestamp.IsZero())

	require.Len(t, room.log, 1)
	require.Len(t, room.published, 1)
	assert.Equal(t, models.EventChatMessage, room.published[0].Type)
}

func TestSendRequiresParticipant(t *testing.T) {
	room := newFakeRoom("alice")
	svc := newTestService()

	_, err := svc.Send(room, "mallory", SendRequest{Content: "hi"})
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestSendValidatesContent(t *testing.T) {
	room := newFakeRoom("alice")
	svc := newTestService()

	_, err := svc.Send(room, "alice", SendRequest{Content: ""})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "content", ve.Field)

	_, err = svc.Send(room, "alice", SendRequest{Content: strings.Repeat("a", 1001)})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "content", ve.Field)

	// Exactly at the limit is fine.
	_, err = svc.Send(room, "alice", SendRequest{Content: strings.Repeat("a", 1000)})
	assert.NoError(t, err)
}

func TestSendFiltersProfanity(t *testing.T) {
	room := newFakeRoom("alice")
	svc := newTestService()

	msg, err := svc.Send(room, "alice", SendRequest{Content: "what the HELL was that"})
	require.NoError(t, err)
	assert.Equal(t, "what the **** was that", msg.Content)
	assert.Equal(t, msg.Content, room.log[0].Content, "stored form is the filtered form")
}

// Filtering enabled with no filter wired must reject, not pass through.
func TestSendFailsClosedWithoutFilter(t *testing.T) {
	room := newFakeRoom("alice")
	svc := NewService(config.DefaultChatConfig(), nil)

	_, err := svc.Send(room, "alice", SendRequest{Content: "hello"})
	assert.ErrorIs(t, err, ErrFilterUnavailable)
	assert.Empty(t, room.log)
}

func TestPrivateMessageVisibility(t *testing.T) {
	room := newFakeRoom("alice", "bob", "carol")
	svc := newTestService()

	msg, err := svc.Send(room, "alice", SendRequest{
		Content:    "psst",
		Type:       models.MessageTypePrivate,
		Recipients: []string{"bob"},
	})
	require.NoError(t, err)

	assert.True(t, msg.VisibleTo("alice", false), "sender sees it")
	assert.True(t, msg.VisibleTo("bob", false), "recipient sees it")
	assert.False(t, msg.VisibleTo("carol", false), "bystander does not")
	assert.True(t, msg.VisibleTo("dungeon-master", true), "the DM sees everything")
}

// Private messages never touch the room-wide channel: only the
// sender's and each recipient's own subscriptions get the event, so no
// transport can leak them to bystanders.
func TestPrivateMessageRoutedToSenderAndRecipientsOnly(t *testing.T) {
	room := newFakeRoom("alice", "bob", "carol")
	svc := newTestService()

	_, err := svc.Send(room, "alice", SendRequest{
		Content:    "secret for bob",
		Type:       models.MessageTypePrivate,
		Recipients: []string{"bob", "bob"},
	})
	require.NoError(t, err)

	assert.Empty(t, room.published, "no room-wide fan-out")
	assert.Len(t, room.targeted["alice"], 1, "sender gets their own message once")
	assert.Len(t, room.targeted["bob"], 1, "duplicate recipients deliver once")
	assert.NotContains(t, room.targeted, "carol")
}

func TestSystemMessageRouting(t *testing.T) {
	room := newFakeRoom("alice", "bob")
	svc := newTestService()

	_, err := svc.Send(room, models.SystemPrincipal, SendRequest{
		Content: "you hear a noise", Type: models.MessageTypeSystem, Recipients: []string{"alice"},
	})
	require.NoError(t, err)
	assert.Empty(t, room.published, "targeted system messages skip the room channel")
	assert.Len(t, room.targeted["alice"], 1)
	assert.NotContains(t, room.targeted, "bob")

	_, err = svc.Send(room, models.SystemPrincipal, SendRequest{
		Content: "the ground shakes", Type: models.MessageTypeSystem,
	})
	require.NoError(t, err)
	assert.Len(t, room.published, 1, "untargeted system messages fan out room-wide")
}

func TestPrivateMessageRequiresKnownRecipients(t *testing.T) {
	room := newFakeRoom("alice")
	svc := newTestService()

	_, err := svc.Send(room, "alice", SendRequest{
		Content: "psst", Type: models.MessageTypePrivate,
	})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "recipients", ve.Field)

	_, err = svc.Send(room, "alice", SendRequest{
		Content: "psst", Type: models.MessageTypePrivate, Recipients: []string{"ghost"},
	})
	require.ErrorAs(t, err, &ve)
}

func TestDMChannelVisibility(t *testing.T) {
	room := newFakeRoom("alice", "bob")
	svc := newTestService()

	msg, err := svc.Send(room, "alice", SendRequest{Content: "secretly...", Type: models.MessageTypeDM})
	require.NoError(t, err)

	assert.True(t, msg.VisibleTo("alice", false))
	assert.False(t, msg.VisibleTo("bob", false))
	assert.True(t, msg.VisibleTo("any", true))
}

func TestSystemMessagesReserved(t *testing.T) {
	room := newFakeRoom("alice")
	svc := newTestService()

	_, err := svc.Send(room, "alice", SendRequest{Content: "x", Type: models.MessageTypeSystem})
	assert.ErrorIs(t, err, ErrSystemReserved)

	msg, err := svc.Send(room, models.SystemPrincipal, SendRequest{
		Content: "the encounter begins", Type: models.MessageTypeSystem,
	})
	require.NoError(t, err)
	assert.True(t, msg.VisibleTo("anyone", false))
}

func TestRateLimitPerUser(t *testing.T) {
	room := newFakeRoom("alice", "bob")
	cfg := config.DefaultChatConfig()
	cfg.RateLimitPerMinute = 3
	svc := NewService(cfg, NewFilter())

	for i := 0; i < 3; i++ {
		_, err := svc.Send(room, "alice", SendRequest{Content: "spam"})
		require.NoError(t, err)
	}
	_, err := svc.Send(room, "alice", SendRequest{Content: "spam"})
	assert.ErrorIs(t, err, ErrRateLimited)

	// Buckets are per user: bob is unaffected.
	_, err = svc.Send(room, "bob", SendRequest{Content: "hi"})
	assert.NoError(t, err)
}

// Rate limiting runs before content validation: an exhausted sender
// gets RateLimited even for a message that would also fail validation.
func TestRateLimitPrecedesValidation(t *testing.T) {
	room := newFakeRoom("alice")
	cfg := config.DefaultChatConfig()
	cfg.RateLimitPerMinute = 1
	svc := NewService(cfg, NewFilter())

	_, err := svc.Send(room, "alice", SendRequest{Content: "hi"})
	require.NoError(t, err)

	_, err = svc.Send(room, "alice", SendRequest{Content: ""})
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestSystemMessagesBypassRateLimit(t *testing.T) {
	room := newFakeRoom("alice")
	cfg := config.DefaultChatConfig()
	cfg.RateLimitPerMinute = 1
	svc := NewService(cfg, NewFilter())

	for i := 0; i < 5; i++ {
		_, err := svc.Send(room, models.SystemPrincipal, SendRequest{
			Content: "tick", Type: models.MessageTypeSystem,
		})
		require.NoError(t, err)
	}
}

func TestHistoryVisibilityAndOrder(t *testing.T) {
	room := newFakeRoom("alice", "bob", "carol")
	svc := newTestService()

	_, err := svc.Send(room, "alice", SendRequest{Content: "one"})
	require.NoError(t, err)
	_, err = svc.Send(room, "alice", SendRequest{
		Content: "two", Type: models.MessageTypePrivate, Recipients: []string{"bob"},
	})
	require.NoError(t, err)
	_, err = svc.Send(room, "carol", SendRequest{Content: "three"})
	require.NoError(t, err)

	carolView, carolTotal := svc.History(room, "carol", false, "", 0)
	require.Len(t, carolView, 2, "private message hidden from carol")
	assert.Equal(t, 2, carolTotal)
	assert.Equal(t, "three", carolView[0].Content, "newest first")
	assert.Equal(t, "one", carolView[1].Content)

	bobView, _ := svc.History(room, "bob", false, "", 0)
	assert.Len(t, bobView, 3)

	dmView, _ := svc.History(room, "anyone", true, "", 0)
	assert.Len(t, dmView, 3)

	privateOnly, total := svc.History(room, "bob", false, models.MessageTypePrivate, 0)
	require.Len(t, privateOnly, 1, "channel filter applies")
	assert.Equal(t, 1, total)
	assert.Equal(t, "two", privateOnly[0].Content)
}

func TestHistoryLimitClamped(t *testing.T) {
	room := newFakeRoom("alice")
	cfg := config.DefaultChatConfig()
	cfg.RateLimitPerMinute = 1000
	cfg.MaxHistoryLimit = 5
	svc := NewService(cfg, NewFilter())

	for i := 0; i < 10; i++ {
		_, err := svc.Send(room, "alice", SendRequest{Content: "msg"})
		require.NoError(t, err)
	}

	clamped, total := svc.History(room, "alice", false, "", 100)
	assert.Len(t, clamped, 5)
	assert.Equal(t, 10, total, "total counts past the limit")

	two, _ := svc.History(room, "alice", false, "", 2)
	assert.Len(t, two, 2)
}

func TestFilterClean(t *testing.T) {
	f := NewFilter()
	assert.Equal(t, "**** yeah", f.Clean("Hell yeah"))
	assert.Equal(t, "untouched", f.Clean("untouched"))

	custom := NewFilter("foo")
	assert.Equal(t, "*** bar ***", custom.Clean("foo bar FOO"))
}
