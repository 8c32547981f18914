// Package room hosts live encounter rooms: the registry keyed by
// interaction id, per-room participant tracking, and the lifecycle
// glue between the engine, the broadcaster, and the snapshot store.
package room

import (
	"sync"
	"time"

	"github.com/encounterlive/encounterd/pkg/config"
	"github.com/encounterlive/encounterd/pkg/engine"
	"github.com/encounterlive/encounterd/pkg/models"
)

// Publisher fans events and deltas out to subscribers. Implemented by
// the broadcast package; rooms never deliver to clients themselves.
type Publisher interface {
	Broadcast(interactionID string, event models.GameEvent)
	BroadcastToUser(interactionID, userID string, event models.GameEvent)
	BroadcastDelta(delta models.StateDelta)
}

// noopPublisher keeps rooms usable without a broadcaster (tests).
type noopPublisher struct{}

func (noopPublisher) Broadcast(string, models.GameEvent)               {}
func (noopPublisher) BroadcastToUser(string, string, models.GameEvent) {}
func (noopPublisher) BroadcastDelta(models.StateDelta)                 {}

// JoinRequest describes a user joining a room.
type JoinRequest struct {
	UserID     string
	EntityID   string
	EntityType models.EntityType
	Initiative int
	Position   *models.Position
	MaxHP      int
}

// defaultMaxHP is used when a join request does not carry hit points.
const defaultMaxHP = 10

// Room is one live encounter: a game engine plus the participants
// attached to it. The room mutex guards participants and activity
// tracking; game state has its own lock inside the engine. Lock order
// is always room before engine, never the reverse.
type Room struct {
	interactionID string
	engine        *engine.Engine
	pub           Publisher

	mu           sync.RWMutex
	participants map[string]*models.Participant
	createdAt    time.Time
	lastActivity time.Time
}

func newRoom(interactionID string, engineCfg *config.EngineConfig, roomCfg *config.RoomConfig, pub Publisher) *Room {
	if pub == nil {
		pub = noopPublisher{}
	}
	r := &Room{
		interactionID: interactionID,
		pub:           pub,
		participants:  make(map[string]*models.Participant),
		createdAt:     time.Now(),
		lastActivity:  time.Now(),
	}
	state := models.NewGameState(interactionID, roomCfg.DefaultMapWidth, roomCfg.DefaultMapHeight)
	r.engine = engine.New(engineCfg, state,
		func(ev models.GameEvent) { pub.Broadcast(interactionID, ev) },
		func(d models.StateDelta) { pub.BroadcastDelta(d) },
	)
	return r
}

// InteractionID returns the room's interaction id.
func (r *Room) InteractionID() string { return r.interactionID }

// Engine returns the room's game engine.
func (r *Room) Engine() *engine.Engine { return r.engine }

// Publish broadcasts an event on the room's channel.
func (r *Room) Publish(ev models.GameEvent) {
	r.pub.Broadcast(r.interactionID, ev)
}

// PublishToUser delivers an event only to one user's subscriptions on
// the room's channel. Private chat goes through here so other
// subscribers never receive it, whatever the transport.
func (r *Room) PublishToUser(userID string, ev models.GameEvent) {
	r.pub.BroadcastToUser(r.interactionID, userID, ev)
}

// Join attaches a user to the room. Joining twice with the same user
// id is a reconnect: the existing participant is returned unchanged
// apart from its activity marker, and no event is emitted. A new
// join creates the entity in the engine when it does not exist yet.
func (r *Room) Join(req JoinRequest) (*models.Participant, error) {
	if req.UserID == "" {
		return nil, NewValidationError("user_id", "must not be empty")
	}
	if req.EntityID == "" {
		return nil, NewValidationError("entity_id", "must not be empty")
	}
	if req.EntityType == "" {
		req.EntityType = models.EntityTypeCharacter
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.participants[req.UserID]; ok {
		p.Connected = true
		p.LastActivity = time.Now()
		r.lastActivity = time.Now()
		cp := *p
		return &cp, nil
	}

	snap := r.engine.Snapshot()
	if snap.Status == models.GameStatusCompleted {
		return nil, ErrRoomCompleted
	}

	if existing, ok := snap.Entities[req.EntityID]; ok {
		// Binding to an existing entity is only allowed when nobody
		// else controls it.
		if existing.UserID != "" && existing.UserID != req.UserID {
			return nil, ErrPermissionDenied
		}
	} else {
		maxHP := req.MaxHP
		if maxHP <= 0 {
			maxHP = defaultMaxHP
		}
		pos := r.placement(snap, req.Position)
		err := r.engine.AddEntity(&models.EntityState{
			EntityID:   req.EntityID,
			EntityType: req.EntityType,
			UserID:     req.UserID,
			Position:   pos,
			CurrentHP:  maxHP,
			MaxHP:      maxHP,
		}, req.Initiative)
		if err != nil {
			return nil, err
		}
	}

	p := &models.Participant{
		UserID:       req.UserID,
		EntityID:     req.EntityID,
		EntityType:   req.EntityType,
		Connected:    true,
		LastActivity: time.Now(),
	}
	r.participants[req.UserID] = p
	r.lastActivity = time.Now()

	r.pub.Broadcast(r.interactionID, models.GameEvent{
		Type:     models.EventParticipantJoined,
		EntityID: req.EntityID,
		UserID:   req.UserID,
	})

	cp := *p
	return &cp, nil
}

// placement resolves the requested position, falling back to the
// first free cell when none is given or the requested one is taken.
func (r *Room) placement(snap *models.GameState, requested *models.Position) models.Position {
	occupied := func(p models.Position) bool {
		if snap.Map.IsObstacle(p) {
			return true
		}
		for _, q := range snap.Map.Entities {
			if q == p {
				return true
			}
		}
		return false
	}
	if requested != nil && snap.Map.InBounds(*requested) && !occupied(*requested) {
		return *requested
	}
	for y := 0; y < snap.Map.Height; y++ {
		for x := 0; x < snap.Map.Width; x++ {
			p := models.Position{X: x, Y: y}
			if !occupied(p) {
				return p
			}
		}
	}
	return models.Position{}
}

// Leave marks a participant disconnected. The entity stays in the
// initiative order; unplayed turns run out on the turn timer.
func (r *Room) Leave(userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[userID]
	if !ok {
		return ErrParticipantNotFound
	}
	p.Connected = false
	p.LastActivity = time.Now()
	r.lastActivity = time.Now()

	r.pub.Broadcast(r.interactionID, models.GameEvent{
		Type:     models.EventParticipantLeft,
		EntityID: p.EntityID,
		UserID:   userID,
	})
	return nil
}

// Participant returns the participant for a user id.
func (r *Room) Participant(userID string) (*models.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[userID]
	if !ok {
		return nil, ErrParticipantNotFound
	}
	cp := *p
	return &cp, nil
}

// HasParticipant reports whether a user belongs to the room.
func (r *Room) HasParticipant(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.participants[userID]
	return ok
}

// ConnectedCount returns how many participants are currently connected.
func (r *Room) ConnectedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, p := range r.participants {
		if p.Connected {
			n++
		}
	}
	return n
}

// BindConnection records the live connection serving a participant.
// A re-subscribe replaces the previous connection id.
func (r *Room) BindConnection(userID, connectionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[userID]
	if !ok {
		return ErrParticipantNotFound
	}
	p.ConnectionID = connectionID
	p.Connected = true
	p.LastActivity = time.Now()
	return nil
}

// ReleaseConnection clears a participant's connection id when it still
// matches; a stale release from an older connection is a no-op.
func (r *Room) ReleaseConnection(userID, connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.participants[userID]; ok && p.ConnectionID == connectionID {
		p.ConnectionID = ""
	}
}

// Participants returns a copy of the participant list.
func (r *Room) Participants() []models.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, *p)
	}
	return out
}

// ParticipantUserIDs returns the user ids present in the room.
func (r *Room) ParticipantUserIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.participants))
	for id := range r.participants {
		out = append(out, id)
	}
	return out
}

// State returns a deep snapshot of the game state.
func (r *Room) State() *models.GameState {
	return r.engine.Snapshot()
}

// AppendChatMessage stores a chat message in the room's bounded log.
func (r *Room) AppendChatMessage(msg models.ChatMessage) {
	r.engine.AppendChatMessage(msg)
	r.Touch()
}

// ChatLog returns a copy of the room's chat log.
func (r *Room) ChatLog() []models.ChatMessage {
	return r.engine.ChatLog()
}

// Pause freezes the encounter and announces it.
func (r *Room) Pause() error {
	if err := r.engine.Pause(); err != nil {
		return err
	}
	r.Touch()
	r.pub.Broadcast(r.interactionID, models.GameEvent{Type: models.EventInteractionPaused})
	return nil
}

// Resume re-activates a paused encounter and announces it.
func (r *Room) Resume() error {
	if err := r.engine.Resume(); err != nil {
		return err
	}
	r.Touch()
	r.pub.Broadcast(r.interactionID, models.GameEvent{Type: models.EventInteractionResumed})
	return nil
}

// Complete terminally finishes the encounter. The room stays readable
// until the manager reaps it after the completion grace period.
func (r *Room) Complete() error {
	if err := r.engine.Complete(); err != nil {
		return err
	}
	r.Touch()
	return nil
}

// Touch records activity, deferring the inactivity reaper.
func (r *Room) Touch() {
	r.mu.Lock()
	r.lastActivity = time.Now()
	r.mu.Unlock()
}

// LastActivity returns the most recent activity timestamp.
func (r *Room) LastActivity() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastActivity
}

// CreatedAt returns the room creation time.
func (r *Room) CreatedAt() time.Time {
	return r.createdAt
}
