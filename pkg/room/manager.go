package room

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/encounterlive/encounterd/pkg/config"
	"github.com/encounterlive/encounterd/pkg/engine"
	"github.com/encounterlive/encounterd/pkg/models"
)

// SnapshotStore persists room state across restarts. Optional; a nil
// store means reaped rooms are simply discarded.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, state *models.GameState) error
	LoadSnapshot(ctx context.Context, interactionID string) (*models.GameState, error)
	DeleteSnapshot(ctx context.Context, interactionID string) error
}

// ErrSnapshotNotFound is returned by SnapshotStore implementations
// when no snapshot exists for an interaction id.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// RoomStats describes one room for the stats endpoint.
type RoomStats struct {
	InteractionID  string            `json:"interaction_id"`
	Status         models.GameStatus `json:"status"`
	Participants   int               `json:"participants"`
	Connected      int               `json:"connected"`
	Entities       int               `json:"entities"`
	Round          int               `json:"round"`
	PendingActions int               `json:"pending_actions"`
	CreatedAt      time.Time         `json:"created_at"`
	LastActivity   time.Time         `json:"last_activity"`
}

// ManagerStats is the aggregate census across every registered room.
type ManagerStats struct {
	TotalRooms            int                `json:"total_rooms"`
	ActiveRooms           int                `json:"active_rooms"`
	PausedRooms           int                `json:"paused_rooms"`
	CompletedRooms        int                `json:"completed_rooms"`
	TotalParticipants     int                `json:"total_participants"`
	ConnectedParticipants int                `json:"connected_participants"`
	Config                *config.RoomConfig `json:"config"`
}

// Manager is the room registry. It creates rooms on demand, restores
// them from the snapshot store when one exists, and reaps inactive and
// long-completed rooms on a background sweep.
type Manager struct {
	cfg       *config.RoomConfig
	engineCfg *config.EngineConfig
	pub       Publisher
	store     SnapshotStore

	mu           sync.RWMutex
	rooms        map[string]*Room
	shuttingDown bool

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManager creates a manager. pub and store may be nil.
func NewManager(cfg *config.RoomConfig, engineCfg *config.EngineConfig, pub Publisher, store SnapshotStore) *Manager {
	if cfg == nil {
		cfg = config.DefaultRoomConfig()
	}
	if engineCfg == nil {
		engineCfg = config.DefaultEngineConfig()
	}
	return &Manager{
		cfg:       cfg,
		engineCfg: engineCfg,
		pub:       pub,
		store:     store,
		rooms:     make(map[string]*Room),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the background inactivity sweep.
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.sweepLoop()
}

// GetOrCreate returns the room for an interaction id, creating it when
// absent. A snapshot store hit restores the saved state; a restored
// active room comes back paused because its turn timer context is gone.
func (m *Manager) GetOrCreate(ctx context.Context, interactionID string) (*Room, error) {
	if interactionID == "" {
		return nil, NewValidationError("interaction_id", "must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shuttingDown {
		return nil, ErrShuttingDown
	}
	if r, ok := m.rooms[interactionID]; ok {
		return r, nil
	}

	r := newRoom(interactionID, m.engineCfg, m.cfg, m.pub)
	if m.store != nil {
		saved, err := m.store.LoadSnapshot(ctx, interactionID)
		switch {
		case err == nil:
			if saved.Status == models.GameStatusActive {
				saved.Status = models.GameStatusPaused
			}
			r.engine = engine.New(m.engineCfg, saved,
				func(ev models.GameEvent) { r.pub.Broadcast(interactionID, ev) },
				func(d models.StateDelta) { r.pub.BroadcastDelta(d) },
			)
			slog.Info("Room restored from snapshot",
				"interaction_id", interactionID, "status", saved.Status)
		case errors.Is(err, ErrSnapshotNotFound):
			// New room.
		default:
			slog.Error("Snapshot load failed, starting fresh",
				"interaction_id", interactionID, "error", err)
		}
	}

	m.rooms[interactionID] = r
	slog.Info("Room created", "interaction_id", interactionID)
	return r, nil
}

// CreateRoom registers a room seeded with a prepared game state and
// fails with ErrAlreadyExists when the interaction id is taken. A nil
// initial state gets the default empty map.
func (m *Manager) CreateRoom(interactionID string, initial *models.GameState) (*Room, error) {
	if interactionID == "" {
		return nil, NewValidationError("interaction_id", "must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shuttingDown {
		return nil, ErrShuttingDown
	}
	if _, ok := m.rooms[interactionID]; ok {
		return nil, ErrAlreadyExists
	}

	r := newRoom(interactionID, m.engineCfg, m.cfg, m.pub)
	if initial != nil {
		initial.InteractionID = interactionID
		r.engine = engine.New(m.engineCfg, initial,
			func(ev models.GameEvent) { r.pub.Broadcast(interactionID, ev) },
			func(d models.StateDelta) { r.pub.BroadcastDelta(d) },
		)
	}
	m.rooms[interactionID] = r
	slog.Info("Room created", "interaction_id", interactionID, "seeded", initial != nil)
	return r, nil
}

// Get returns an existing room or ErrNotFound.
func (m *Manager) Get(interactionID string) (*Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[interactionID]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

// Remove deletes a room from the registry and stops its engine.
func (m *Manager) Remove(interactionID string) error {
	m.mu.Lock()
	r, ok := m.rooms[interactionID]
	if ok {
		delete(m.rooms, interactionID)
	}
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	// Completing cancels the turn timer and clears the queues.
	_ = r.engine.Complete()
	return nil
}

// Count returns the number of registered rooms.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// RoomList returns a per-room summary of every registered room.
func (m *Manager) RoomList() []RoomStats {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	out := make([]RoomStats, 0, len(rooms))
	for _, r := range rooms {
		es := r.Engine().Stats()
		out = append(out, RoomStats{
			InteractionID:  r.InteractionID(),
			Status:         es.Status,
			Participants:   len(r.Participants()),
			Connected:      r.ConnectedCount(),
			Entities:       es.Entities,
			Round:          es.RoundNumber,
			PendingActions: es.PendingActions,
			CreatedAt:      r.CreatedAt(),
			LastActivity:   r.LastActivity(),
		})
	}
	return out
}

// Stats aggregates the room census for the stats surface.
func (m *Manager) Stats() ManagerStats {
	stats := ManagerStats{Config: m.cfg}
	for _, rs := range m.RoomList() {
		stats.TotalRooms++
		switch rs.Status {
		case models.GameStatusActive:
			stats.ActiveRooms++
		case models.GameStatusPaused:
			stats.PausedRooms++
		case models.GameStatusCompleted:
			stats.CompletedRooms++
		}
		stats.TotalParticipants += rs.Participants
		stats.ConnectedParticipants += rs.Connected
	}
	return stats
}

func (m *Manager) sweepLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stopCh:
			return
		}
	}
}

// sweep reaps rooms that went inactive past the timeout and completed
// rooms past their grace period. An active room with connected
// participants is never reaped, however idle. Inactive rooms are
// snapshotted first when a store is configured, so a later join
// restores them.
func (m *Manager) sweep() {
	now := time.Now()

	m.mu.RLock()
	candidates := make([]*Room, 0)
	for _, r := range m.rooms {
		candidates = append(candidates, r)
	}
	m.mu.RUnlock()

	for _, r := range candidates {
		idle := now.Sub(r.LastActivity())
		status := r.engine.Status()

		switch {
		case status == models.GameStatusCompleted && idle > m.cfg.CompletedGracePeriod:
			slog.Info("Reaping completed room",
				"interaction_id", r.InteractionID(), "idle", idle)
			if m.store != nil {
				m.deleteSnapshot(r.InteractionID())
			}
			_ = m.Remove(r.InteractionID())

		case idle > m.cfg.InactivityTimeout &&
			(status != models.GameStatusActive || r.ConnectedCount() == 0):
			slog.Info("Reaping inactive room",
				"interaction_id", r.InteractionID(), "idle", idle, "status", status)
			m.saveSnapshot(r)
			_ = m.Remove(r.InteractionID())
		}
	}
}

func (m *Manager) saveSnapshot(r *Room) {
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.store.SaveSnapshot(ctx, r.State()); err != nil {
		slog.Error("Snapshot save failed",
			"interaction_id", r.InteractionID(), "error", err)
	}
}

func (m *Manager) deleteSnapshot(interactionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.store.DeleteSnapshot(ctx, interactionID); err != nil && !errors.Is(err, ErrSnapshotNotFound) {
		slog.Error("Snapshot delete failed",
			"interaction_id", interactionID, "error", err)
	}
}

// Shutdown stops the sweep, snapshots every room when a store is
// configured, and stops all engines. New GetOrCreate calls fail with
// ErrShuttingDown once shutdown begins.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.shuttingDown = true
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.Unlock()

	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()

	for _, r := range rooms {
		if m.store != nil {
			if err := m.store.SaveSnapshot(ctx, r.State()); err != nil {
				slog.Error("Shutdown snapshot failed",
					"interaction_id", r.InteractionID(), "error", err)
			}
		}
		_ = r.engine.Complete()
	}
	slog.Info("Room manager stopped", "rooms", len(rooms))
	return ctx.Err()
}
