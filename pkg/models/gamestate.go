// Package models defines the domain types shared across subsystems:
// game state, actions, events, chat, deltas, and participants. The
// types are plain data; behavior lives in the engine and services.
package models

import "time"

// GameStatus is the room lifecycle state.
type GameStatus string

const (
	GameStatusWaiting   GameStatus = "waiting"
	GameStatusActive    GameStatus = "active"
	GameStatusPaused    GameStatus = "paused"
	GameStatusCompleted GameStatus = "completed"
)

// EntityType distinguishes player characters from DM-controlled ones.
type EntityType string

const (
	EntityTypeCharacter EntityType = "character"
	EntityTypeMonster   EntityType = "monster"
	EntityTypeNPC       EntityType = "npc"
)

// TurnStatus is an entity's standing within the current round.
type TurnStatus string

const (
	TurnStatusWaiting   TurnStatus = "waiting"
	TurnStatusActive    TurnStatus = "active"
	TurnStatusCompleted TurnStatus = "completed"
	TurnStatusSkipped   TurnStatus = "skipped"
)

// Position is a cell on the grid map.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// InitiativeEntry is one slot in the turn order.
type InitiativeEntry struct {
	EntityID   string     `json:"entity_id"`
	EntityType EntityType `json:"entity_type"`
	Initiative int        `json:"initiative"`
	UserID     string     `json:"user_id,omitempty"`
}

// InventoryItem is a stack of one item kind.
type InventoryItem struct {
	ItemID   string `json:"item_id"`
	Name     string `json:"name,omitempty"`
	Quantity int    `json:"quantity"`
}

// Inventory holds an entity's items.
type Inventory struct {
	Items []InventoryItem `json:"items"`
}

// EntityState is the live combat state of one entity.
// CurrentHP stays within [0, MaxHP]; the engine clamps on mutation.
type EntityState struct {
	EntityID   string     `json:"entity_id"`
	EntityType EntityType `json:"entity_type"`
	UserID     string     `json:"user_id,omitempty"`
	Name       string     `json:"name,omitempty"`
	Position   Position   `json:"position"`
	CurrentHP  int        `json:"current_hp"`
	MaxHP      int        `json:"max_hp"`
	TurnStatus TurnStatus `json:"turn_status"`
	Inventory  Inventory  `json:"inventory"`
	Conditions []string   `json:"conditions,omitempty"`
}

// Clone returns a deep copy.
func (e *EntityState) Clone() *EntityState {
	c := *e
	c.Inventory.Items = append([]InventoryItem(nil), e.Inventory.Items...)
	c.Conditions = append([]string(nil), e.Conditions...)
	return &c
}

// TerrainCell marks a special map cell.
type TerrainCell struct {
	Position Position `json:"position"`
	Kind     string   `json:"kind"`
}

// MapState is the grid map: dimensions, obstacles, terrain, and the
// authoritative entity positions.
type MapState struct {
	Width     int                 `json:"width"`
	Height    int                 `json:"height"`
	Entities  map[string]Position `json:"entities"`
	Obstacles []Position          `json:"obstacles,omitempty"`
	Terrain   []TerrainCell       `json:"terrain,omitempty"`
}

// InBounds reports whether p lies on the map.
func (m *MapState) InBounds(p Position) bool {
	return p.X >= 0 && p.X < m.Width && p.Y >= 0 && p.Y < m.Height
}

// IsObstacle reports whether p is blocked.
func (m *MapState) IsObstacle(p Position) bool {
	for _, o := range m.Obstacles {
		if o == p {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (m *MapState) Clone() *MapState {
	c := *m
	c.Entities = make(map[string]Position, len(m.Entities))
	for id, p := range m.Entities {
		c.Entities[id] = p
	}
	c.Obstacles = append([]Position(nil), m.Obstacles...)
	c.Terrain = append([]TerrainCell(nil), m.Terrain...)
	return &c
}

// GameState is the complete authoritative state of one room.
type GameState struct {
	InteractionID    string                  `json:"interaction_id"`
	Status           GameStatus              `json:"status"`
	InitiativeOrder  []InitiativeEntry       `json:"initiative_order"`
	CurrentTurnIndex int                     `json:"current_turn_index"`
	RoundNumber      int                     `json:"round_number"`
	Entities         map[string]*EntityState `json:"entities"`
	Map              *MapState               `json:"map"`
	TurnHistory      []TurnRecord            `json:"turn_history"`
	ChatLog          []ChatMessage           `json:"chat_log"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

// NewGameState returns an empty waiting state with an empty map of the
// given dimensions.
func NewGameState(interactionID string, mapWidth, mapHeight int) *GameState {
	return &GameState{
		InteractionID:    interactionID,
		Status:           GameStatusWaiting,
		InitiativeOrder:  []InitiativeEntry{},
		CurrentTurnIndex: 0,
		RoundNumber:      1,
		Entities:         make(map[string]*EntityState),
		Map: &MapState{
			Width:    mapWidth,
			Height:   mapHeight,
			Entities: make(map[string]Position),
		},
		TurnHistory: []TurnRecord{},
		ChatLog:     []ChatMessage{},
		UpdatedAt:   time.Now(),
	}
}

// CurrentEntity returns the initiative entry whose turn it is, or nil
// when the order is empty or the index is out of range.
func (s *GameState) CurrentEntity() *InitiativeEntry {
	if s.CurrentTurnIndex < 0 || s.CurrentTurnIndex >= len(s.InitiativeOrder) {
		return nil
	}
	entry := s.InitiativeOrder[s.CurrentTurnIndex]
	return &entry
}

// Clone returns a deep copy. Snapshots handed outside the engine lock
// are always clones, never aliases of live state.
func (s *GameState) Clone() *GameState {
	c := *s
	c.InitiativeOrder = append([]InitiativeEntry(nil), s.InitiativeOrder...)
	c.Entities = make(map[string]*EntityState, len(s.Entities))
	for id, e := range s.Entities {
		c.Entities[id] = e.Clone()
	}
	if s.Map != nil {
		c.Map = s.Map.Clone()
	}
	c.TurnHistory = make([]TurnRecord, len(s.TurnHistory))
	for i := range s.TurnHistory {
		c.TurnHistory[i] = *s.TurnHistory[i].Clone()
	}
	c.ChatLog = append([]ChatMessage(nil), s.ChatLog...)
	return &c
}
