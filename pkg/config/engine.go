package config

import "time"

// EngineConfig controls the game state engine of a single room.
type EngineConfig struct {
	// TurnTimeout is the hard budget for one turn. When it elapses the
	// current turn is skipped with reason "timeout".
	TurnTimeout time.Duration `yaml:"turn_timeout"`

	// AutoAdvance arms the turn timer whenever a turn starts. Disabled
	// in tests that drive turns manually.
	AutoAdvance bool `yaml:"auto_advance"`

	// ValidateActions toggles action validation. Always on in
	// production; some fixtures disable it to force illegal states.
	ValidateActions bool `yaml:"validate_actions"`

	// EnableActionQueue enables per-entity FIFO action queues.
	EnableActionQueue bool `yaml:"enable_action_queue"`

	// MaxMoveDistance is the Manhattan movement budget per move action.
	// Placeholder until per-entity speeds exist.
	MaxMoveDistance int `yaml:"max_move_distance"`

	// MaxAttackRange is the Manhattan attack range.
	// Placeholder until weapons carry their own range.
	MaxAttackRange int `yaml:"max_attack_range"`

	// MaxTurnHistory bounds the turn history; oldest records are
	// dropped first.
	MaxTurnHistory int `yaml:"max_turn_history"`

	// MaxChatHistory bounds the per-room chat log; oldest messages are
	// dropped first.
	MaxChatHistory int `yaml:"max_chat_history"`
}

// DefaultEngineConfig returns the built-in engine defaults.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		TurnTimeout:       90 * time.Second,
		AutoAdvance:       true,
		ValidateActions:   true,
		EnableActionQueue: true,
		MaxMoveDistance:   5,
		MaxAttackRange:    1,
		MaxTurnHistory:    1000,
		MaxChatHistory:    500,
	}
}
