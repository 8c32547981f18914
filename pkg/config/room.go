package config

import "time"

// RoomConfig controls the room manager's registry and reaping behavior.
type RoomConfig struct {
	// InactivityTimeout is how long a room may go without activity
	// before the sweep considers reaping it.
	InactivityTimeout time.Duration `yaml:"inactivity_timeout"`

	// SweepInterval is how often the background sweep scans the registry.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// CompletedGracePeriod is how long completed rooms are retained so
	// late readers can still fetch the final state.
	CompletedGracePeriod time.Duration `yaml:"completed_grace_period"`

	// DefaultMapWidth and DefaultMapHeight size the map of rooms
	// created implicitly on first join.
	DefaultMapWidth  int `yaml:"default_map_width"`
	DefaultMapHeight int `yaml:"default_map_height"`
}

// DefaultRoomConfig returns the built-in room manager defaults.
func DefaultRoomConfig() *RoomConfig {
	return &RoomConfig{
		InactivityTimeout:    30 * time.Minute,
		SweepInterval:        1 * time.Minute,
		CompletedGracePeriod: 5 * time.Minute,
		DefaultMapWidth:      20,
		DefaultMapHeight:     20,
	}
}
