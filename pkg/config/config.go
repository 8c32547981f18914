// Package config holds the typed configuration for every subsystem.
// All thresholds are injected at construction; nothing in the core
// reads the environment directly.
package config

import (
	"os"
	"time"
)

// Config aggregates the per-subsystem configurations.
type Config struct {
	Engine    *EngineConfig
	Room      *RoomConfig
	Broadcast *BroadcastConfig
	Chat      *ChatConfig
	Server    *ServerConfig
}

// Default returns a Config with every subsystem at its built-in defaults.
func Default() *Config {
	return &Config{
		Engine:    DefaultEngineConfig(),
		Room:      DefaultRoomConfig(),
		Broadcast: DefaultBroadcastConfig(),
		Chat:      DefaultChatConfig(),
		Server:    DefaultServerConfig(),
	}
}

// ServerConfig holds the HTTP surface configuration.
type ServerConfig struct {
	// ListenAddr is the HTTP listen address, e.g. ":8080".
	ListenAddr string

	// WriteTimeout bounds a single WebSocket send.
	WriteTimeout time.Duration

	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration

	// DatabaseURL enables the optional snapshot store when non-empty.
	DatabaseURL string
}

// DefaultServerConfig returns the built-in server defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ListenAddr:      ":8080",
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// FromEnv returns the defaults overridden by the process environment.
// Only deployment concerns live in the environment; game thresholds
// stay code-configured.
func FromEnv() *Config {
	cfg := Default()
	if addr := os.Getenv("HTTP_ADDR"); addr != "" {
		cfg.Server.ListenAddr = addr
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Server.DatabaseURL = dsn
	}
	return cfg
}
