package config

// ChatConfig controls the chat service.
type ChatConfig struct {
	// RateLimitPerMinute is the per-user message budget.
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`

	// MaxMessageLength bounds message content in bytes.
	MaxMessageLength int `yaml:"max_message_length"`

	// MaxHistorySize bounds the per-room chat log.
	MaxHistorySize int `yaml:"max_history_size"`

	// EnableFilter turns profanity substitution on.
	EnableFilter bool `yaml:"enable_filter"`

	// DefaultHistoryLimit is used when get_chat_history passes no limit.
	DefaultHistoryLimit int `yaml:"default_history_limit"`

	// MaxHistoryLimit caps the limit a caller may request.
	MaxHistoryLimit int `yaml:"max_history_limit"`
}

// DefaultChatConfig returns the built-in chat defaults.
func DefaultChatConfig() *ChatConfig {
	return &ChatConfig{
		RateLimitPerMinute:  30,
		MaxMessageLength:    1000,
		MaxHistorySize:      500,
		EnableFilter:        true,
		DefaultHistoryLimit: 50,
		MaxHistoryLimit:     100,
	}
}
