package config

import "time"

// BroadcastConfig controls the event broadcaster.
type BroadcastConfig struct {
	// MaxSubscriptionsPerUser caps subscriptions per user id; exceeding
	// it fails the subscribe call.
	MaxSubscriptionsPerUser int `yaml:"max_subscriptions_per_user"`

	// SubscriptionTimeout is the idle window after which a subscription
	// is reaped.
	SubscriptionTimeout time.Duration `yaml:"subscription_timeout"`

	// MaxBatchSize is the per-room delta buffer size that triggers an
	// immediate flush.
	MaxBatchSize int `yaml:"max_batch_size"`

	// BatchDelay is the maximum time a delta may sit in the buffer
	// before a flush, measured from the first queued delta.
	BatchDelay time.Duration `yaml:"batch_delay"`

	// HandlerBuffer is the per-subscription delivery queue depth.
	// Events beyond it are dropped and counted as failed deliveries.
	HandlerBuffer int `yaml:"handler_buffer"`

	// CleanupInterval is how often idle subscriptions are scanned.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultBroadcastConfig returns the built-in broadcaster defaults.
func DefaultBroadcastConfig() *BroadcastConfig {
	return &BroadcastConfig{
		MaxSubscriptionsPerUser: 10,
		SubscriptionTimeout:     5 * time.Minute,
		MaxBatchSize:            50,
		BatchDelay:              100 * time.Millisecond,
		HandlerBuffer:           256,
		CleanupInterval:         1 * time.Minute,
	}
}
