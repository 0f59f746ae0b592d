package kafka

import "time"

// Offsets a new consumer group may start from.
const (
	OffsetFirst = "first"
	OffsetLast  = "last"
)

// Config holds the telemetry consumer settings.
type Config struct {
	Brokers     []string      `mapstructure:"brokers"`
	Topic       string        `mapstructure:"topic"`
	GroupID     string        `mapstructure:"group_id"`
	StartOffset string        `mapstructure:"start_offset"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
	// StoreAttempts bounds how often one message is offered to storage
	// before it is committed as dropped.
	StoreAttempts int           `mapstructure:"store_attempts"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
}

// DefaultConfig returns consumer defaults. No brokers leaves the plugin idle.
func DefaultConfig() Config {
	return Config{
		Topic:         "telemetry",
		GroupID:       "aquabot",
		StartOffset:   OffsetFirst,
		PollTimeout:   5 * time.Second,
		StoreAttempts: 3,
		RetryBackoff:  time.Second,
	}
}
