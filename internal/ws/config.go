package ws

import "time"

// Config holds the live telemetry stream settings.
type Config struct {
	// OriginPatterns are the host patterns allowed to open a stream.
	// "*" accepts any origin.
	OriginPatterns []string      `mapstructure:"origin_patterns"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	// SendLatest pushes the newest stored document when a client opens a
	// stream filtered to one device and site.
	SendLatest bool `mapstructure:"send_latest"`
}

// DefaultConfig returns the stream defaults.
func DefaultConfig() Config {
	return Config{
		OriginPatterns: []string{"*"},
		SendBuffer:     64,
		WriteTimeout:   5 * time.Second,
		SendLatest:     true,
	}
}
