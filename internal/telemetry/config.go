package telemetry

import "time"

// Storage drivers accepted in Config.Driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds the telemetry plugin configuration.
type Config struct {
	Driver      string `mapstructure:"driver"`
	PostgresDSN string `mapstructure:"postgres_dsn"`

	// VerifyKey is the base64 ed25519 public key of the sensor gateway.
	// Signed envelopes are verified only when it is set.
	VerifyKey        string `mapstructure:"verify_key"`
	RequireSignature bool   `mapstructure:"require_signature"`

	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

// DefaultConfig returns the default telemetry configuration.
func DefaultConfig() Config {
	return Config{
		Driver:       DriverSQLite,
		MaxBodyBytes: 64 << 10,
		QueryTimeout: 5 * time.Second,
	}
}
