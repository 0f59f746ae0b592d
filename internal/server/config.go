package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	CORSOrigins    []string      `mapstructure:"cors_origins"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout must cover a full assistant answer, which includes two
	// LLM calls.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DefaultConfig returns the server defaults.
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		CORSOrigins:    []string{"*"},
		RateLimitRPS:   20,
		RateLimitBurst: 40,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   3 * time.Minute,
		IdleTimeout:    60 * time.Second,
	}
}

// Addr returns the listen address as host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ConfigFrom reads the server section of v, falling back to defaults.
func ConfigFrom(v *viper.Viper) (Config, error) {
	cfg := DefaultConfig()
	if sub := v.Sub("server"); sub != nil {
		if err := sub.Unmarshal(&cfg); err != nil {
			return Config{}, fmt.Errorf("unmarshal server config: %w", err)
		}
	}
	return cfg, nil
}

// LoadConfig reads configuration from file and environment variables.
// Environment variables use the AQ prefix with dots replaced by
// underscores: AQ_SERVER_PORT=9090, AQ_PLUGINS_LLM_PROVIDER=openai.
func LoadConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	srv := DefaultConfig()
	v.SetDefault("server.host", srv.Host)
	v.SetDefault("server.port", srv.Port)
	v.SetDefault("server.cors_origins", srv.CORSOrigins)
	v.SetDefault("server.rate_limit_rps", srv.RateLimitRPS)
	v.SetDefault("server.rate_limit_burst", srv.RateLimitBurst)
	v.SetDefault("server.read_timeout", srv.ReadTimeout.String())
	v.SetDefault("server.write_timeout", srv.WriteTimeout.String())
	v.SetDefault("server.idle_timeout", srv.IdleTimeout.String())
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.path", "./data/aquabot.db")

	// Plugin defaults
	v.SetDefault("plugins.telemetry.enabled", true)
	v.SetDefault("plugins.telemetry.driver", "sqlite")
	v.SetDefault("plugins.telemetry.postgres_dsn", "")
	v.SetDefault("plugins.telemetry.verify_key", "")
	v.SetDefault("plugins.telemetry.require_signature", false)
	v.SetDefault("plugins.telemetry.max_body_bytes", 64<<10)
	v.SetDefault("plugins.telemetry.query_timeout", "5s")
	v.SetDefault("plugins.assistant.enabled", true)
	v.SetDefault("plugins.assistant.generator", "llm")
	v.SetDefault("plugins.assistant.model", "")
	v.SetDefault("plugins.assistant.classifier_timeout", "60s")
	v.SetDefault("plugins.assistant.storage_timeout", "5s")
	v.SetDefault("plugins.assistant.generator_timeout", "60s")
	v.SetDefault("plugins.assistant.max_history_messages", 10)
	v.SetDefault("plugins.llm.enabled", true)
	v.SetDefault("plugins.llm.provider", "ollama")
	v.SetDefault("plugins.llm.ollama.url", "http://localhost:11434")
	v.SetDefault("plugins.llm.ollama.model", "qwen2:0.5b")
	v.SetDefault("plugins.llm.ollama.timeout", "2m")
	v.SetDefault("plugins.llm.openai.model", "gpt-4o-mini")
	v.SetDefault("plugins.llm.openai.api_key", "")
	v.SetDefault("plugins.llm.anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("plugins.llm.anthropic.api_key", "")
	v.SetDefault("plugins.mqtt.enabled", false)
	v.SetDefault("plugins.mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("plugins.mqtt.topic_prefix", "aquabot")
	v.SetDefault("plugins.mqtt.qos", 1)
	v.SetDefault("plugins.mqtt.embedded_broker", false)
	v.SetDefault("plugins.mqtt.embedded_addr", ":1883")
	v.SetDefault("plugins.kafka.enabled", false)
	v.SetDefault("plugins.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("plugins.kafka.topic", "telemetry")
	v.SetDefault("plugins.kafka.group_id", "aquabot")
	v.SetDefault("plugins.webhook.url", "")
	v.SetDefault("plugins.webhook.cooldown", "15m")
	v.SetDefault("plugins.webhook.forward_answers", false)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("aquabot")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/aquabot")
	}

	v.SetEnvPrefix("AQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	return v, nil
}
