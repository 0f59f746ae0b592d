package ollama

import "time"

// Config holds the Ollama provider configuration.
type Config struct {
	URL     string        `mapstructure:"url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
	// KeepAlive is how long the server keeps the model loaded after a
	// call. Zero leaves the server default.
	KeepAlive time.Duration `mapstructure:"keep_alive"`
}

// DefaultConfig returns defaults for a local Ollama serving a small model.
func DefaultConfig() Config {
	return Config{
		URL:     "http://localhost:11434",
		Model:   "qwen2:0.5b",
		Timeout: 2 * time.Minute,
	}
}
