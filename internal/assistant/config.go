package assistant

import "time"

// Generator modes.
const (
	GeneratorLLM      = "llm"
	GeneratorTemplate = "template"
)

// Config holds the assistant plugin settings (plugins.assistant.*).
type Config struct {
	// Generator selects how answers are phrased: "llm" rewrites the
	// rendered answer through the LLM plugin, "template" returns it as is.
	Generator string `mapstructure:"generator"`

	// Model overrides the LLM plugin's default model for both calls.
	Model string `mapstructure:"model"`

	ClassifierTimeout time.Duration `mapstructure:"classifier_timeout"`
	StorageTimeout    time.Duration `mapstructure:"storage_timeout"`
	GeneratorTimeout  time.Duration `mapstructure:"generator_timeout"`

	// MaxHistoryMessages is how many earlier turns of a session are
	// handed to the generator. Zero disables history.
	MaxHistoryMessages int `mapstructure:"max_history_messages"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Generator:          GeneratorLLM,
		ClassifierTimeout:  60 * time.Second,
		StorageTimeout:     5 * time.Second,
		GeneratorTimeout:   60 * time.Second,
		MaxHistoryMessages: 10,
	}
}

// Timeouts bounds each external call the pipeline makes. A zero value
// means no deadline beyond the caller's context.
type Timeouts struct {
	Classifier time.Duration
	Storage    time.Duration
	Generator  time.Duration
}

// Timeouts extracts the per-stage deadlines.
func (c Config) Timeouts() Timeouts {
	return Timeouts{
		Classifier: c.ClassifierTimeout,
		Storage:    c.StorageTimeout,
		Generator:  c.GeneratorTimeout,
	}
}
