package llm

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/HerbHall/aquabot/internal/llm/anthropic"
	"github.com/HerbHall/aquabot/internal/llm/ollama"
	"github.com/HerbHall/aquabot/internal/llm/openai"
	pkgllm "github.com/HerbHall/aquabot/pkg/llm"
	"github.com/HerbHall/aquabot/pkg/plugin"
	"github.com/HerbHall/aquabot/pkg/roles"
	"go.uber.org/zap"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
	_ plugin.HTTPProvider  = (*Module)(nil)
	_ roles.LLMProvider    = (*Module)(nil)
)

// Provider names accepted in ModuleConfig.Provider.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// ModuleConfig holds the LLM module configuration with per-provider sub-configs.
type ModuleConfig struct {
	Provider  string           `mapstructure:"provider"` // "ollama" (default), "openai", "anthropic"
	Ollama    ollama.Config    `mapstructure:"ollama"`
	OpenAI    openai.Config    `mapstructure:"openai"`
	Anthropic anthropic.Config `mapstructure:"anthropic"`
}

// DefaultModuleConfig returns the configuration used when nothing is set.
func DefaultModuleConfig() ModuleConfig {
	return ModuleConfig{
		Provider:  ProviderOllama,
		Ollama:    ollama.DefaultConfig(),
		OpenAI:    openai.DefaultConfig(),
		Anthropic: anthropic.DefaultConfig(),
	}
}

// Module implements the LLM plugin, wrapping a configurable provider.
// The provider handed out by Provider stays valid across PUT /config:
// it delegates to whichever backend is current.
type Module struct {
	logger *zap.Logger

	mu  sync.RWMutex
	cfg ModuleConfig

	live *liveProvider
}

// New creates a new LLM plugin instance.
func New() *Module {
	return &Module{live: &liveProvider{}}
}

// NewWithProvider creates an LLM plugin bound to p, ignoring provider config.
func NewWithProvider(p pkgllm.Provider) *Module {
	m := New()
	m.live.swap(p, "custom")
	return m
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "llm",
		Version:     "0.3.0",
		Description: "LLM provider integration (Ollama, OpenAI, Anthropic)",
		Roles:       []string{roles.RoleLLM},
		Required:    false,
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger

	cfg := DefaultModuleConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&cfg); err != nil {
			return fmt.Errorf("unmarshal llm config: %w", err)
		}
	}
	applyEnvKeys(&cfg)

	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()

	if m.live.current() != nil {
		m.logger.Info("llm plugin initialized with injected provider")
		return nil
	}

	provider, err := newProvider(cfg, m.logger)
	if err != nil {
		return fmt.Errorf("create %s provider: %w", cfg.Provider, err)
	}
	m.live.swap(provider, cfg.Provider)

	m.logger.Info("llm plugin initialized",
		zap.String("provider", cfg.Provider),
		zap.String("model", currentModel(cfg)),
	)
	return nil
}

func (m *Module) Start(ctx context.Context) error {
	provider := m.config().Provider
	hr, ok := m.live.current().(pkgllm.HealthReporter)
	if !ok {
		return nil
	}

	if err := hr.Heartbeat(ctx); err != nil {
		m.logger.Warn("llm provider not reachable; answers will be unavailable until it comes online",
			zap.String("provider", provider),
			zap.Error(err),
		)
		return nil
	}

	models, err := hr.ListModels(ctx)
	if err != nil {
		m.logger.Warn("failed to list models",
			zap.String("provider", provider),
			zap.Error(err),
		)
		return nil
	}

	m.logger.Info("llm provider connected",
		zap.String("provider", provider),
		zap.Strings("models", models),
	)
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("llm plugin stopped")
	return nil
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(ctx context.Context) plugin.HealthStatus {
	details := map[string]string{"provider": m.config().Provider}
	hr, ok := m.live.current().(pkgllm.HealthReporter)
	if !ok {
		return plugin.HealthStatus{Status: "healthy", Message: "no health reporter", Details: details}
	}

	if err := hr.Heartbeat(ctx); err != nil {
		return plugin.HealthStatus{
			Status:  "unhealthy",
			Message: err.Error(),
			Details: details,
		}
	}
	return plugin.HealthStatus{Status: "healthy", Details: details}
}

// Provider implements roles.LLMProvider.
func (m *Module) Provider() pkgllm.Provider {
	return m.live
}

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "/config", Handler: m.handleGetConfig},
		{Method: "PUT", Path: "/config", Handler: m.handlePutConfig},
		{Method: "POST", Path: "/test", Handler: m.handleTestConnection},
	}
}

func (m *Module) config() ModuleConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// newProvider creates a provider based on the config.
func newProvider(cfg ModuleConfig, logger *zap.Logger) (pkgllm.Provider, error) {
	switch cfg.Provider {
	case ProviderOllama, "":
		return ollama.New(cfg.Ollama, logger.Named("ollama"))
	case ProviderOpenAI:
		return openai.New(cfg.OpenAI, logger.Named("openai"))
	case ProviderAnthropic:
		return anthropic.New(cfg.Anthropic, logger.Named("anthropic"))
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

// applyEnvKeys fills missing API keys from the vendors' usual variables.
func applyEnvKeys(cfg *ModuleConfig) {
	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Anthropic.APIKey == "" {
		cfg.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
}

func currentModel(cfg ModuleConfig) string {
	switch cfg.Provider {
	case ProviderOllama, "":
		return cfg.Ollama.Model
	case ProviderOpenAI:
		return cfg.OpenAI.Model
	case ProviderAnthropic:
		return cfg.Anthropic.Model
	default:
		return ""
	}
}
