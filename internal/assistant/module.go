package assistant

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/HerbHall/aquabot/pkg/llm"
	"github.com/HerbHall/aquabot/pkg/plugin"
	"github.com/HerbHall/aquabot/pkg/roles"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HTTPProvider  = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
	_ roles.Assistant      = (*Module)(nil)
)

// TopicAnswered carries a roles.AskResult after a question was answered.
const TopicAnswered = "assistant.answered"

// Module implements the assistant plugin. Collaborators not injected
// through NewWith are resolved from the registry on Start: the telemetry
// source by role, the classifier and generator from the LLM plugin.
type Module struct {
	logger  *zap.Logger
	cfg     Config
	history *HistoryStore
	bus     plugin.EventBus
	plugins plugin.PluginResolver

	source     roles.TelemetrySource
	classifier Classifier
	generator  Generator

	pipeline *Pipeline
}

// New creates an assistant plugin that resolves its collaborators.
func New() *Module {
	return &Module{}
}

// NewWith creates an assistant plugin over explicit collaborators. A nil
// generator returns rendered answers unchanged.
func NewWith(source roles.TelemetrySource, classifier Classifier, generator Generator) *Module {
	return &Module{source: source, classifier: classifier, generator: generator}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "assistant",
		Version:      "0.3.0",
		Description:  "Natural-language questions over water-quality telemetry",
		Dependencies: []string{"telemetry"},
		Roles:        []string{roles.RoleAssistant},
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.bus = deps.Bus
	m.plugins = deps.Plugins

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal assistant config: %w", err)
		}
	}
	switch m.cfg.Generator {
	case GeneratorLLM, GeneratorTemplate:
	default:
		return fmt.Errorf("assistant generator must be %q or %q, got %q", GeneratorLLM, GeneratorTemplate, m.cfg.Generator)
	}

	if deps.Store != nil {
		if err := deps.Store.Migrate(ctx, "assistant", migrations()); err != nil {
			return fmt.Errorf("assistant migrations: %w", err)
		}
		m.history = NewHistoryStore(deps.Store.DB())
	}

	m.logger.Info("assistant plugin initialized",
		zap.String("generator", m.cfg.Generator),
		zap.Int("max_history_messages", m.cfg.MaxHistoryMessages),
		zap.Bool("history", m.history != nil),
	)
	return nil
}

func (m *Module) Start(_ context.Context) error {
	source := m.source
	if source == nil {
		source = m.resolveSource()
		if source == nil {
			return errors.New("assistant requires a telemetry source")
		}
	}

	classifier, generator := m.classifier, m.generator
	if provider := m.resolveProvider(); provider != nil {
		if classifier == nil {
			classifier = NewLLMClassifier(provider, m.cfg.Model)
		}
		if generator == nil && m.cfg.Generator == GeneratorLLM {
			generator = NewLLMGenerator(provider, m.cfg.Model)
		}
	}
	if classifier == nil {
		m.logger.Warn("no llm provider available; questions will fail until one is configured")
	}

	m.pipeline = NewPipeline(classifier, source,
		WithGenerator(generator),
		WithTimeouts(m.cfg.Timeouts()),
		WithLogger(m.logger),
	)
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("assistant plugin stopped")
	return nil
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	status := plugin.HealthStatus{
		Status: "healthy",
		Details: map[string]string{
			"generator": m.cfg.Generator,
			"history":   strconv.FormatBool(m.history != nil),
		},
	}
	switch {
	case m.pipeline == nil:
		status.Status = "unhealthy"
		status.Message = "not started"
	case m.pipeline.classifier == nil:
		status.Status = "degraded"
		status.Message = "no intent classifier available"
	}
	return status
}

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "POST", Path: "/chat", Handler: m.handleChat},
		{Method: "GET", Path: "/sessions/{session_id}/messages", Handler: m.handleSessionMessages},
	}
}

// Ask implements roles.Assistant. The session's recent turns are handed to
// the generator and the new exchange is appended afterwards.
func (m *Module) Ask(ctx context.Context, req roles.AskRequest) (*roles.AskResult, error) {
	if m.pipeline == nil {
		return nil, errors.New("assistant not started")
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	res, err := m.pipeline.Ask(ctx, Request{
		Question: req.Message,
		DeviceID: req.DeviceID,
		SiteID:   req.SiteID,
		History:  m.recentTurns(ctx, req.SessionID),
	})
	if err != nil {
		return nil, err
	}

	out := &roles.AskResult{
		SessionID: req.SessionID,
		Answer:    res.Answer,
		Intent:    res.Intent.Kind,
		Outcome:   string(res.Outcome),
	}
	if res.Data != nil {
		out.DataUsed = res.Data
	}
	m.record(ctx, req, out)

	if m.bus != nil {
		m.bus.PublishAsync(context.WithoutCancel(ctx), plugin.Event{
			Topic:   TopicAnswered,
			Source:  "assistant",
			Payload: *out,
		})
	}
	return out, nil
}

func (m *Module) recentTurns(ctx context.Context, sessionID string) []llm.Message {
	if m.history == nil || m.cfg.MaxHistoryMessages <= 0 {
		return nil
	}
	turns, err := m.history.Turns(ctx, sessionID, m.cfg.MaxHistoryMessages)
	if err != nil {
		m.logger.Warn("load session history", zap.String("session_id", sessionID), zap.Error(err))
		return nil
	}
	return turns
}

func (m *Module) record(ctx context.Context, req roles.AskRequest, res *roles.AskResult) {
	if m.history == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, msg := range []*Message{
		{SessionID: req.SessionID, Role: llm.RoleUser, Content: req.Message},
		{SessionID: req.SessionID, Role: llm.RoleAssistant, Content: res.Answer, Intent: string(res.Intent), Outcome: res.Outcome},
	} {
		if err := m.history.Append(ctx, msg); err != nil {
			m.logger.Warn("record session message", zap.String("session_id", req.SessionID), zap.Error(err))
			return
		}
	}
}

func (m *Module) resolveSource() roles.TelemetrySource {
	if m.plugins == nil {
		return nil
	}
	for _, p := range m.plugins.ResolveByRole(roles.RoleTelemetrySource) {
		if src, ok := p.(roles.TelemetrySource); ok {
			return src
		}
	}
	return nil
}

func (m *Module) resolveProvider() llm.Provider {
	if m.plugins == nil {
		return nil
	}
	for _, p := range m.plugins.ResolveByRole(roles.RoleLLM) {
		if lp, ok := p.(roles.LLMProvider); ok && lp.Provider() != nil {
			return lp.Provider()
		}
	}
	return nil
}
