package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/HerbHall/aquabot/pkg/llm"
	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

// Compile-time interface guards.
var (
	_ llm.Provider       = (*Provider)(nil)
	_ llm.HealthReporter = (*Provider)(nil)
)

// Provider implements llm.Provider on top of the Ollama API client.
type Provider struct {
	client *api.Client
	cfg    Config
	logger *zap.Logger
}

// New creates an Ollama provider. It does not verify connectivity;
// call Heartbeat explicitly if you need an early health check.
func New(cfg Config, logger *zap.Logger) (*Provider, error) {
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse ollama url %q: %w", cfg.URL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("parse ollama url %q: scheme and host are required", cfg.URL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Provider{
		client: api.NewClient(base, &http.Client{Timeout: cfg.Timeout}),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Generate creates a completion from a single prompt.
func (p *Provider) Generate(ctx context.Context, prompt string, opts ...llm.CallOption) (*llm.Response, error) {
	cfg := llm.ApplyOptions(opts...)
	model := p.model(cfg)

	req := &api.GenerateRequest{
		Model:     model,
		Prompt:    prompt,
		Stream:    streamFlag(cfg),
		Format:    cfg.Format,
		Options:   buildOptions(cfg),
		KeepAlive: p.keepAlive(),
	}

	var acc accumulator
	err := p.client.Generate(ctx, req, func(chunk api.GenerateResponse) error {
		return acc.add(ctx, cfg, chunk.Response, chunk.Done, chunk.Metrics)
	})
	if err != nil {
		return nil, p.fail("generate", model, err)
	}
	return acc.response(model), nil
}

// Chat creates a completion from a conversation history.
func (p *Provider) Chat(ctx context.Context, messages []llm.Message, opts ...llm.CallOption) (*llm.Response, error) {
	if len(messages) == 0 {
		return nil, llm.NewProviderError(llm.ErrCodeInvalidRequest, "messages must not be empty", nil)
	}

	cfg := llm.ApplyOptions(opts...)
	model := p.model(cfg)

	apiMessages := make([]api.Message, len(messages))
	for i, m := range messages {
		apiMessages[i] = api.Message{Role: m.Role, Content: m.Content}
	}

	req := &api.ChatRequest{
		Model:     model,
		Messages:  apiMessages,
		Stream:    streamFlag(cfg),
		Format:    cfg.Format,
		Options:   buildOptions(cfg),
		KeepAlive: p.keepAlive(),
	}

	var acc accumulator
	err := p.client.Chat(ctx, req, func(chunk api.ChatResponse) error {
		return acc.add(ctx, cfg, chunk.Message.Content, chunk.Done, chunk.Metrics)
	})
	if err != nil {
		return nil, p.fail("chat", model, err)
	}
	return acc.response(model), nil
}

// Heartbeat checks whether the Ollama server is reachable.
func (p *Provider) Heartbeat(ctx context.Context) error {
	return mapError(p.client.Heartbeat(ctx))
}

// ListModels returns the names of locally available models.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	resp, err := p.client.List(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	names := make([]string, len(resp.Models))
	for i := range resp.Models {
		names[i] = resp.Models[i].Name
	}
	return names, nil
}

func (p *Provider) model(cfg llm.CallConfig) string {
	if cfg.Model != "" {
		return cfg.Model
	}
	return p.cfg.Model
}

func (p *Provider) keepAlive() *api.Duration {
	if p.cfg.KeepAlive <= 0 {
		return nil
	}
	return &api.Duration{Duration: p.cfg.KeepAlive}
}

func (p *Provider) fail(op, model string, err error) error {
	mapped := mapError(err)
	p.logger.Debug("ollama call failed",
		zap.String("op", op),
		zap.String("model", model),
		zap.Error(err),
	)
	return mapped
}

// accumulator joins streamed chunks into one response.
type accumulator struct {
	content strings.Builder
	metrics api.Metrics
	done    bool
}

func (a *accumulator) add(ctx context.Context, cfg llm.CallConfig, text string, done bool, metrics api.Metrics) error {
	if text != "" {
		a.content.WriteString(text)
		if cfg.StreamFunc != nil {
			if err := cfg.StreamFunc(ctx, []byte(text)); err != nil {
				return err
			}
		}
	}
	if done {
		a.metrics = metrics
		a.done = true
	}
	return nil
}

func (a *accumulator) response(model string) *llm.Response {
	return &llm.Response{
		Content: a.content.String(),
		Model:   model,
		Usage: llm.Usage{
			PromptTokens:     a.metrics.PromptEvalCount,
			CompletionTokens: a.metrics.EvalCount,
			TotalTokens:      a.metrics.PromptEvalCount + a.metrics.EvalCount,
		},
		Done: a.done,
	}
}

// streamFlag asks for a single response unless the caller streams.
func streamFlag(cfg llm.CallConfig) *bool {
	stream := cfg.StreamFunc != nil
	return &stream
}

// buildOptions converts CallConfig fields into Ollama's Options map.
// Temperature is always sent so that an explicit 0 reaches the model.
func buildOptions(cfg llm.CallConfig) map[string]any {
	opts := map[string]any{"temperature": cfg.Temperature}
	if cfg.MaxTokens > 0 {
		opts["num_predict"] = cfg.MaxTokens
	}
	return opts
}
