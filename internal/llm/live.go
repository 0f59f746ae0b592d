package llm

import (
	"context"
	"errors"
	"sync"
	"time"

	pkgllm "github.com/HerbHall/aquabot/pkg/llm"
)

var (
	_ pkgllm.Provider       = (*liveProvider)(nil)
	_ pkgllm.HealthReporter = (*liveProvider)(nil)
)

var errNoProvider = pkgllm.NewProviderError(pkgllm.ErrCodeServerError, "no llm provider configured", nil)

// liveProvider forwards to the current backend and records call metrics.
type liveProvider struct {
	mu      sync.RWMutex
	backend pkgllm.Provider
	name    string
}

func (l *liveProvider) swap(p pkgllm.Provider, name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.backend = p
	l.name = name
}

func (l *liveProvider) current() pkgllm.Provider {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.backend
}

func (l *liveProvider) snapshot() (pkgllm.Provider, string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.backend, l.name
}

func (l *liveProvider) Generate(ctx context.Context, prompt string, opts ...pkgllm.CallOption) (*pkgllm.Response, error) {
	p, name := l.snapshot()
	if p == nil {
		return nil, errNoProvider
	}
	start := time.Now()
	resp, err := p.Generate(ctx, prompt, opts...)
	observeCall(name, "generate", start, resp, err)
	return resp, err
}

func (l *liveProvider) Chat(ctx context.Context, messages []pkgllm.Message, opts ...pkgllm.CallOption) (*pkgllm.Response, error) {
	p, name := l.snapshot()
	if p == nil {
		return nil, errNoProvider
	}
	start := time.Now()
	resp, err := p.Chat(ctx, messages, opts...)
	observeCall(name, "chat", start, resp, err)
	return resp, err
}

func (l *liveProvider) Heartbeat(ctx context.Context) error {
	hr, ok := l.current().(pkgllm.HealthReporter)
	if !ok {
		return errNoProvider
	}
	return hr.Heartbeat(ctx)
}

func (l *liveProvider) ListModels(ctx context.Context) ([]string, error) {
	hr, ok := l.current().(pkgllm.HealthReporter)
	if !ok {
		return nil, errNoProvider
	}
	return hr.ListModels(ctx)
}

func observeCall(provider, op string, start time.Time, resp *pkgllm.Response, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		var pe *pkgllm.ProviderError
		if errors.As(err, &pe) {
			outcome = pe.Code
		}
	}
	callsTotal.WithLabelValues(provider, op, outcome).Inc()
	callDuration.WithLabelValues(provider, op).Observe(time.Since(start).Seconds())
	if resp != nil {
		tokensTotal.WithLabelValues(provider, "prompt").Add(float64(resp.Usage.PromptTokens))
		tokensTotal.WithLabelValues(provider, "completion").Add(float64(resp.Usage.CompletionTokens))
	}
}
