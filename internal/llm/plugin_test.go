package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/HerbHall/aquabot/internal/config"
	pkgllm "github.com/HerbHall/aquabot/pkg/llm"
	"github.com/HerbHall/aquabot/pkg/llm/llmtest"
	"github.com/HerbHall/aquabot/pkg/plugin"
	"github.com/HerbHall/aquabot/pkg/plugin/plugintest"
	"go.uber.org/zap"
)

// mockOllama answers heartbeats, model listing and chat.
func mockOllama(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("Ollama is running")) //nolint:errcheck
	})
	mux.HandleFunc("GET /api/tags", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"models":[{"name":"qwen2:0.5b","model":"qwen2:0.5b"}]}`)) //nolint:errcheck
	})
	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"model":"qwen2:0.5b","message":{"role":"assistant","content":"oi"},"done":true,"prompt_eval_count":2,"eval_count":1}` + "\n")) //nolint:errcheck
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func ollamaConfig(url string) plugin.Config {
	return config.FromMap(map[string]any{
		"provider": "ollama",
		"ollama": map[string]any{
			"url":     url,
			"model":   "qwen2:0.5b",
			"timeout": "5s",
		},
	})
}

func newInitialized(t *testing.T, cfg plugin.Config) *Module {
	t.Helper()
	m := New()
	if err := m.Init(context.Background(), plugin.Dependencies{Logger: zap.NewNop(), Config: cfg}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return m
}

func TestPluginContract(t *testing.T) {
	srv := mockOllama(t)
	plugintest.TestPluginContract(t, func() plugin.Plugin { return New() },
		func(t *testing.T, _ string) plugin.Dependencies {
			return plugin.Dependencies{Logger: zap.NewNop(), Config: ollamaConfig(srv.URL)}
		})
}

func TestInit(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	tests := []struct {
		name    string
		cfg     plugin.Config
		wantErr bool
	}{
		{"nil_config_defaults_to_ollama", nil, false},
		{"unknown_provider", config.FromMap(map[string]any{"provider": "bard"}), true},
		{"openai_without_key", config.FromMap(map[string]any{"provider": "openai"}), true},
		{"openai_with_key", config.FromMap(map[string]any{
			"provider": "openai",
			"openai":   map[string]any{"api_key": "sk-test"},
		}), false},
		{"anthropic_without_key", config.FromMap(map[string]any{"provider": "anthropic"}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			err := m.Init(context.Background(), plugin.Dependencies{Logger: zap.NewNop(), Config: tt.cfg})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Init() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInit_APIKeyFromEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	m := newInitialized(t, config.FromMap(map[string]any{"provider": "anthropic"}))
	if got := m.config().Anthropic.APIKey; got != "from-env" {
		t.Errorf("APIKey = %q, want from-env", got)
	}
}

func TestStart_HeartbeatFails(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	m := newInitialized(t, ollamaConfig(srv.URL))
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() should succeed even when Ollama is unreachable, got error = %v", err)
	}
	if got := m.Health(context.Background()).Status; got != "unhealthy" {
		t.Errorf("Health = %q, want unhealthy", got)
	}
}

func TestHealth_Healthy(t *testing.T) {
	m := newInitialized(t, ollamaConfig(mockOllama(t).URL))
	hs := m.Health(context.Background())
	if hs.Status != "healthy" {
		t.Errorf("Health = %+v, want healthy", hs)
	}
	if hs.Details["provider"] != "ollama" {
		t.Errorf("Details = %v", hs.Details)
	}
}

func TestProvider_RecordsCallsThroughLiveBackend(t *testing.T) {
	m := newInitialized(t, ollamaConfig(mockOllama(t).URL))

	resp, err := m.Provider().Chat(context.Background(), []pkgllm.Message{pkgllm.UserMessage("oi")})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if resp.Content != "oi" {
		t.Errorf("Content = %q, want oi", resp.Content)
	}
}

func TestNewWithProvider(t *testing.T) {
	fake := llmtest.Static("resposta")
	m := NewWithProvider(fake)
	if err := m.Init(context.Background(), plugin.Dependencies{Logger: zap.NewNop()}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	resp, err := m.Provider().Generate(context.Background(), "pergunta")
	if err != nil || resp.Content != "resposta" {
		t.Errorf("Generate() = %v, %v", resp, err)
	}
}

func TestHandleConfig(t *testing.T) {
	srv := mockOllama(t)
	m := newInitialized(t, ollamaConfig(srv.URL))
	held := m.Provider()

	rec := httptest.NewRecorder()
	m.handleGetConfig(rec, httptest.NewRequest(http.MethodGet, "/config", nil))
	var got ConfigResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Provider != "ollama" || got.Model != "qwen2:0.5b" || got.URL != srv.URL {
		t.Errorf("GET /config = %+v", got)
	}

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"bad_json", "{", http.StatusBadRequest},
		{"unknown_provider", `{"provider":"bard"}`, http.StatusBadRequest},
		{"openai_without_key", `{"provider":"openai"}`, http.StatusBadRequest},
		{"switch_model", `{"provider":"ollama","model":"llama3:8b"}`, http.StatusOK},
	}
	t.Setenv("OPENAI_API_KEY", "")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			m.handlePutConfig(rec, httptest.NewRequest(http.MethodPut, "/config", bytes.NewBufferString(tt.body)))
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
		})
	}

	if got := m.config().Ollama.Model; got != "llama3:8b" {
		t.Errorf("model after PUT = %q, want llama3:8b", got)
	}
	if _, err := held.Chat(context.Background(), []pkgllm.Message{pkgllm.UserMessage("oi")}); err != nil {
		t.Errorf("provider held before PUT should keep working: %v", err)
	}
}

func TestHandleTestConnection(t *testing.T) {
	rec := httptest.NewRecorder()
	m := newInitialized(t, ollamaConfig(mockOllama(t).URL))
	m.handleTestConnection(rec, httptest.NewRequest(http.MethodPost, "/test", nil))

	var got TestResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Success || len(got.Models) != 1 {
		t.Errorf("POST /test = %+v", got)
	}

	down := httptest.NewServer(http.NotFoundHandler())
	down.Close()
	rec = httptest.NewRecorder()
	newInitialized(t, ollamaConfig(down.URL)).handleTestConnection(rec, httptest.NewRequest(http.MethodPost, "/test", nil))
	got = TestResponse{}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Success {
		t.Error("POST /test against a closed server should fail")
	}
}
