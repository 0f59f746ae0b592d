package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/HerbHall/aquabot/pkg/llm"
	"github.com/HerbHall/aquabot/pkg/llm/llmtest"
	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

// recorder keeps the last chat request the mock server saw.
type recorder struct {
	mu   sync.Mutex
	chat api.ChatRequest
}

func (r *recorder) last() api.ChatRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chat
}

// newTestProvider creates a Provider pointing at the given httptest server URL.
func newTestProvider(t *testing.T, serverURL string) *Provider {
	t.Helper()
	p, err := New(Config{URL: serverURL, Model: "test-model", Timeout: 10 * time.Second}, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

// mockOllama returns an httptest server that handles Ollama API endpoints.
// Streaming requests get the answer in two chunks.
func mockOllama(t *testing.T) (*httptest.Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Ollama is running")) //nolint:errcheck
	})

	mux.HandleFunc("POST /api/generate", func(w http.ResponseWriter, r *http.Request) {
		var req api.GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		enc := json.NewEncoder(w)
		if req.Stream != nil && *req.Stream {
			enc.Encode(api.GenerateResponse{Model: req.Model, Response: "Olá "}) //nolint:errcheck
		}
		enc.Encode(api.GenerateResponse{ //nolint:errcheck
			Model:    req.Model,
			Response: "do Ollama!",
			Done:     true,
			Metrics:  api.Metrics{PromptEvalCount: 5, EvalCount: 4},
		})
	})

	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		var req api.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rec.mu.Lock()
		rec.chat = req
		rec.mu.Unlock()

		if req.Model == "missing" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"model \"missing\" not found, try pulling it first"}`)) //nolint:errcheck
			return
		}

		content := "A leitura mais recente de pH é 7.2."
		if len(req.Format) > 0 {
			content = `{"intent":"latest_status","parameter":"ph"}`
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		json.NewEncoder(w).Encode(api.ChatResponse{ //nolint:errcheck
			Model:   req.Model,
			Message: api.Message{Role: "assistant", Content: content},
			Done:    true,
			Metrics: api.Metrics{PromptEvalCount: 10, EvalCount: 6},
		})
	})

	mux.HandleFunc("GET /api/tags", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(api.ListResponse{ //nolint:errcheck
			Models: []api.ListModelResponse{
				{Name: "qwen2:0.5b", Model: "qwen2:0.5b"},
				{Name: "llama3:8b", Model: "llama3:8b"},
			},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestNew_InvalidURL(t *testing.T) {
	for _, raw := range []string{"://bad", "localhost"} {
		if _, err := New(Config{URL: raw}, zap.NewNop()); err == nil {
			t.Errorf("New(%q) expected error", raw)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Model != "qwen2:0.5b" {
		t.Errorf("Model = %q, want qwen2:0.5b", cfg.Model)
	}
	if cfg.URL != "http://localhost:11434" {
		t.Errorf("URL = %q", cfg.URL)
	}
}

func TestGenerate_Success(t *testing.T) {
	srv, _ := mockOllama(t)
	p := newTestProvider(t, srv.URL)

	resp, err := p.Generate(context.Background(), "Olá")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Content != "do Ollama!" {
		t.Errorf("Content = %q, want %q", resp.Content, "do Ollama!")
	}
	if resp.Model != "test-model" {
		t.Errorf("Model = %q, want %q", resp.Model, "test-model")
	}
	if !resp.Done {
		t.Error("Done = false, want true")
	}
	if resp.Usage.TotalTokens != 9 {
		t.Errorf("TotalTokens = %d, want 9", resp.Usage.TotalTokens)
	}
}

func TestGenerate_WithModelOption(t *testing.T) {
	srv, _ := mockOllama(t)
	p := newTestProvider(t, srv.URL)

	resp, err := p.Generate(context.Background(), "Olá", llm.WithModel("custom-model"))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Model != "custom-model" {
		t.Errorf("Model = %q, want %q", resp.Model, "custom-model")
	}
}

func TestGenerate_Streaming(t *testing.T) {
	srv, _ := mockOllama(t)
	p := newTestProvider(t, srv.URL)

	var chunks []string
	resp, err := p.Generate(context.Background(), "Olá",
		llm.WithStreamFunc(func(_ context.Context, chunk []byte) error {
			chunks = append(chunks, string(chunk))
			return nil
		}),
	)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Content != "Olá do Ollama!" {
		t.Errorf("Content = %q, want %q", resp.Content, "Olá do Ollama!")
	}
	if len(chunks) != 2 {
		t.Errorf("StreamFunc called %d times, want 2", len(chunks))
	}
}

func TestGenerate_StreamAbort(t *testing.T) {
	srv, _ := mockOllama(t)
	p := newTestProvider(t, srv.URL)

	stop := errors.New("stop")
	_, err := p.Generate(context.Background(), "Olá",
		llm.WithStreamFunc(func(context.Context, []byte) error { return stop }),
	)
	if err == nil {
		t.Fatal("expected error when StreamFunc aborts")
	}
}

func TestGenerate_CancelledContext(t *testing.T) {
	srv, _ := mockOllama(t)
	p := newTestProvider(t, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Generate(ctx, "Olá")
	if !llm.IsTimeoutError(err) {
		t.Fatalf("Generate() error = %v, want timeout", err)
	}
}

func TestChat_Success(t *testing.T) {
	srv, rec := mockOllama(t)
	p := newTestProvider(t, srv.URL)

	messages := []llm.Message{
		llm.SystemMessage("Você é um assistente."),
		llm.UserMessage("Qual o pH agora?"),
	}
	resp, err := p.Chat(context.Background(), messages, llm.WithMaxTokens(64))
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if !strings.Contains(resp.Content, "7.2") {
		t.Errorf("Content = %q, expected it to contain 7.2", resp.Content)
	}
	if resp.Usage.PromptTokens != 10 || resp.Usage.CompletionTokens != 6 {
		t.Errorf("Usage = %+v", resp.Usage)
	}

	req := rec.last()
	if len(req.Messages) != 2 || req.Messages[0].Role != llm.RoleSystem {
		t.Errorf("Messages = %+v", req.Messages)
	}
	if req.Stream == nil || *req.Stream {
		t.Error("Stream should be explicitly false")
	}
	if got, ok := req.Options["num_predict"].(float64); !ok || got != 64 {
		t.Errorf("num_predict = %v, want 64", req.Options["num_predict"])
	}
}

func TestChat_FormatAndZeroTemperature(t *testing.T) {
	srv, rec := mockOllama(t)
	p := newTestProvider(t, srv.URL)

	schema := json.RawMessage(`{"type":"object"}`)
	resp, err := p.Chat(context.Background(), []llm.Message{llm.UserMessage("pH?")},
		llm.WithFormat(schema), llm.WithTemperature(0))
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(resp.Content), &out); err != nil {
		t.Fatalf("content is not JSON: %q", resp.Content)
	}

	req := rec.last()
	if string(req.Format) != string(schema) {
		t.Errorf("Format = %s, want %s", req.Format, schema)
	}
	temp, ok := req.Options["temperature"]
	if !ok {
		t.Fatal("temperature 0 must be sent")
	}
	if temp.(float64) != 0 {
		t.Errorf("temperature = %v, want 0", temp)
	}
}

func TestChat_EmptyMessages(t *testing.T) {
	srv, _ := mockOllama(t)
	p := newTestProvider(t, srv.URL)

	_, err := p.Chat(context.Background(), nil)
	var pe *llm.ProviderError
	if !errors.As(err, &pe) || pe.Code != llm.ErrCodeInvalidRequest {
		t.Errorf("Chat(nil) error = %v, want %s", err, llm.ErrCodeInvalidRequest)
	}
}

func TestChat_ModelNotFound(t *testing.T) {
	srv, _ := mockOllama(t)
	p := newTestProvider(t, srv.URL)

	_, err := p.Chat(context.Background(), []llm.Message{llm.UserMessage("oi")}, llm.WithModel("missing"))
	if !llm.IsModelNotFoundError(err) {
		t.Errorf("Chat() error = %v, want model not found", err)
	}
}

func TestHeartbeat(t *testing.T) {
	srv, _ := mockOllama(t)
	p := newTestProvider(t, srv.URL)
	if err := p.Heartbeat(context.Background()); err != nil {
		t.Errorf("Heartbeat() error = %v", err)
	}

	down := httptest.NewServer(http.NotFoundHandler())
	down.Close()
	p = newTestProvider(t, down.URL)
	err := p.Heartbeat(context.Background())
	if !llm.IsUnavailable(err) {
		t.Errorf("Heartbeat() on closed server = %v, want unavailable", err)
	}
}

func TestListModels(t *testing.T) {
	srv, _ := mockOllama(t)
	p := newTestProvider(t, srv.URL)

	models, err := p.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	if len(models) != 2 || models[0] != "qwen2:0.5b" || models[1] != "llama3:8b" {
		t.Errorf("ListModels() = %v", models)
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"canceled", context.Canceled, llm.ErrCodeTimeout},
		{"deadline", context.DeadlineExceeded, llm.ErrCodeTimeout},
		{"model_404", api.StatusError{StatusCode: 404, ErrorMessage: "model 'x' not found"}, llm.ErrCodeModelNotFound},
		{"unauthorized", api.StatusError{StatusCode: 401, ErrorMessage: "unauthorized"}, llm.ErrCodeAuthentication},
		{"rate_limited", api.StatusError{StatusCode: 429, ErrorMessage: "slow down"}, llm.ErrCodeRateLimit},
		{"server", api.StatusError{StatusCode: 500, ErrorMessage: "boom"}, llm.ErrCodeServerError},
		{"bad_request", api.StatusError{StatusCode: 400, ErrorMessage: "invalid format"}, llm.ErrCodeInvalidRequest},
		{"context_length", api.StatusError{StatusCode: 400, ErrorMessage: "input exceeds context length"}, llm.ErrCodeContextLength},
		{"refused", errors.New("dial tcp 127.0.0.1:11434: connection refused"), llm.ErrCodeServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var pe *llm.ProviderError
			if err := mapError(tt.err); !errors.As(err, &pe) || pe.Code != tt.code {
				t.Errorf("mapError(%v) = %v, want code %s", tt.err, err, tt.code)
			}
		})
	}
	if err := mapError(nil); err != nil {
		t.Errorf("mapError(nil) = %v, want nil", err)
	}
}

func TestProviderContract(t *testing.T) {
	base := os.Getenv("AQ_TEST_OLLAMA_URL")
	if base == "" {
		t.Skip("AQ_TEST_OLLAMA_URL not set")
	}
	cfg := DefaultConfig()
	cfg.URL = base
	llmtest.TestProviderContract(t, func() llm.Provider {
		p, err := New(cfg, zap.NewNop())
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		return p
	})
}
