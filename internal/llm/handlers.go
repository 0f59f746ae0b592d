package llm

import (
	"encoding/json"
	"net/http"

	pkgllm "github.com/HerbHall/aquabot/pkg/llm"
	"go.uber.org/zap"
)

// handleGetConfig returns the current LLM provider configuration.
func (m *Module) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, configResponse(m.config()))
}

// handlePutConfig switches provider or model at runtime. Callers holding
// the value returned by Provider see the new backend on their next call.
func (m *Module) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var req ConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	cfg := m.config()
	switch req.Provider {
	case ProviderOllama:
		if req.URL != "" {
			cfg.Ollama.URL = req.URL
		}
		if req.Model != "" {
			cfg.Ollama.Model = req.Model
		}
	case ProviderOpenAI:
		if req.APIKey != "" {
			cfg.OpenAI.APIKey = req.APIKey
		}
		if req.URL != "" {
			cfg.OpenAI.BaseURL = req.URL
		}
		if req.Model != "" {
			cfg.OpenAI.Model = req.Model
		}
	case ProviderAnthropic:
		if req.APIKey != "" {
			cfg.Anthropic.APIKey = req.APIKey
		}
		if req.URL != "" {
			cfg.Anthropic.BaseURL = req.URL
		}
		if req.Model != "" {
			cfg.Anthropic.Model = req.Model
		}
	default:
		writeError(w, http.StatusBadRequest, "provider must be ollama, openai, or anthropic")
		return
	}
	cfg.Provider = req.Provider

	provider, err := newProvider(cfg, m.logger)
	if err != nil {
		writeError(w, http.StatusBadRequest, "create provider: "+err.Error())
		return
	}

	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	m.live.swap(provider, cfg.Provider)

	m.logger.Info("llm provider updated",
		zap.String("provider", cfg.Provider),
		zap.String("model", currentModel(cfg)),
	)
	writeJSON(w, http.StatusOK, configResponse(cfg))
}

// handleTestConnection tests the current LLM provider connection.
func (m *Module) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	hr, ok := m.live.current().(pkgllm.HealthReporter)
	if !ok {
		writeJSON(w, http.StatusOK, TestResponse{
			Success: false,
			Message: "provider does not support health checks",
		})
		return
	}

	if err := hr.Heartbeat(r.Context()); err != nil {
		writeJSON(w, http.StatusOK, TestResponse{
			Success: false,
			Message: "connection failed: " + err.Error(),
		})
		return
	}

	models, err := hr.ListModels(r.Context())
	if err != nil {
		m.logger.Debug("list models after heartbeat", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, TestResponse{
		Success: true,
		Message: "connected",
		Model:   currentModel(m.config()),
		Models:  models,
	})
}

func configResponse(cfg ModuleConfig) ConfigResponse {
	resp := ConfigResponse{Provider: cfg.Provider, Model: currentModel(cfg)}
	switch cfg.Provider {
	case ProviderOllama, "":
		resp.URL = cfg.Ollama.URL
	case ProviderOpenAI:
		resp.URL = cfg.OpenAI.BaseURL
		resp.HasAPIKey = cfg.OpenAI.APIKey != ""
	case ProviderAnthropic:
		resp.URL = cfg.Anthropic.BaseURL
		resp.HasAPIKey = cfg.Anthropic.APIKey != ""
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "https://aquabot.dev/problems/" + http.StatusText(status),
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}
