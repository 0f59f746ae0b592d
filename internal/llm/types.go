package llm

// ConfigResponse is the response for GET /llm/config. API keys are never
// echoed; HasAPIKey reports whether one is set.
type ConfigResponse struct {
	Provider  string `json:"provider"` // "ollama", "openai", "anthropic"
	Model     string `json:"model"`
	URL       string `json:"url,omitempty"`
	HasAPIKey bool   `json:"has_api_key"`
}

// ConfigRequest is the request body for PUT /llm/config.
type ConfigRequest struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
	URL      string `json:"url,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
}

// TestResponse is the response for POST /llm/test.
type TestResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Model   string   `json:"model,omitempty"`
	Models  []string `json:"models,omitempty"`
}
