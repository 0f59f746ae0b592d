package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/HerbHall/aquabot/pkg/llm"
	"go.uber.org/zap"
)

const apiVersion = "2023-06-01"

// Compile-time interface guards.
var (
	_ llm.Provider       = (*Provider)(nil)
	_ llm.HealthReporter = (*Provider)(nil)
)

// Provider implements llm.Provider for Anthropic using its Messages API.
type Provider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cfg        Config
	logger     *zap.Logger
}

// New creates an Anthropic provider.
func New(cfg Config, logger *zap.Logger) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Provider{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// Generate creates a completion from a single prompt.
func (p *Provider) Generate(ctx context.Context, prompt string, opts ...llm.CallOption) (*llm.Response, error) {
	return p.Chat(ctx, []llm.Message{llm.UserMessage(prompt)}, opts...)
}

// Chat creates a completion from a conversation history. System turns are
// lifted into the top-level system prompt. The Messages API has no JSON
// mode, so a Format option becomes a system instruction plus an assistant
// prefill of "{".
func (p *Provider) Chat(ctx context.Context, messages []llm.Message, opts ...llm.CallOption) (*llm.Response, error) {
	if len(messages) == 0 {
		return nil, llm.NewProviderError(llm.ErrCodeInvalidRequest, "messages must not be empty", nil)
	}

	cfg := llm.ApplyOptions(opts...)

	model := cfg.Model
	if model == "" {
		model = p.cfg.Model
	}

	var system []string
	apiMessages := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == llm.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		apiMessages = append(apiMessages, chatMessage{Role: m.Role, Content: m.Content})
	}
	if len(apiMessages) == 0 {
		return nil, llm.NewProviderError(llm.ErrCodeInvalidRequest, "at least one non-system message is required", nil)
	}

	prefill := ""
	if len(bytes.TrimSpace(cfg.Format)) > 0 {
		system = append(system, formatInstruction(cfg.Format))
		prefill = "{"
		apiMessages = append(apiMessages, chatMessage{Role: llm.RoleAssistant, Content: prefill})
	}

	temp := cfg.Temperature
	req := messagesRequest{
		Model:       model,
		System:      strings.Join(system, "\n\n"),
		Messages:    apiMessages,
		MaxTokens:   cfg.MaxTokens,
		Temperature: &temp,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal messages request: %w", err)
	}

	respBody, err := p.do(ctx, http.MethodPost, "/v1/messages", body)
	if err != nil {
		return nil, mapError(err)
	}
	defer respBody.Close()

	var resp messagesResponse
	if err := json.NewDecoder(respBody).Decode(&resp); err != nil {
		return nil, llm.NewProviderError(llm.ErrCodeMalformedOutput, "decode messages response", err)
	}

	if err := checkStop(prefill != "", resp.StopReason); err != nil {
		return nil, err
	}

	var content strings.Builder
	content.WriteString(prefill)
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	if cfg.StreamFunc != nil && content.Len() > 0 {
		if err := cfg.StreamFunc(ctx, []byte(content.String())); err != nil {
			return nil, err
		}
	}

	if resp.Model == "" {
		resp.Model = model
	}
	return &llm.Response{
		Content: content.String(),
		Model:   resp.Model,
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
		Done: resp.StopReason != "max_tokens",
	}, nil
}

// Heartbeat checks whether the Anthropic API is reachable by listing models.
func (p *Provider) Heartbeat(ctx context.Context) error {
	body, err := p.do(ctx, http.MethodGet, "/v1/models", nil)
	if err != nil {
		return mapError(err)
	}
	body.Close()
	return nil
}

// ListModels returns the available Anthropic model IDs.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	body, err := p.do(ctx, http.MethodGet, "/v1/models", nil)
	if err != nil {
		return nil, mapError(err)
	}
	defer body.Close()

	var result listResponse
	if err := json.NewDecoder(body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}
	names := make([]string, len(result.Data))
	for i := range result.Data {
		names[i] = result.Data[i].ID
	}
	return names, nil
}

// do sends an authenticated request and returns the response body.
// The caller must close the returned body.
func (p *Provider) do(ctx context.Context, method, path string, body []byte) (io.ReadCloser, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, parseStatusError(resp)
	}

	return resp.Body, nil
}

// parseStatusError reads an error response body.
func parseStatusError(resp *http.Response) *statusError {
	var errResp struct {
		Type  string `json:"type"`
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil || json.Unmarshal(data, &errResp) != nil {
		return &statusError{StatusCode: resp.StatusCode, Message: resp.Status}
	}

	msg := errResp.Error.Message
	if msg == "" {
		msg = resp.Status
	}
	return &statusError{
		StatusCode: resp.StatusCode,
		Kind:       errResp.Error.Type,
		Message:    msg,
	}
}

func formatInstruction(format json.RawMessage) string {
	trimmed := bytes.TrimSpace(format)
	if trimmed[0] != '{' {
		return "Responda somente com um objeto JSON válido, sem texto adicional."
	}
	return "Responda somente com um objeto JSON válido que siga este JSON Schema, sem texto adicional:\n" + string(trimmed)
}

// --- Anthropic Messages API types (internal) ---

type messagesRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type listResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}
