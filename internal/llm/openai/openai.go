package openai

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

// Compile-time interface guards.
var (
	_ llm.Provider       = (*Provider)(nil)
	_ llm.HealthReporter = (*Provider)(nil)
)

// Provider implements llm.Provider for OpenAI using its chat completions API.
type Provider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cfg        Config
	logger     *zap.Logger
}

// New creates an OpenAI provider.
func New(cfg Config, logger *zap.Logger) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api key is required")
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

// Chat creates a completion from a conversation history. A Format option
// switches the call to JSON mode; schemas are carried as strict
// json_schema response formats.
func (p *Provider) Chat(ctx context.Context, messages []llm.Message, opts ...llm.CallOption) (*llm.Response, error) {
	if len(messages) == 0 {
		return nil, llm.NewProviderError(llm.ErrCodeInvalidRequest, "messages must not be empty", nil)
	}

	cfg := llm.ApplyOptions(opts...)

	model := cfg.Model
	if model == "" {
		model = p.cfg.Model
	}

	apiMessages := make([]chatMessage, len(messages))
	for i, m := range messages {
		apiMessages[i] = chatMessage{Role: m.Role, Content: m.Content}
	}

	temp := cfg.Temperature
	req := chatRequest{
		Model:          model,
		Messages:       apiMessages,
		Temperature:    &temp,
		MaxTokens:      cfg.MaxTokens,
		ResponseFormat: responseFormatFor(cfg.Format),
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	respBody, err := p.do(ctx, http.MethodPost, "/v1/chat/completions", body)
	if err != nil {
		return nil, mapError(err)
	}
	defer respBody.Close()

	var resp chatResponse
	if err := json.NewDecoder(respBody).Decode(&resp); err != nil {
		return nil, llm.NewProviderError(llm.ErrCodeMalformedOutput, "decode chat response", err)
	}

	if len(resp.Choices) == 0 {
		return nil, llm.NewProviderError(llm.ErrCodeMalformedOutput, "chat response has no choices", nil)
	}
	choice := resp.Choices[0]
	if err := checkChoice(len(bytes.TrimSpace(cfg.Format)) > 0, choice.FinishReason, choice.Message.Refusal); err != nil {
		return nil, err
	}
	content, finish := choice.Message.Content, choice.FinishReason
	if cfg.StreamFunc != nil && content != "" {
		if err := cfg.StreamFunc(ctx, []byte(content)); err != nil {
			return nil, err
		}
	}

	if resp.Model == "" {
		resp.Model = model
	}
	return &llm.Response{
		Content: content,
		Model:   resp.Model,
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Done: finish != "length",
	}, nil
}

// Heartbeat checks whether the OpenAI API is reachable.
func (p *Provider) Heartbeat(ctx context.Context) error {
	body, err := p.do(ctx, http.MethodGet, "/v1/models", nil)
	if err != nil {
		return mapError(err)
	}
	body.Close()
	return nil
}

// ListModels returns the available model IDs.
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
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

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
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
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
	kind := errResp.Error.Type
	if errResp.Error.Code != "" {
		kind = errResp.Error.Code
	}
	return &statusError{
		StatusCode: resp.StatusCode,
		Kind:       kind,
		Message:    msg,
	}
}

// responseFormatFor maps a CallConfig format onto OpenAI's response_format.
func responseFormatFor(format json.RawMessage) *responseFormat {
	trimmed := bytes.TrimSpace(format)
	if len(trimmed) == 0 {
		return nil
	}
	if trimmed[0] != '{' {
		return &responseFormat{Type: "json_object"}
	}
	return &responseFormat{
		Type: "json_schema",
		JSONSchema: &jsonSchema{
			Name:   "response",
			Schema: trimmed,
		},
	}
}

// --- OpenAI REST API types (internal) ---

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Stream         bool            `json:"stream"`
}

type responseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *jsonSchema `json:"json_schema,omitempty"`
}

type jsonSchema struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Refusal string `json:"refusal,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type listResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}
