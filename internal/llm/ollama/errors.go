package ollama

import (
	"context"
	"errors"
	"strings"

	"github.com/HerbHall/aquabot/pkg/llm"
	"github.com/ollama/ollama/api"
)

// mapError translates Ollama and network errors into typed llm.ProviderError values.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return llm.NewProviderError(llm.ErrCodeTimeout, "request timed out or cancelled", err)
	}

	var se api.StatusError
	if errors.As(err, &se) {
		msg := se.ErrorMessage
		if msg == "" {
			msg = se.Status
		}
		lower := strings.ToLower(msg)
		switch {
		case se.StatusCode == 401 || se.StatusCode == 403:
			return llm.NewProviderError(llm.ErrCodeAuthentication, msg, err)
		case se.StatusCode == 404 && strings.Contains(lower, "model"):
			return llm.NewProviderError(llm.ErrCodeModelNotFound, msg, err)
		case strings.Contains(lower, "context length") || strings.Contains(lower, "context window"):
			return llm.NewProviderError(llm.ErrCodeContextLength, msg, err)
		case se.StatusCode == 429:
			return llm.NewProviderError(llm.ErrCodeRateLimit, msg, err)
		case se.StatusCode >= 500:
			return llm.NewProviderError(llm.ErrCodeServerError, msg, err)
		case se.StatusCode >= 400:
			return llm.NewProviderError(llm.ErrCodeInvalidRequest, msg, err)
		}
	}

	msg := err.Error()
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "dial tcp") {
		return llm.NewProviderError(llm.ErrCodeServerError, "ollama server unreachable", err)
	}

	return llm.NewProviderError(llm.ErrCodeServerError, "ollama error", err)
}
