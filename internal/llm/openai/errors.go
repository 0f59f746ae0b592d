package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/HerbHall/aquabot/pkg/llm"
)

// statusError is a non-2xx reply from the OpenAI API. Kind is the error
// code when present, else the error type.
type statusError struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("openai: %d %s: %s", e.StatusCode, e.Kind, e.Message)
}

// mapError translates transport failures and API replies into
// llm.ProviderError codes.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return llm.NewProviderError(llm.ErrCodeTimeout, "request timed out or cancelled", err)
	}

	var se *statusError
	if errors.As(err, &se) {
		return llm.NewProviderError(statusCode(se), se.Message, err)
	}

	msg := err.Error()
	for _, s := range []string{"connection refused", "no such host", "dial tcp"} {
		if strings.Contains(msg, s) {
			return llm.NewProviderError(llm.ErrCodeServerError, "openai server unreachable", err)
		}
	}
	return llm.NewProviderError(llm.ErrCodeServerError, "openai error", err)
}

func statusCode(se *statusError) string {
	lower := strings.ToLower(se.Message)
	switch {
	case se.StatusCode == http.StatusUnauthorized, se.StatusCode == http.StatusForbidden:
		return llm.ErrCodeAuthentication
	case se.StatusCode == http.StatusTooManyRequests:
		return llm.ErrCodeRateLimit
	case se.StatusCode == http.StatusRequestTimeout, se.StatusCode == http.StatusGatewayTimeout:
		return llm.ErrCodeTimeout
	case se.StatusCode == http.StatusNotFound && strings.Contains(lower, "model"):
		return llm.ErrCodeModelNotFound
	case se.Kind == "context_length_exceeded", strings.Contains(lower, "context length"):
		return llm.ErrCodeContextLength
	case se.StatusCode >= 500:
		return llm.ErrCodeServerError
	default:
		return llm.ErrCodeInvalidRequest
	}
}

// checkChoice rejects completions that cannot be used as an answer. Free
// text cut at max_tokens is still returned, with Done false.
func checkChoice(structured bool, finish, refusal string) error {
	switch {
	case refusal != "":
		return llm.NewProviderError(llm.ErrCodeMalformedOutput, "model refused: "+refusal, nil)
	case finish == "content_filter":
		return llm.NewProviderError(llm.ErrCodeMalformedOutput, "reply withheld by content filter", nil)
	case structured && finish == "length":
		return llm.NewProviderError(llm.ErrCodeMalformedOutput, "structured reply truncated at max_tokens", nil)
	}
	return nil
}
