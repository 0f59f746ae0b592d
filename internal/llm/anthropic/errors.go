package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/HerbHall/aquabot/pkg/llm"
)

// statusError is a non-2xx reply from the Messages API. Kind is the
// error.type field, e.g. "overloaded_error".
type statusError struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("anthropic: %d %s: %s", e.StatusCode, e.Kind, e.Message)
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
			return llm.NewProviderError(llm.ErrCodeServerError, "anthropic server unreachable", err)
		}
	}
	return llm.NewProviderError(llm.ErrCodeServerError, "anthropic error", err)
}

func statusCode(se *statusError) string {
	lower := strings.ToLower(se.Message)
	switch {
	case se.Kind == "authentication_error", se.Kind == "permission_error",
		se.StatusCode == http.StatusUnauthorized:
		return llm.ErrCodeAuthentication
	case se.Kind == "rate_limit_error", se.StatusCode == http.StatusTooManyRequests:
		return llm.ErrCodeRateLimit
	case se.Kind == "not_found_error":
		return llm.ErrCodeModelNotFound
	case se.Kind == "invalid_request_error" &&
		(strings.Contains(lower, "prompt is too long") || strings.Contains(lower, "context")):
		return llm.ErrCodeContextLength
	case se.StatusCode >= 500:
		// Includes 529 overloaded_error.
		return llm.ErrCodeServerError
	default:
		return llm.ErrCodeInvalidRequest
	}
}

// checkStop rejects replies that cannot be used as an answer. A prefilled
// JSON reply that hit max_tokens is an unterminated object.
func checkStop(structured bool, stopReason string) error {
	switch {
	case stopReason == "refusal":
		return llm.NewProviderError(llm.ErrCodeMalformedOutput, "model refused to answer", nil)
	case structured && stopReason == "max_tokens":
		return llm.NewProviderError(llm.ErrCodeMalformedOutput, "structured reply truncated at max_tokens", nil)
	}
	return nil
}
