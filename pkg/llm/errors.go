package llm

import "errors"

// Error codes shared by every provider. Providers map their native errors
// to one of these so callers never inspect vendor payloads.
const (
	ErrCodeAuthentication  = "authentication_error"
	ErrCodeRateLimit       = "rate_limit_exceeded"
	ErrCodeModelNotFound   = "model_not_found"
	ErrCodeInvalidRequest  = "invalid_request"
	ErrCodeContextLength   = "context_length_exceeded"
	ErrCodeServerError     = "server_error"
	ErrCodeTimeout         = "timeout"
	ErrCodeMalformedOutput = "malformed_output"
)

// ProviderError is a typed error from an LLM provider.
type ProviderError struct {
	Code    string // One of the ErrCode* constants.
	Message string
	Err     error // may be nil
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a typed provider error.
func NewProviderError(code, message string, err error) *ProviderError {
	return &ProviderError{Code: code, Message: message, Err: err}
}

// IsAuthenticationError reports whether err is an authentication failure.
func IsAuthenticationError(err error) bool {
	return hasCode(err, ErrCodeAuthentication)
}

// IsRateLimitError reports whether err is a rate-limit error.
func IsRateLimitError(err error) bool {
	return hasCode(err, ErrCodeRateLimit)
}

// IsModelNotFoundError reports whether err is a model-not-found error.
func IsModelNotFoundError(err error) bool {
	return hasCode(err, ErrCodeModelNotFound)
}

// IsServerError reports whether err is a provider-side server error.
func IsServerError(err error) bool {
	return hasCode(err, ErrCodeServerError)
}

// IsTimeoutError reports whether err is a timeout.
func IsTimeoutError(err error) bool {
	return hasCode(err, ErrCodeTimeout)
}

// IsMalformedOutput reports whether the model answered with something the
// caller could not decode (e.g. broken JSON under a structured format).
func IsMalformedOutput(err error) bool {
	return hasCode(err, ErrCodeMalformedOutput)
}

// IsUnavailable reports whether the provider could not be reached or did
// not answer in time. Authentication and request errors are excluded.
func IsUnavailable(err error) bool {
	return IsServerError(err) || IsTimeoutError(err) || IsRateLimitError(err)
}

func hasCode(err error, code string) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Code == code
}
