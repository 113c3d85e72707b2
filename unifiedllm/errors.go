package unifiedllm

import (
	"errors"
	"fmt"
	"net/http"
)

// SDKError is the base error type for all unified LLM errors.
type SDKError struct {
	Message string
	Cause   error
}

func (e *SDKError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *SDKError) Unwrap() error {
	return e.Cause
}

// ProviderError represents an error returned by an LLM provider.
type ProviderError struct {
	SDKError
	Provider   string
	StatusCode int
	ErrorCode  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s (status=%d)", e.Provider, e.Message, e.StatusCode)
}

// Concrete provider error types.

type AuthenticationError struct{ ProviderError }
type AccessDeniedError struct{ ProviderError }
type NotFoundError struct{ ProviderError }
type InvalidRequestError struct{ ProviderError }
type RateLimitError struct{ ProviderError }
type ServerError struct{ ProviderError }
type ContentFilterError struct{ ProviderError }
type ContextLengthError struct{ ProviderError }

// Non-provider errors.

type AbortError struct{ SDKError }
type NetworkError struct{ SDKError }
type ConfigurationError struct{ SDKError }

// ErrRetriesExhausted is wrapped around the last transient error once the
// retry budget is spent.
var ErrRetriesExhausted = errors.New("max retries exceeded due to overload or rate limit")

// ErrorFromStatusCode maps an HTTP status code to the appropriate error type.
func ErrorFromStatusCode(statusCode int, message, provider, errorCode string, cause error) error {
	pe := ProviderError{
		SDKError:   SDKError{Message: message, Cause: cause},
		Provider:   provider,
		StatusCode: statusCode,
		ErrorCode:  errorCode,
	}

	switch statusCode {
	case 400, 422:
		return &InvalidRequestError{ProviderError: pe}
	case 401:
		return &AuthenticationError{ProviderError: pe}
	case 403:
		return &AccessDeniedError{ProviderError: pe}
	case 404:
		return &NotFoundError{ProviderError: pe}
	case 413:
		return &ContextLengthError{ProviderError: pe}
	case 429:
		return &RateLimitError{ProviderError: pe}
	case 500, 502, 503, 504:
		return &ServerError{ProviderError: pe}
	default:
		return &pe
	}
}

// StatusCode reports the provider status code carried by err, or 0.
func StatusCode(err error) int {
	var pe interface{ statusCode() int }
	if errors.As(err, &pe) {
		return pe.statusCode()
	}
	return 0
}

func (e *ProviderError) statusCode() int { return e.StatusCode }

// IsTransientOverload reports whether err means the provider is rate
// limiting or temporarily unavailable. Only these errors are retried; every
// other provider error is final.
func IsTransientOverload(err error) bool {
	if err == nil {
		return false
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var se *ServerError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusServiceUnavailable
	}
	return false
}
