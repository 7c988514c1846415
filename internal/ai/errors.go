package ai

import (
	"fmt"
	"time"
)

// APIError represents a structured API error response.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
	RequestID  string
}

func (e *APIError) Error() string {
	s := fmt.Sprintf("api error: status=%d", e.StatusCode)
	if e.Code != "" {
		s += " code=" + e.Code
	}
	if e.RequestID != "" {
		s += " request_id=" + e.RequestID
	}
	if e.Message != "" {
		s += " message=" + e.Message
	}
	return s
}

// AuthError indicates authentication/authorization failures (401/403).
type AuthError struct{ *APIError }

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.APIError.Error())
}

// RateLimitError indicates 429 responses and may include a Retry-After.
type RateLimitError struct {
	*APIError
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: wait about %ds before retrying: %s", int(e.RetryAfter.Seconds()), e.APIError.Error())
	}
	return fmt.Sprintf("rate limited: %s", e.APIError.Error())
}

// ModelNotFoundError indicates the requested model is not available.
type ModelNotFoundError struct{ *APIError }

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model not found: %s", e.APIError.Error())
}

// BadRequestError indicates a 4xx request problem (e.g., 400 validation).
type BadRequestError struct{ *APIError }

func (e *BadRequestError) Error() string { return fmt.Sprintf("bad request: %s", e.APIError.Error()) }

// QuotaExceededError indicates billing/quota problems.
type QuotaExceededError struct{ *APIError }

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %s", e.APIError.Error())
}

// ServerError indicates 5xx errors from the provider.
type ServerError struct{ *APIError }

func (e *ServerError) Error() string { return fmt.Sprintf("provider error: %s", e.APIError.Error()) }

// StreamError is an error object sent inside a chunked reply.
type StreamError struct {
	Code    string
	Message string
}

func (e *StreamError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("stream error: code=%s message=%s", e.Code, e.Message)
	}
	return fmt.Sprintf("stream error: %s", e.Message)
}

// UnreachableError indicates the provider could not be reached at all.
type UnreachableError struct {
	Host string
	Err  error
}

func (e *UnreachableError) Error() string {
	if e == nil {
		return "unreachable"
	}
	if e.Host != "" {
		return fmt.Sprintf("endpoint unreachable at %s: %v", e.Host, e.Err)
	}
	return fmt.Sprintf("endpoint unreachable: %v", e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }
