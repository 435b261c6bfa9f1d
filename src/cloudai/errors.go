package cloudai

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/taskpilot/taskpilot/src/aicore"
)

// ErrorResponse is the error envelope returned by the remote API:
// {"error":{"message":"...","code":"..."}}
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// APIError represents an error response from the remote generation API.
type APIError struct {
	StatusCode int    `json:"-"`
	Type       string `json:"type,omitempty"`
	Message    string `json:"message"`
	Code       string `json:"code,omitempty"`
	RequestID  string `json:"-"`

	// RetryAfter carries the Retry-After hint on rate-limit responses.
	RetryAfter time.Duration `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true for transient failures: 5xx and rate limits.
func (e *APIError) IsRetryable() bool {
	if e.StatusCode >= 500 && e.StatusCode < 600 {
		return true
	}
	if e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	switch e.Code {
	case "timeout", "connection_error", "server_error":
		return true
	}
	return false
}

// IsRateLimit returns true if this is a rate limit error.
func (e *APIError) IsRateLimit() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.Code == "rate_limit_exceeded"
}

// IsAuthError returns true if this is an authentication error.
func (e *APIError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden || e.Code == "invalid_api_key"
}

// toAIError maps an API error into the unified taxonomy.
func (e *APIError) toAIError() *aicore.AIError {
	switch {
	case e.IsAuthError():
		return aicore.WrapError(aicore.KindAuth, e.Error(),
			"Your API key was rejected. Check it in settings.", e)
	case e.IsRateLimit():
		return aicore.WrapError(aicore.KindRateLimited, e.Error(),
			"The service is busy. Try again in a moment.", e)
	case e.StatusCode == http.StatusBadRequest:
		return aicore.WrapError(aicore.KindInvalidRequest, e.Error(),
			"The request was rejected. Rephrase and try again.", e)
	case e.IsRetryable():
		return aicore.WrapError(aicore.KindProviderUnavailable, e.Error(),
			"The cloud service is having trouble. Try again shortly.", e)
	default:
		return aicore.WrapError(aicore.KindInternal, e.Error(),
			"Something went wrong talking to the cloud service.", e)
	}
}

// parseRetryAfter reads a Retry-After header value in seconds.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
