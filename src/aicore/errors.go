package aicore

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an AIError for routing and retry decisions.
type ErrorKind string

const (
	KindInvalidRequest        ErrorKind = "invalid_request"
	KindProviderUnavailable   ErrorKind = "provider_unavailable"
	KindTimeout               ErrorKind = "timeout"
	KindModelDownloadFailed   ErrorKind = "model_download_failed"
	KindInsufficientResources ErrorKind = "insufficient_resources"
	KindBusy                  ErrorKind = "busy"
	KindAuth                  ErrorKind = "auth"
	KindRateLimited           ErrorKind = "rate_limited"
	KindToolExecutionFailed   ErrorKind = "tool_execution_failed"
	KindInternal              ErrorKind = "internal"
)

// Sentinel errors for errors.Is matching across package boundaries.
var (
	ErrProviderUnavailable = errors.New("no active provider is ready")
	ErrTimeout             = errors.New("operation timed out")
	ErrBusy                = errors.New("provider is busy")
)

// AIError is the unified error crossing every provider and manager boundary.
// It always carries both a technical detail for logs and a short actionable
// message for the user-facing layer.
type AIError struct {
	Kind        ErrorKind
	Message     string // technical detail
	UserMessage string // short, actionable
	Err         error  // optional cause
}

// Error implements the error interface.
func (e *AIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *AIError) Unwrap() error {
	return e.Err
}

// Is matches the kind-specific sentinels.
func (e *AIError) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrProviderUnavailable:
		return e.Kind == KindProviderUnavailable
	case ErrBusy:
		return e.Kind == KindBusy
	}
	return false
}

// Retryable reports whether the error represents a transient condition.
func (e *AIError) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindRateLimited, KindBusy:
		return true
	}
	return false
}

// NewError creates an AIError without a cause.
func NewError(kind ErrorKind, message, userMessage string) *AIError {
	return &AIError{Kind: kind, Message: message, UserMessage: userMessage}
}

// WrapError creates an AIError wrapping a cause.
func WrapError(kind ErrorKind, message, userMessage string, err error) *AIError {
	return &AIError{Kind: kind, Message: message, UserMessage: userMessage, Err: err}
}

// AsAIError extracts an AIError from err, converting unknown errors to
// KindInternal so callers always see the unified taxonomy.
func AsAIError(err error) *AIError {
	if err == nil {
		return nil
	}
	var aiErr *AIError
	if errors.As(err, &aiErr) {
		return aiErr
	}
	return WrapError(KindInternal, err.Error(), "Something went wrong. Try again.", err)
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) ErrorKind {
	if ae := AsAIError(err); ae != nil {
		return ae.Kind
	}
	return KindInternal
}

// UserMessageOf returns the user-facing message of err.
func UserMessageOf(err error) string {
	if ae := AsAIError(err); ae != nil && ae.UserMessage != "" {
		return ae.UserMessage
	}
	return "Something went wrong. Try again."
}
