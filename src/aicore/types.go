// Package aicore defines the unified provider contract, generation types, and
// error taxonomy shared by every inference backend.
package aicore

import (
	"encoding/json"
	"fmt"
	"time"
)

// MaxPromptBytes is the default upper bound accepted by ValidatePromptText.
const MaxPromptBytes = 64 * 1024

// GenerateOptions carries per-call generation settings.
type GenerateOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`

	// Timeout bounds the whole generate call. Zero means the provider default.
	Timeout time.Duration `json:"timeout,omitempty"`

	// Hints for local engines. Ignored by cloud providers.
	NumThreads    int `json:"num_threads,omitempty"`
	ContextWindow int `json:"context_window,omitempty"`
}

// GenerateResult is the unified response from any provider.
type GenerateResult struct {
	Text       string     `json:"text"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	TokenCount int        `json:"token_count,omitempty"`
	Model      string     `json:"model,omitempty"`
}

// ToolCall is a structured tool invocation requested by the model.
type ToolCall struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ProviderState enumerates the lifecycle states a provider reports.
type ProviderState int

const (
	StateUninitialized ProviderState = iota
	StateInitializing
	StateReady
	StateDegraded
	StateUnavailable
)

// String returns the lowercase state name.
func (s ProviderState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	case StateUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ProviderStatus is the structured status returned by Provider.Status.
type ProviderStatus struct {
	State   ProviderState `json:"state"`
	Message string        `json:"message,omitempty"`
	Model   string        `json:"model,omitempty"`
}

// ValidatePromptText applies the shared prompt rules: non-empty and below the
// size cap. Providers call this from their ValidatePrompt implementations.
func ValidatePromptText(prompt string, maxBytes int) error {
	if maxBytes <= 0 {
		maxBytes = MaxPromptBytes
	}
	if len(prompt) == 0 {
		return NewError(KindInvalidRequest, "prompt is empty", "Enter a message before sending.")
	}
	if len(prompt) > maxBytes {
		return NewError(KindInvalidRequest,
			fmt.Sprintf("prompt exceeds %d bytes (got %d)", maxBytes, len(prompt)),
			"Your message is too long. Shorten it and try again.")
	}
	return nil
}
