// Package config loads, validates, and defaults the taskpilot configuration.
package config

import "fmt"

// Config is the complete taskpilot configuration.
type Config struct {
	// Version of the configuration format
	Version string `json:"version"`

	// ActiveProvider selects the provider activated at startup.
	ActiveProvider string `json:"active_provider" validate:"omitempty,oneof=cloud local"`

	Cloud        CloudConfig        `json:"cloud"`
	Local        LocalConfig        `json:"local"`
	Orchestrator OrchestratorConfig `json:"orchestrator"`
	Logging      LoggingConfig      `json:"logging"`
	Audit        AuditConfig        `json:"audit"`
}

// CloudConfig configures the hosted inference provider.
type CloudConfig struct {
	APIKey         string `json:"api_key,omitempty"`
	BaseURL        string `json:"base_url,omitempty" validate:"omitempty,url"`
	Model          string `json:"model,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" validate:"gte=0"`
	RetryCount     int    `json:"retry_count,omitempty" validate:"gte=0,lte=10"`
}

// LocalConfig configures the locally-hosted provider.
type LocalConfig struct {
	ModelURL           string `json:"model_url,omitempty" validate:"omitempty,url"`
	ModelPath          string `json:"model_path,omitempty"`
	ExpectedSizeBytes  int64  `json:"expected_size_bytes,omitempty" validate:"gte=0"`
	NumThreads         int    `json:"num_threads,omitempty" validate:"gte=0"`
	ContextWindow      int    `json:"context_window,omitempty" validate:"gte=0"`
	RequiredMemoryMB   int    `json:"required_memory_mb,omitempty" validate:"gte=0"`
	QueueDepth         int    `json:"queue_depth,omitempty" validate:"gte=0,lte=64"`
	IdleTimeoutSeconds int    `json:"idle_timeout_seconds,omitempty" validate:"gte=0"`
}

// OrchestratorConfig configures the service manager.
type OrchestratorConfig struct {
	SystemPrompt string `json:"system_prompt,omitempty"`
	MaxTurns     int    `json:"max_turns,omitempty" validate:"gte=0,lte=500"`
}

// LoggingConfig configures process logging.
type LoggingConfig struct {
	Level  string `json:"level,omitempty" validate:"omitempty,log_level"`
	Format string `json:"format,omitempty" validate:"omitempty,oneof=text json"`
}

// AuditConfig configures the interaction log store.
type AuditConfig struct {
	DatabasePath string `json:"database_path,omitempty"`
}

// ValidationError describes one rejected configuration field.
type ValidationError struct {
	Field   string
	Message string
	Value   any
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config field %s: %s", e.Field, e.Message)
}
