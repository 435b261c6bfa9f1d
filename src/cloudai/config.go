package cloudai

import (
	"log/slog"
	"time"
)

const (
	defaultBaseURL = "https://api.taskpilot-inference.dev/v1"
	defaultModel   = "taskpilot-chat-1"
	defaultTimeout = 30 * time.Second

	defaultRetryCount    = 3
	defaultRetryDelay    = time.Second
	defaultMaxRetryDelay = time.Minute

	// degradedThreshold transient failures within degradedWindow flip the
	// reported state to Degraded until a success resets the window.
	degradedThreshold = 3
	degradedWindow    = 5 * time.Minute
)

// Config holds the cloud provider configuration.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string

	// Timeout is the default per-generate deadline when the caller does not
	// supply one in GenerateOptions.
	Timeout time.Duration

	// RetryCount bounds attempts for transient failures. Auth and
	// validation errors are never retried.
	RetryCount    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration

	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.RetryCount == 0 {
		c.RetryCount = defaultRetryCount
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = defaultRetryDelay
	}
	if c.MaxRetryDelay == 0 {
		c.MaxRetryDelay = defaultMaxRetryDelay
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
