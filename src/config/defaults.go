package config

// DefaultSystemPrompt steers the assistant toward task management.
const DefaultSystemPrompt = "You are a task management assistant. Help the user " +
	"organize tasks and track time. When an action is needed, respond with a " +
	"tool-call directive; otherwise answer in plain language."

// DefaultConfig returns the baseline configuration before any file or
// environment overrides.
func DefaultConfig() *Config {
	return &Config{
		Version:        "1.0",
		ActiveProvider: "cloud",
		Cloud: CloudConfig{
			BaseURL:        "https://api.taskpilot-inference.dev/v1",
			Model:          "taskpilot-chat-1",
			TimeoutSeconds: 30,
			RetryCount:     3,
		},
		Local: LocalConfig{
			ModelPath:          DefaultModelCachePath(),
			NumThreads:         4,
			ContextWindow:      4096,
			RequiredMemoryMB:   4096,
			QueueDepth:         4,
			IdleTimeoutSeconds: 300,
		},
		Orchestrator: OrchestratorConfig{
			SystemPrompt: DefaultSystemPrompt,
			MaxTurns:     50,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Audit: AuditConfig{
			DatabasePath: DefaultAuditDBPath(),
		},
	}
}
