package auditlog

import "time"

// ModelType identifies which provider family served an interaction.
const (
	ModelTypeLocal = "local"
	ModelTypeCloud = "cloud"
)

// Data classification levels, least to most sensitive.
const (
	ClassPublic       = "public"
	ClassInternal     = "internal"
	ClassConfidential = "confidential"
)

// Log levels controlling how much of each interaction is persisted.
const (
	LevelMinimal  = "minimal"
	LevelStandard = "standard"
	LevelDetailed = "detailed"
)

// InteractionLog is one request/response cycle. Immutable after write except
// for redaction and anonymization corrections.
type InteractionLog struct {
	ID                    string    `json:"id" db:"id"`
	SessionID             string    `json:"session_id" db:"session_id"`
	ModelType             string    `json:"model_type" db:"model_type"`
	ModelInfo             string    `json:"model_info" db:"model_info"`
	UserMessage           string    `json:"user_message" db:"user_message"`
	SystemPrompt          string    `json:"system_prompt,omitempty" db:"system_prompt"`
	ContextSnapshot       string    `json:"context_snapshot,omitempty" db:"context_snapshot"`
	AIResponse            string    `json:"ai_response" db:"ai_response"`
	Actions               string    `json:"actions" db:"actions"`
	Suggestions           string    `json:"suggestions" db:"suggestions"`
	Reasoning             string    `json:"reasoning,omitempty" db:"reasoning"`
	ResponseTimeMs        int64     `json:"response_time_ms" db:"response_time_ms"`
	TokenCount            int       `json:"token_count" db:"token_count"`
	Error                 string    `json:"error,omitempty" db:"error"`
	ErrorCode             string    `json:"error_code,omitempty" db:"error_code"`
	ContainsSensitiveData bool      `json:"contains_sensitive_data" db:"contains_sensitive_data"`
	DataClassification    string    `json:"data_classification" db:"data_classification"`
	Redacted              bool      `json:"redacted" db:"redacted"`
	Anonymized            bool      `json:"anonymized" db:"anonymized"`
	CreatedAt             time.Time `json:"created_at" db:"created_at"`

	// ToolExecutions are child records, persisted alongside the
	// interaction and loaded on reads.
	ToolExecutions []ToolExecutionLog `json:"tool_executions,omitempty" db:"-"`
}

// ToolExecutionLog is one tool call made during an interaction.
type ToolExecutionLog struct {
	ID              string    `json:"id" db:"id"`
	InteractionID   string    `json:"interaction_id" db:"interaction_id"`
	ToolName        string    `json:"tool_name" db:"tool_name"`
	Arguments       string    `json:"arguments" db:"arguments"`
	Output          string    `json:"output" db:"output"`
	Success         bool      `json:"success" db:"success"`
	Error           string    `json:"error,omitempty" db:"error"`
	ErrorCode       string    `json:"error_code,omitempty" db:"error_code"`
	ExecutionTimeMs int64     `json:"execution_time_ms" db:"execution_time_ms"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Filter narrows interaction log queries. Zero values mean "no constraint".
type Filter struct {
	From          time.Time
	To            time.Time
	SessionID     string
	ModelType     string
	HasErrors     *bool
	WithToolCalls *bool
	Search        string
	Limit         int
	Offset        int
}

// LoggingConfig is the single persisted configuration row.
type LoggingConfig struct {
	Enabled                   bool      `json:"enabled" db:"enabled"`
	LogLevel                  string    `json:"log_level" db:"log_level"`
	RetentionDays             int       `json:"retention_days" db:"retention_days"`
	MaxLogCount               int       `json:"max_log_count" db:"max_log_count"`
	IncludeSystemPrompts      bool      `json:"include_system_prompts" db:"include_system_prompts"`
	IncludeToolExecutions     bool      `json:"include_tool_executions" db:"include_tool_executions"`
	IncludePerformanceMetrics bool      `json:"include_performance_metrics" db:"include_performance_metrics"`
	AutoCleanup               bool      `json:"auto_cleanup" db:"auto_cleanup"`
	ExportFormat              string    `json:"export_format" db:"export_format"`
	UpdatedAt                 time.Time `json:"updated_at" db:"updated_at"`
}

// ConfigPatch is a partial config update. Nil fields are left unchanged.
type ConfigPatch struct {
	Enabled                   *bool   `json:"enabled,omitempty"`
	LogLevel                  *string `json:"log_level,omitempty"`
	RetentionDays             *int    `json:"retention_days,omitempty"`
	MaxLogCount               *int    `json:"max_log_count,omitempty"`
	IncludeSystemPrompts      *bool   `json:"include_system_prompts,omitempty"`
	IncludeToolExecutions     *bool   `json:"include_tool_executions,omitempty"`
	IncludePerformanceMetrics *bool   `json:"include_performance_metrics,omitempty"`
	AutoCleanup               *bool   `json:"auto_cleanup,omitempty"`
	ExportFormat              *string `json:"export_format,omitempty"`
}

// StorageStats summarizes what the log store currently holds.
type StorageStats struct {
	TotalLogs         int64            `json:"total_logs"`
	TotalSizeBytes    int64            `json:"total_size_bytes"`
	OldestLog         *time.Time       `json:"oldest_log,omitempty"`
	NewestLog         *time.Time       `json:"newest_log,omitempty"`
	PerModelCounts    map[string]int64 `json:"per_model_counts"`
	AvgResponseTimeMs float64          `json:"avg_response_time_ms"`
}
