package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "TASKPILOT"

// Loader loads configuration from defaults, an optional file, and
// environment overrides, in that precedence order.
type Loader struct {
	validator *Validator
}

func NewLoader() *Loader {
	return &Loader{validator: NewValidator()}
}

// Load reads the configuration at path (DefaultConfigPath when empty). A
// missing file is not an error: defaults plus environment apply.
func (l *Loader) Load(path string) (*Config, error) {
	config := DefaultConfig()

	if path == "" {
		path = DefaultConfigPath()
	}
	if fileCfg, err := loadFile(path); err == nil {
		merge(config, fileCfg)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	applyEnvironmentOverrides(config)

	if err := l.validator.Validate(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

// SaveFile writes the configuration as indented JSON, creating parent
// directories as needed.
func (l *Loader) SaveFile(config *Config, path string) error {
	if err := l.validator.Validate(config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return &config, nil
}

// merge overlays non-zero fields from src onto dst.
func merge(dst, src *Config) {
	if src.Version != "" {
		dst.Version = src.Version
	}
	if src.ActiveProvider != "" {
		dst.ActiveProvider = src.ActiveProvider
	}

	if src.Cloud.APIKey != "" {
		dst.Cloud.APIKey = src.Cloud.APIKey
	}
	if src.Cloud.BaseURL != "" {
		dst.Cloud.BaseURL = src.Cloud.BaseURL
	}
	if src.Cloud.Model != "" {
		dst.Cloud.Model = src.Cloud.Model
	}
	if src.Cloud.TimeoutSeconds != 0 {
		dst.Cloud.TimeoutSeconds = src.Cloud.TimeoutSeconds
	}
	if src.Cloud.RetryCount != 0 {
		dst.Cloud.RetryCount = src.Cloud.RetryCount
	}

	if src.Local.ModelURL != "" {
		dst.Local.ModelURL = src.Local.ModelURL
	}
	if src.Local.ModelPath != "" {
		dst.Local.ModelPath = src.Local.ModelPath
	}
	if src.Local.ExpectedSizeBytes != 0 {
		dst.Local.ExpectedSizeBytes = src.Local.ExpectedSizeBytes
	}
	if src.Local.NumThreads != 0 {
		dst.Local.NumThreads = src.Local.NumThreads
	}
	if src.Local.ContextWindow != 0 {
		dst.Local.ContextWindow = src.Local.ContextWindow
	}
	if src.Local.RequiredMemoryMB != 0 {
		dst.Local.RequiredMemoryMB = src.Local.RequiredMemoryMB
	}
	if src.Local.QueueDepth != 0 {
		dst.Local.QueueDepth = src.Local.QueueDepth
	}
	if src.Local.IdleTimeoutSeconds != 0 {
		dst.Local.IdleTimeoutSeconds = src.Local.IdleTimeoutSeconds
	}

	if src.Orchestrator.SystemPrompt != "" {
		dst.Orchestrator.SystemPrompt = src.Orchestrator.SystemPrompt
	}
	if src.Orchestrator.MaxTurns != 0 {
		dst.Orchestrator.MaxTurns = src.Orchestrator.MaxTurns
	}

	if src.Logging.Level != "" {
		dst.Logging.Level = src.Logging.Level
	}
	if src.Logging.Format != "" {
		dst.Logging.Format = src.Logging.Format
	}

	if src.Audit.DatabasePath != "" {
		dst.Audit.DatabasePath = src.Audit.DatabasePath
	}
}

// applyEnvironmentOverrides applies TASKPILOT_* variables over the loaded
// configuration. Only operational knobs are exposed this way.
func applyEnvironmentOverrides(config *Config) {
	if v := os.Getenv(EnvPrefix + "_API_KEY"); v != "" {
		config.Cloud.APIKey = v
	}
	if v := os.Getenv(EnvPrefix + "_BASE_URL"); v != "" {
		config.Cloud.BaseURL = v
	}
	if v := os.Getenv(EnvPrefix + "_MODEL"); v != "" {
		config.Cloud.Model = v
	}
	if v := os.Getenv(EnvPrefix + "_ACTIVE_PROVIDER"); v != "" {
		config.ActiveProvider = v
	}
	if v := os.Getenv(EnvPrefix + "_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv(EnvPrefix + "_AUDIT_DB"); v != "" {
		config.Audit.DatabasePath = v
	}
	if v := os.Getenv(EnvPrefix + "_LOCAL_MODEL_URL"); v != "" {
		config.Local.ModelURL = v
	}
	if v := os.Getenv(EnvPrefix + "_LOCAL_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Local.NumThreads = n
		}
	}
}
