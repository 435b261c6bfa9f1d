package config

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

// DefaultConfigPath is the user configuration file location, following the
// XDG base directory layout.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "taskpilot", "config.json")
}

// DefaultAuditDBPath is where the interaction log database lives.
func DefaultAuditDBPath() string {
	return filepath.Join(xdg.StateHome, "taskpilot", "audit.db")
}

// DefaultModelCachePath is where downloaded model weights are cached.
func DefaultModelCachePath() string {
	return filepath.Join(xdg.CacheHome, "taskpilot", "models", "taskpilot-local.bin")
}
