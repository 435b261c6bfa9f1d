package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/taskpilot/taskpilot/src/auditlog"
	"github.com/taskpilot/taskpilot/src/cloudai"
	"github.com/taskpilot/taskpilot/src/config"
	"github.com/taskpilot/taskpilot/src/localai"
	"github.com/taskpilot/taskpilot/src/orchestrator"
	"github.com/taskpilot/taskpilot/src/tasktools"
)

// app bundles the wired service graph for one CLI invocation.
type app struct {
	config  *config.Config
	manager *orchestrator.Manager
	audit   *auditlog.Store
	logger  *slog.Logger
}

// buildApp loads configuration and wires the audit store, tool registry,
// providers, and orchestrator together. When activate is false the
// configured provider is registered but not initialized, so read-only
// commands work without credentials.
func buildApp(ctx context.Context, cli *CLI, activate bool) (*app, error) {
	cfg, err := config.NewLoader().Load(cli.Config)
	if err != nil {
		return nil, err
	}
	if cli.APIKey != "" {
		cfg.Cloud.APIKey = cli.APIKey
	}

	logger := createCLILogger(cli.LogLevel)

	if err := os.MkdirAll(filepath.Dir(cfg.Audit.DatabasePath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	audit, err := auditlog.Open(cfg.Audit.DatabasePath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit store: %w", err)
	}

	manager := orchestrator.NewManager(orchestrator.Config{
		SystemPrompt: cfg.Orchestrator.SystemPrompt,
		MaxTurns:     cfg.Orchestrator.MaxTurns,
		Audit:        audit,
		Logger:       logger,
	})
	if err := tasktools.RegisterAll(manager.Registry(), tasktools.NewMemStore()); err != nil {
		audit.Close()
		return nil, fmt.Errorf("failed to register task tools: %w", err)
	}

	cloud := cloudai.NewClient(cloudai.Config{
		APIKey:     cfg.Cloud.APIKey,
		BaseURL:    cfg.Cloud.BaseURL,
		Model:      cfg.Cloud.Model,
		Timeout:    time.Duration(cfg.Cloud.TimeoutSeconds) * time.Second,
		RetryCount: cfg.Cloud.RetryCount,
		Logger:     logger,
	})
	local := localai.NewProvider(localai.Config{
		ModelURL:            cfg.Local.ModelURL,
		ModelPath:           cfg.Local.ModelPath,
		ExpectedSize:        cfg.Local.ExpectedSizeBytes,
		NumThreads:          cfg.Local.NumThreads,
		ContextWindow:       cfg.Local.ContextWindow,
		RequiredMemoryBytes: uint64(cfg.Local.RequiredMemoryMB) << 20,
		QueueDepth:          cfg.Local.QueueDepth,
		IdleTimeout:         time.Duration(cfg.Local.IdleTimeoutSeconds) * time.Second,
		Logger:              logger,
	})
	if err := manager.RegisterProvider("cloud", cloud); err != nil {
		audit.Close()
		return nil, err
	}
	if err := manager.RegisterProvider("local", local); err != nil {
		audit.Close()
		return nil, err
	}

	if activate && cfg.ActiveProvider != "" {
		if err := manager.SwitchProvider(ctx, cfg.ActiveProvider); err != nil {
			audit.Close()
			return nil, fmt.Errorf("failed to activate provider %q: %w", cfg.ActiveProvider, err)
		}
	}

	return &app{config: cfg, manager: manager, audit: audit, logger: logger}, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.manager.Shutdown(ctx); err != nil {
		a.logger.Warn("shutdown incomplete", "error", err)
	}
	if err := a.audit.Close(); err != nil {
		a.logger.Warn("failed to close audit store", "error", err)
	}
}
