// Package orchestrator owns the provider pool, routes conversation turns to
// the active provider, runs tool-call rounds, and records interactions.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/taskpilot/taskpilot/src/aicore"
	"github.com/taskpilot/taskpilot/src/auditlog"
	"github.com/taskpilot/taskpilot/src/toolkit"
)

const defaultMaxTurns = 50

// InteractionRecorder receives completed interaction records. Satisfied by
// *auditlog.Store.
type InteractionRecorder interface {
	LogInteraction(ctx context.Context, log *auditlog.InteractionLog) error
}

// Config holds manager configuration.
type Config struct {
	SystemPrompt string

	// MaxTurns caps retained transcript entries per session, oldest
	// trimmed first.
	MaxTurns int

	// DefaultPermissions are granted to tool calls when the request does
	// not narrow them.
	DefaultPermissions []toolkit.Permission

	Registry *toolkit.Registry
	Audit    InteractionRecorder
	Logger   *slog.Logger
}

// Manager is the service orchestrator. One provider is active at a time;
// switching is atomic from the caller's perspective.
type Manager struct {
	systemPrompt string
	maxTurns     int
	defaultPerms []toolkit.Permission
	registry     *toolkit.Registry
	audit        InteractionRecorder
	logger       *slog.Logger

	mu        sync.RWMutex
	providers map[string]aicore.Provider
	active    string

	sessionsMu sync.Mutex
	sessions   map[string]*session
}

// NewManager creates a manager with an empty provider pool.
func NewManager(config Config) *Manager {
	if config.MaxTurns <= 0 {
		config.MaxTurns = defaultMaxTurns
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Registry == nil {
		config.Registry = toolkit.NewRegistry()
	}
	if config.DefaultPermissions == nil {
		config.DefaultPermissions = []toolkit.Permission{toolkit.PermissionRead, toolkit.PermissionWrite}
	}
	return &Manager{
		systemPrompt: config.SystemPrompt,
		maxTurns:     config.MaxTurns,
		defaultPerms: config.DefaultPermissions,
		registry:     config.Registry,
		audit:        config.Audit,
		logger:       config.Logger.With("component", "orchestrator"),
		providers:    map[string]aicore.Provider{},
		sessions:     map[string]*session{},
	}
}

// Registry exposes the tool registry for startup wiring.
func (m *Manager) Registry() *toolkit.Registry {
	return m.registry
}

// RegisterProvider adds a provider to the pool under name. The first
// registered provider does not become active; call SwitchProvider.
func (m *Manager) RegisterProvider(name string, provider aicore.Provider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.providers[name]; exists {
		return fmt.Errorf("%w: %s", ErrProviderRegistered, name)
	}
	m.providers[name] = provider
	m.logger.Info("registered provider", "name", name, "capabilities", provider.Capabilities())
	return nil
}

// SwitchProvider makes name the active provider. All-or-nothing: the target
// is initialized first, and only on success does it become active and the
// previous provider receive cleanup. On failure the previous provider stays
// active and the error is returned.
func (m *Manager) SwitchProvider(ctx context.Context, name string) error {
	m.mu.RLock()
	target, ok := m.providers[name]
	current := m.active
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	if current == name {
		return nil
	}

	if err := target.Initialize(ctx); err != nil {
		m.logger.Warn("provider switch aborted", "target", name, "error", err)
		return err
	}

	m.mu.Lock()
	if m.active == name {
		// A concurrent switch already activated the target.
		m.mu.Unlock()
		return nil
	}
	previous := m.providers[m.active]
	current = m.active
	m.active = name
	m.mu.Unlock()

	if previous != nil {
		if err := previous.Cleanup(ctx); err != nil {
			m.logger.Warn("previous provider cleanup failed", "name", current, "error", err)
		}
	}
	m.logger.Info("switched active provider", "from", current, "to", name)
	return nil
}

// activeProvider snapshots the current active provider.
func (m *Manager) activeProvider() (string, aicore.Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == "" {
		return "", nil, ErrNoActiveProvider
	}
	return m.active, m.providers[m.active], nil
}

// ActiveProvider returns the name of the active provider, empty when none.
func (m *Manager) ActiveProvider() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// PoolStatus is the aggregate view over the provider pool.
type PoolStatus struct {
	Active    string                           `json:"active"`
	Providers map[string]aicore.ProviderStatus `json:"providers"`
}

// Status reports every registered provider's status plus the active name.
func (m *Manager) Status() PoolStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := PoolStatus{Active: m.active, Providers: map[string]aicore.ProviderStatus{}}
	for name, provider := range m.providers {
		out.Providers[name] = provider.Status()
	}
	return out
}

// ClearConversation drops the transcript for one session. Unknown sessions
// are a no-op.
func (m *Manager) ClearConversation(sessionID string) {
	m.sessionsMu.Lock()
	defer m.sessionsMu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		s.clear()
	}
}

// ClearAllConversations drops every session transcript.
func (m *Manager) ClearAllConversations() {
	m.sessionsMu.Lock()
	defer m.sessionsMu.Unlock()
	for _, s := range m.sessions {
		s.clear()
	}
}

// Shutdown cleans up every provider in the pool.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	providers := make(map[string]aicore.Provider, len(m.providers))
	for name, p := range m.providers {
		providers[name] = p
	}
	m.active = ""
	m.mu.Unlock()

	var firstErr error
	for name, provider := range providers {
		if err := provider.Cleanup(ctx); err != nil {
			m.logger.Warn("provider cleanup failed during shutdown", "name", name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (m *Manager) getOrCreateSession(id string) *session {
	m.sessionsMu.Lock()
	defer m.sessionsMu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s
	}
	s := newSession(id, m.maxTurns)
	m.sessions[id] = s
	return s
}
