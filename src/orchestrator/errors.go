package orchestrator

import "errors"

var (
	ErrProviderNotFound   = errors.New("provider not found")
	ErrNoActiveProvider   = errors.New("no active provider")
	ErrProviderRegistered = errors.New("provider already registered")
)
