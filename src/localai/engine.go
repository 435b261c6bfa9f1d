// Package localai implements the locally-hosted inference provider: model
// acquisition and caching, resource-aware initialization, and serialized
// access to the embedded engine.
package localai

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// InferResult is the raw output of one engine inference.
type InferResult struct {
	Text       string
	TokenCount int
}

// EngineOptions configure a model load.
type EngineOptions struct {
	NumThreads    int
	ContextWindow int
}

// InferenceEngine is the opaque embedded backend. The model file format and
// the inference implementation live behind this boundary.
type InferenceEngine interface {
	// Load reads model weights from path. Calling Load on a loaded engine
	// replaces the weights.
	Load(ctx context.Context, modelPath string, opts EngineOptions) error

	// Infer runs one generation. The engine supports a single inference at
	// a time; the provider serializes callers.
	Infer(ctx context.Context, prompt string, temperature float64, maxTokens int) (*InferResult, error)

	// Unload releases the loaded weights. Safe to call when nothing is
	// loaded.
	Unload() error
}

// StubEngine is a deterministic in-process engine used for wiring and tests.
// It echoes a canned completion and counts whitespace-delimited tokens.
type StubEngine struct {
	mu     sync.Mutex
	loaded bool
	path   string

	// Response overrides the canned output when set.
	Response string
	// InferErr forces Infer to fail when set.
	InferErr error
	// LoadErr forces Load to fail when set.
	LoadErr error

	LoadCalls   int
	UnloadCalls int
}

func (e *StubEngine) Load(ctx context.Context, modelPath string, opts EngineOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.LoadCalls++
	if e.LoadErr != nil {
		return e.LoadErr
	}
	e.loaded = true
	e.path = modelPath
	return nil
}

func (e *StubEngine) Infer(ctx context.Context, prompt string, temperature float64, maxTokens int) (*InferResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return nil, fmt.Errorf("engine has no model loaded")
	}
	if e.InferErr != nil {
		return nil, e.InferErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := e.Response
	if text == "" {
		text = "Understood: " + prompt
	}
	return &InferResult{
		Text:       text,
		TokenCount: len(strings.Fields(text)),
	}, nil
}

func (e *StubEngine) Unload() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.UnloadCalls++
	e.loaded = false
	return nil
}

// Loaded reports whether weights are currently resident.
func (e *StubEngine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

var _ InferenceEngine = (*StubEngine)(nil)
