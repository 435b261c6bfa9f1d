package localai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/spf13/afero"

	"github.com/taskpilot/taskpilot/src/aicore"
)

const (
	defaultTimeout    = 2 * time.Minute
	defaultQueueDepth = 4
	defaultThreads    = 4
	defaultContext    = 4096

	// defaultRequiredMemory is the documented floor below which the
	// provider refuses to initialize.
	defaultRequiredMemory = 4 << 30 // 4 GiB
)

// MemoryFunc reports available system memory in bytes. Injectable for tests;
// the default queries gopsutil.
type MemoryFunc func() (uint64, error)

func systemAvailableMemory() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

// Config holds the local provider configuration.
type Config struct {
	ModelURL     string
	ModelPath    string
	ExpectedSize int64

	NumThreads    int
	ContextWindow int

	// RequiredMemoryBytes is the minimum available memory needed to load
	// the model. Initialization fails with InsufficientResources below it.
	RequiredMemoryBytes uint64

	// QueueDepth bounds how many callers may wait for the engine. Beyond
	// it, Generate fails fast with Busy.
	QueueDepth int

	// IdleTimeout releases loaded weights after this much inactivity.
	// Zero disables idle release.
	IdleTimeout time.Duration

	Timeout time.Duration

	Engine   InferenceEngine
	Fs       afero.Fs
	MemoryFn MemoryFunc
	Progress ProgressFunc
	Logger   *slog.Logger
}

// Provider is the locally-hosted inference backend.
type Provider struct {
	config  Config
	engine  InferenceEngine
	fetcher *ModelFetcher
	logger  *slog.Logger

	// engineSem serializes engine access: single-writer discipline over
	// the shared handle.
	engineSem chan struct{}
	waiters   atomic.Int64

	mu        sync.Mutex
	state     aicore.ProviderState
	stateMsg  string
	modelPath string
	released  bool
	lastUsed  time.Time

	idleStop chan struct{}
}

var _ aicore.Provider = (*Provider)(nil)

// NewProvider creates a local provider. Initialize acquires the model and
// loads the engine.
func NewProvider(config Config) *Provider {
	if config.NumThreads <= 0 {
		config.NumThreads = defaultThreads
	}
	if config.ContextWindow <= 0 {
		config.ContextWindow = defaultContext
	}
	if config.RequiredMemoryBytes == 0 {
		config.RequiredMemoryBytes = defaultRequiredMemory
	}
	if config.QueueDepth <= 0 {
		config.QueueDepth = defaultQueueDepth
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.Engine == nil {
		config.Engine = &StubEngine{}
	}
	if config.MemoryFn == nil {
		config.MemoryFn = systemAvailableMemory
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	logger := config.Logger.With("component", "local_provider")
	return &Provider{
		config:    config,
		engine:    config.Engine,
		fetcher:   NewModelFetcher(config.Fs, config.ModelURL, config.ModelPath, config.ExpectedSize, logger),
		logger:    logger,
		engineSem: make(chan struct{}, 1),
		state:     aicore.StateUninitialized,
	}
}

// Initialize acquires the model file (downloading if absent), checks the
// memory floor, and loads the engine. Idempotent: a ready provider returns
// immediately.
func (p *Provider) Initialize(ctx context.Context) error {
	p.mu.Lock()
	if p.state == aicore.StateReady {
		p.mu.Unlock()
		return nil
	}
	if p.state == aicore.StateInitializing {
		p.mu.Unlock()
		return aicore.NewError(aicore.KindBusy, "initialization already in progress",
			"The local model is still starting up.")
	}
	p.state = aicore.StateInitializing
	p.stateMsg = ""
	p.mu.Unlock()

	if err := p.checkMemory(); err != nil {
		p.setState(aicore.StateUnavailable, err.Error())
		return err
	}

	modelPath, err := p.fetcher.Fetch(ctx, p.config.Progress)
	if err != nil {
		p.setState(aicore.StateUnavailable, err.Error())
		return err
	}

	if err := p.loadEngine(ctx, modelPath); err != nil {
		p.setState(aicore.StateUnavailable, err.Error())
		return err
	}

	p.mu.Lock()
	p.modelPath = modelPath
	p.released = false
	p.state = aicore.StateReady
	p.stateMsg = ""
	p.lastUsed = time.Now()
	if p.config.IdleTimeout > 0 && p.idleStop == nil {
		p.idleStop = make(chan struct{})
		go p.idleLoop(p.idleStop)
	}
	p.mu.Unlock()

	p.logger.Info("local provider ready", "model", modelPath, "threads", p.config.NumThreads, "context_window", p.config.ContextWindow)
	return nil
}

// Cleanup unloads the engine and stops the idle watcher. The provider can be
// re-initialized afterwards.
func (p *Provider) Cleanup(ctx context.Context) error {
	p.mu.Lock()
	if p.idleStop != nil {
		close(p.idleStop)
		p.idleStop = nil
	}
	p.state = aicore.StateUninitialized
	p.stateMsg = ""
	p.released = false
	p.mu.Unlock()

	// Take the engine slot so in-flight inference finishes before the
	// weights go away.
	select {
	case p.engineSem <- struct{}{}:
	case <-ctx.Done():
		return p.mapContextError(ctx.Err())
	}
	defer func() { <-p.engineSem }()

	if err := p.engine.Unload(); err != nil {
		return aicore.WrapError(aicore.KindInternal, "failed to unload engine",
			"The local model did not shut down cleanly.", err)
	}
	return nil
}

// IsReady reports readiness without blocking. A provider whose weights were
// idle-released is still ready: the next call reloads them lazily.
func (p *Provider) IsReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == aicore.StateReady
}

// Status reports the structured provider state.
func (p *Provider) Status() aicore.ProviderStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	msg := p.stateMsg
	if p.state == aicore.StateReady && p.released {
		msg = "idle: weights released, will reload on next request"
	}
	return aicore.ProviderStatus{
		State:   p.state,
		Message: msg,
		Model:   p.config.ModelPath,
	}
}

// Capabilities declares what this provider supports.
func (p *Provider) Capabilities() []string {
	return []string{aicore.CapabilityToolCalling}
}

// ModelType marks this as the local backend.
func (p *Provider) ModelType() aicore.ModelType {
	return aicore.ModelTypeLocal
}

// ValidatePrompt applies the shared prompt rules.
func (p *Provider) ValidatePrompt(prompt string) error {
	return aicore.ValidatePromptText(prompt, aicore.MaxPromptBytes)
}

// Generate runs one inference. Callers are serialized against the single
// engine handle; at most QueueDepth callers wait, and beyond that Generate
// fails fast with Busy.
func (p *Provider) Generate(ctx context.Context, prompt string, opts *aicore.GenerateOptions) (*aicore.GenerateResult, error) {
	if !p.IsReady() {
		return nil, aicore.NewError(aicore.KindProviderUnavailable,
			"local provider is not initialized", "The local model is not ready. Initialize it or switch providers.")
	}
	if err := p.ValidatePrompt(prompt); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &aicore.GenerateOptions{}
	}

	// Backpressure: count this caller against the bounded queue before
	// waiting for the engine.
	if p.waiters.Add(1) > int64(p.config.QueueDepth)+1 {
		p.waiters.Add(-1)
		return nil, aicore.NewError(aicore.KindBusy,
			fmt.Sprintf("inference queue is full (depth %d)", p.config.QueueDepth),
			"The local model is handling other requests. Try again in a moment.")
	}
	defer p.waiters.Add(-1)

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = p.config.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case p.engineSem <- struct{}{}:
	case <-ctx.Done():
		return nil, p.mapContextError(ctx.Err())
	}
	defer func() { <-p.engineSem }()

	if err := p.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	temperature := 0.7
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	maxTokens := 1024
	if opts.MaxTokens != nil {
		maxTokens = *opts.MaxTokens
	}

	result, err := p.engine.Infer(ctx, prompt, temperature, maxTokens)
	if err != nil {
		if ctx.Err() != nil {
			return nil, p.mapContextError(ctx.Err())
		}
		return nil, aicore.WrapError(aicore.KindInternal, "inference failed: "+err.Error(),
			"The local model failed to generate a response.", err)
	}

	p.mu.Lock()
	p.lastUsed = time.Now()
	p.mu.Unlock()

	out := &aicore.GenerateResult{
		Text:       result.Text,
		TokenCount: result.TokenCount,
		Model:      p.config.ModelPath,
	}
	if calls, ok := aicore.ParseToolCalls(result.Text); ok {
		out.ToolCalls = calls
	}
	return out, nil
}

// ensureLoaded lazily reloads weights after an idle release. Caller holds
// the engine slot.
func (p *Provider) ensureLoaded(ctx context.Context) error {
	p.mu.Lock()
	released := p.released
	modelPath := p.modelPath
	p.mu.Unlock()
	if !released {
		return nil
	}

	p.logger.Debug("reloading weights after idle release")
	if err := p.loadEngine(ctx, modelPath); err != nil {
		return aicore.WrapError(aicore.KindProviderUnavailable,
			"failed to reload model after idle release", "The local model could not be reloaded. Reinitialize it.", err)
	}
	p.mu.Lock()
	p.released = false
	p.lastUsed = time.Now()
	p.mu.Unlock()
	return nil
}

func (p *Provider) loadEngine(ctx context.Context, modelPath string) error {
	err := p.engine.Load(ctx, modelPath, EngineOptions{
		NumThreads:    p.config.NumThreads,
		ContextWindow: p.config.ContextWindow,
	})
	if err != nil {
		return aicore.WrapError(aicore.KindInternal, "engine load failed: "+err.Error(),
			"The local model failed to load.", err)
	}
	return nil
}

// checkMemory refuses initialization below the documented memory floor.
func (p *Provider) checkMemory() error {
	available, err := p.config.MemoryFn()
	if err != nil {
		return aicore.WrapError(aicore.KindInternal, "failed to query available memory",
			"Could not determine available memory.", err)
	}
	if available < p.config.RequiredMemoryBytes {
		return aicore.NewError(aicore.KindInsufficientResources,
			fmt.Sprintf("available memory %d bytes is below the required %d bytes",
				available, p.config.RequiredMemoryBytes),
			fmt.Sprintf("The local model needs %.1f GiB of free memory. Close other applications or use the cloud model.",
				float64(p.config.RequiredMemoryBytes)/(1<<30)))
	}
	return nil
}

// idleLoop releases weights after the configured idle period. The provider
// stays Ready: the next Generate reloads lazily.
func (p *Provider) idleLoop(stop chan struct{}) {
	ticker := time.NewTicker(p.config.IdleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.maybeReleaseIdle()
		}
	}
}

func (p *Provider) maybeReleaseIdle() {
	p.mu.Lock()
	idle := p.state == aicore.StateReady && !p.released && time.Since(p.lastUsed) >= p.config.IdleTimeout
	p.mu.Unlock()
	if !idle {
		return
	}

	// Take the engine slot so a release never races an inference.
	select {
	case p.engineSem <- struct{}{}:
	default:
		return
	}
	defer func() { <-p.engineSem }()

	p.mu.Lock()
	stillIdle := p.state == aicore.StateReady && !p.released && time.Since(p.lastUsed) >= p.config.IdleTimeout
	p.mu.Unlock()
	if !stillIdle {
		return
	}

	if err := p.engine.Unload(); err != nil {
		p.logger.Warn("idle release failed", "error", err)
		return
	}
	p.mu.Lock()
	p.released = true
	p.mu.Unlock()
	p.logger.Debug("released idle model weights")
}

func (p *Provider) setState(state aicore.ProviderState, msg string) {
	p.mu.Lock()
	p.state = state
	p.stateMsg = msg
	p.mu.Unlock()
}

func (p *Provider) mapContextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return aicore.WrapError(aicore.KindTimeout, "local inference exceeded deadline",
			"The local model took too long to respond.", err)
	}
	return err
}
