package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/taskpilot/taskpilot/src/aicore"
	"github.com/taskpilot/taskpilot/src/auditlog"
)

// fakeProvider is a scripted in-memory provider. Generate consumes responses
// in order and parses tool-call directives the way real providers do.
type fakeProvider struct {
	mu        sync.Mutex
	ready     bool
	initErr   error
	genErr    error
	responses []string
	prompts   []string
	modelType aicore.ModelType
	caps      []string

	initCalls    int
	cleanupCalls int

	// initDelay widens Initialize so concurrent callers overlap.
	initDelay time.Duration

	// block, when non-nil, parks Generate until it is closed.
	block   chan struct{}
	started chan struct{}
}

func newFakeProvider(responses ...string) *fakeProvider {
	return &fakeProvider{
		responses: responses,
		modelType: aicore.ModelTypeCloud,
		caps:      []string{aicore.CapabilityToolCalling},
	}
}

func (f *fakeProvider) Generate(ctx context.Context, prompt string, opts *aicore.GenerateOptions) (*aicore.GenerateResult, error) {
	f.mu.Lock()
	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.genErr != nil {
		return nil, f.genErr
	}
	f.prompts = append(f.prompts, prompt)
	text := "ok"
	if len(f.responses) > 0 {
		text = f.responses[0]
		f.responses = f.responses[1:]
	}
	result := &aicore.GenerateResult{Text: text, TokenCount: 7, Model: "fake-model"}
	if calls, ok := aicore.ParseToolCalls(text); ok {
		result.ToolCalls = calls
	}
	return result, nil
}

func (f *fakeProvider) IsReady() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeProvider) Status() aicore.ProviderStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := aicore.StateUninitialized
	if f.ready {
		state = aicore.StateReady
	}
	return aicore.ProviderStatus{State: state, Model: "fake-model"}
}

func (f *fakeProvider) Initialize(ctx context.Context) error {
	if f.initDelay > 0 {
		time.Sleep(f.initDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCalls++
	if f.initErr != nil {
		return f.initErr
	}
	f.ready = true
	return nil
}

func (f *fakeProvider) Cleanup(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanupCalls++
	f.ready = false
	return nil
}

func (f *fakeProvider) Capabilities() []string { return f.caps }

func (f *fakeProvider) ModelType() aicore.ModelType { return f.modelType }

func (f *fakeProvider) ValidatePrompt(p string) error {
	return aicore.ValidatePromptText(p, aicore.MaxPromptBytes)
}

// fakeRecorder captures interaction logs in memory.
type fakeRecorder struct {
	mu   sync.Mutex
	logs []*auditlog.InteractionLog
	err  error
}

func (r *fakeRecorder) LogInteraction(ctx context.Context, log *auditlog.InteractionLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.logs = append(r.logs, log)
	return nil
}

func (r *fakeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.logs)
}

func (r *fakeRecorder) last() *auditlog.InteractionLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.logs) == 0 {
		return nil
	}
	return r.logs[len(r.logs)-1]
}

func TestRegisterProviderDuplicate(t *testing.T) {
	m := NewManager(Config{})
	if err := m.RegisterProvider("cloud", newFakeProvider()); err != nil {
		t.Fatalf("register: %v", err)
	}
	err := m.RegisterProvider("cloud", newFakeProvider())
	if !errors.Is(err, ErrProviderRegistered) {
		t.Fatalf("err = %v, want ErrProviderRegistered", err)
	}
}

func TestSwitchProviderUnknown(t *testing.T) {
	m := NewManager(Config{})
	err := m.SwitchProvider(context.Background(), "missing")
	if !errors.Is(err, ErrProviderNotFound) {
		t.Fatalf("err = %v, want ErrProviderNotFound", err)
	}
}

func TestSwitchProviderActivates(t *testing.T) {
	m := NewManager(Config{})
	cloud := newFakeProvider()
	if err := m.RegisterProvider("cloud", cloud); err != nil {
		t.Fatal(err)
	}
	if got := m.ActiveProvider(); got != "" {
		t.Fatalf("active before switch = %q, want empty", got)
	}
	if err := m.SwitchProvider(context.Background(), "cloud"); err != nil {
		t.Fatalf("switch: %v", err)
	}
	if got := m.ActiveProvider(); got != "cloud" {
		t.Fatalf("active = %q, want cloud", got)
	}
	if cloud.initCalls != 1 {
		t.Errorf("initCalls = %d, want 1", cloud.initCalls)
	}
}

func TestSwitchProviderAtomicOnFailure(t *testing.T) {
	m := NewManager(Config{})
	cloud := newFakeProvider()
	local := newFakeProvider()
	local.initErr = errors.New("model missing")
	m.RegisterProvider("cloud", cloud)
	m.RegisterProvider("local", local)
	if err := m.SwitchProvider(context.Background(), "cloud"); err != nil {
		t.Fatal(err)
	}

	err := m.SwitchProvider(context.Background(), "local")
	if err == nil {
		t.Fatal("expected switch failure")
	}
	if got := m.Status().Active; got != "cloud" {
		t.Fatalf("active after failed switch = %q, want cloud", got)
	}
	if cloud.cleanupCalls != 0 {
		t.Errorf("previous provider cleaned up despite failed switch")
	}
	if !cloud.IsReady() {
		t.Error("previous provider no longer ready after failed switch")
	}
}

func TestSwitchProviderCleansUpPrevious(t *testing.T) {
	m := NewManager(Config{})
	cloud := newFakeProvider()
	local := newFakeProvider()
	m.RegisterProvider("cloud", cloud)
	m.RegisterProvider("local", local)
	m.SwitchProvider(context.Background(), "cloud")

	if err := m.SwitchProvider(context.Background(), "local"); err != nil {
		t.Fatalf("switch: %v", err)
	}
	if cloud.cleanupCalls != 1 {
		t.Errorf("cleanupCalls = %d, want 1", cloud.cleanupCalls)
	}
	if got := m.ActiveProvider(); got != "local" {
		t.Fatalf("active = %q, want local", got)
	}
}

func TestSwitchProviderSameNameNoOp(t *testing.T) {
	m := NewManager(Config{})
	cloud := newFakeProvider()
	m.RegisterProvider("cloud", cloud)
	m.SwitchProvider(context.Background(), "cloud")
	m.SwitchProvider(context.Background(), "cloud")
	if cloud.initCalls != 1 {
		t.Errorf("initCalls = %d, want 1", cloud.initCalls)
	}
}

func TestSwitchProviderConcurrentSameTarget(t *testing.T) {
	m := NewManager(Config{})
	cloud := newFakeProvider()
	local := newFakeProvider()
	local.initDelay = 10 * time.Millisecond
	m.RegisterProvider("cloud", cloud)
	m.RegisterProvider("local", local)
	m.SwitchProvider(context.Background(), "cloud")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = m.SwitchProvider(context.Background(), "local")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("switch %d: %v", i, err)
		}
	}
	if got := m.ActiveProvider(); got != "local" {
		t.Fatalf("active = %q, want local", got)
	}
	// The duplicate switch must never clean up the provider it just
	// activated.
	if local.cleanupCalls != 0 {
		t.Errorf("active provider cleaned up %d times by duplicate switch", local.cleanupCalls)
	}
	if !local.IsReady() {
		t.Error("active provider not ready after duplicate switch")
	}
	if cloud.cleanupCalls != 1 {
		t.Errorf("previous provider cleanupCalls = %d, want 1", cloud.cleanupCalls)
	}
}

func TestStatusAggregatesPool(t *testing.T) {
	m := NewManager(Config{})
	m.RegisterProvider("cloud", newFakeProvider())
	m.RegisterProvider("local", newFakeProvider())
	m.SwitchProvider(context.Background(), "cloud")

	status := m.Status()
	if status.Active != "cloud" {
		t.Errorf("active = %q", status.Active)
	}
	if len(status.Providers) != 2 {
		t.Fatalf("providers = %d, want 2", len(status.Providers))
	}
	if status.Providers["cloud"].State != aicore.StateReady {
		t.Errorf("cloud state = %v, want ready", status.Providers["cloud"].State)
	}
	if status.Providers["local"].State != aicore.StateUninitialized {
		t.Errorf("local state = %v, want uninitialized", status.Providers["local"].State)
	}
}

func TestShutdownCleansUpAll(t *testing.T) {
	m := NewManager(Config{})
	cloud := newFakeProvider()
	local := newFakeProvider()
	m.RegisterProvider("cloud", cloud)
	m.RegisterProvider("local", local)
	m.SwitchProvider(context.Background(), "cloud")

	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if cloud.cleanupCalls != 1 || local.cleanupCalls != 1 {
		t.Errorf("cleanup calls = %d/%d, want 1/1", cloud.cleanupCalls, local.cleanupCalls)
	}
	if got := m.ActiveProvider(); got != "" {
		t.Errorf("active after shutdown = %q, want empty", got)
	}
}
