package orchestrator

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/taskpilot/taskpilot/src/aicore"
	"github.com/taskpilot/taskpilot/src/toolkit"
)

func readyManager(t *testing.T, provider *fakeProvider, recorder *fakeRecorder) *Manager {
	t.Helper()
	m := NewManager(Config{
		SystemPrompt: "You are a task assistant.",
		Audit:        recorder,
	})
	if err := m.RegisterProvider("cloud", provider); err != nil {
		t.Fatal(err)
	}
	if err := m.SwitchProvider(context.Background(), "cloud"); err != nil {
		t.Fatal(err)
	}
	return m
}

func registerEchoTool(t *testing.T, m *Manager, name string, perms []toolkit.Permission, fn toolkit.Handler) {
	t.Helper()
	tool := toolkit.MustNewFuncTool(name, "test tool", nil, perms, fn)
	if err := m.Registry().RegisterTool(tool); err != nil {
		t.Fatal(err)
	}
}

func TestProcessMessageSimple(t *testing.T) {
	recorder := &fakeRecorder{}
	provider := newFakeProvider("You have two open tasks.")
	m := readyManager(t, provider, recorder)

	resp, err := m.ProcessMessage(context.Background(), &Request{
		SessionID: "s1",
		Message:   "what is open?",
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if resp.Text != "You have two open tasks." {
		t.Errorf("text = %q", resp.Text)
	}
	if len(resp.ToolCalls) != 0 {
		t.Errorf("tool calls = %d, want 0", len(resp.ToolCalls))
	}
	if resp.Model != "fake-model" {
		t.Errorf("model = %q", resp.Model)
	}

	if recorder.count() != 1 {
		t.Fatalf("recorded interactions = %d, want 1", recorder.count())
	}
	log := recorder.last()
	if log.UserMessage != "what is open?" || log.AIResponse != resp.Text {
		t.Errorf("interaction log content mismatch: %+v", log)
	}
	if log.ModelType != "cloud" {
		t.Errorf("model type = %q", log.ModelType)
	}
}

func TestProcessMessageValidation(t *testing.T) {
	m := readyManager(t, newFakeProvider(), &fakeRecorder{})

	_, err := m.ProcessMessage(context.Background(), &Request{SessionID: "s1"})
	if aicore.KindOf(err) != aicore.KindInvalidRequest {
		t.Errorf("empty message kind = %v", aicore.KindOf(err))
	}

	_, err = m.ProcessMessage(context.Background(), &Request{Message: "hi"})
	if aicore.KindOf(err) != aicore.KindInvalidRequest {
		t.Errorf("missing session kind = %v", aicore.KindOf(err))
	}
}

func TestProcessMessageNoActiveProvider(t *testing.T) {
	m := NewManager(Config{})
	m.RegisterProvider("cloud", newFakeProvider())

	_, err := m.ProcessMessage(context.Background(), &Request{SessionID: "s1", Message: "hi"})
	if aicore.KindOf(err) != aicore.KindProviderUnavailable {
		t.Fatalf("kind = %v, want provider_unavailable", aicore.KindOf(err))
	}
}

func TestProcessMessageProviderNotReady(t *testing.T) {
	provider := newFakeProvider()
	m := readyManager(t, provider, &fakeRecorder{})
	provider.Cleanup(context.Background())

	_, err := m.ProcessMessage(context.Background(), &Request{SessionID: "s1", Message: "hi"})
	if aicore.KindOf(err) != aicore.KindProviderUnavailable {
		t.Fatalf("kind = %v, want provider_unavailable", aicore.KindOf(err))
	}
}

func TestToolRound(t *testing.T) {
	directive := `{"tool_calls":[{"id":"c1","name":"create_task","arguments":{"title":"write report"}}]}`
	recorder := &fakeRecorder{}
	provider := newFakeProvider(directive, "Created the task for you.")
	m := readyManager(t, provider, recorder)

	var gotArgs json.RawMessage
	registerEchoTool(t, m, "create_task", []toolkit.Permission{toolkit.PermissionWrite},
		func(ctx context.Context, args json.RawMessage) (any, error) {
			gotArgs = args
			return map[string]string{"id": "t-1", "title": "write report"}, nil
		})

	resp, err := m.ProcessMessage(context.Background(), &Request{SessionID: "s1", Message: "add a task"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if resp.Text != "Created the task for you." {
		t.Errorf("text = %q", resp.Text)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(resp.ToolCalls))
	}
	record := resp.ToolCalls[0]
	if record.Name != "create_task" || !record.Result.Success {
		t.Errorf("record = %+v", record)
	}
	if !strings.Contains(string(gotArgs), "write report") {
		t.Errorf("tool saw args %s", gotArgs)
	}

	// The second generation saw the tool result in its prompt.
	provider.mu.Lock()
	prompts := append([]string(nil), provider.prompts...)
	provider.mu.Unlock()
	if len(prompts) != 2 {
		t.Fatalf("generations = %d, want 2", len(prompts))
	}
	if !strings.Contains(prompts[1], "Tool create_task result") {
		t.Errorf("final prompt missing tool result: %q", prompts[1])
	}

	log := recorder.last()
	if len(log.ToolExecutions) != 1 || log.ToolExecutions[0].ToolName != "create_task" {
		t.Errorf("audit tool executions = %+v", log.ToolExecutions)
	}
}

func TestToolRoundCapIsOne(t *testing.T) {
	directive := `{"tool_calls":[{"id":"c1","name":"get_tasks","arguments":{}}]}`
	provider := newFakeProvider(directive, directive)
	m := readyManager(t, provider, &fakeRecorder{})

	calls := 0
	registerEchoTool(t, m, "get_tasks", []toolkit.Permission{toolkit.PermissionRead},
		func(ctx context.Context, args json.RawMessage) (any, error) {
			calls++
			return []string{}, nil
		})

	resp, err := m.ProcessMessage(context.Background(), &Request{SessionID: "s1", Message: "loop?"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if calls != 1 {
		t.Fatalf("tool executed %d times, want 1", calls)
	}
	// The second directive is returned as plain text, not executed.
	if resp.Text != directive {
		t.Errorf("text = %q", resp.Text)
	}
}

func TestToolFailureDoesNotBlockSiblings(t *testing.T) {
	directive := `{"tool_calls":[
		{"id":"c1","name":"start_timer","arguments":{"task_id":"t1"}},
		{"id":"c2","name":"get_tasks","arguments":{}}
	]}`
	provider := newFakeProvider(directive, "done")
	m := readyManager(t, provider, &fakeRecorder{})

	registerEchoTool(t, m, "start_timer", []toolkit.Permission{toolkit.PermissionWrite},
		func(ctx context.Context, args json.RawMessage) (any, error) {
			panic("timer subsystem exploded")
		})
	executed := false
	registerEchoTool(t, m, "get_tasks", []toolkit.Permission{toolkit.PermissionRead},
		func(ctx context.Context, args json.RawMessage) (any, error) {
			executed = true
			return []string{}, nil
		})

	resp, err := m.ProcessMessage(context.Background(), &Request{SessionID: "s1", Message: "do both"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(resp.ToolCalls) != 2 {
		t.Fatalf("tool calls = %d, want 2", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].Result.Success {
		t.Error("panicking tool reported success")
	}
	if !resp.ToolCalls[1].Result.Success || !executed {
		t.Error("sibling tool did not execute after failure")
	}
}

func TestToolRoundRecordedWhenFinalizeFails(t *testing.T) {
	directive := `{"tool_calls":[{"id":"c1","name":"create_task","arguments":{"title":"write report"}}]}`
	recorder := &fakeRecorder{}
	provider := newFakeProvider(directive)
	m := readyManager(t, provider, recorder)

	// The tool runs between the two generations; failing the provider here
	// makes only the final generation error out.
	registerEchoTool(t, m, "create_task", []toolkit.Permission{toolkit.PermissionWrite},
		func(ctx context.Context, args json.RawMessage) (any, error) {
			provider.mu.Lock()
			provider.genErr = aicore.NewError(aicore.KindTimeout, "model stalled", "Too slow.")
			provider.mu.Unlock()
			return map[string]string{"id": "t-1"}, nil
		})

	_, err := m.ProcessMessage(context.Background(), &Request{SessionID: "s1", Message: "add a task"})
	if aicore.KindOf(err) != aicore.KindTimeout {
		t.Fatalf("kind = %v, want timeout", aicore.KindOf(err))
	}

	// The tool had side effects; the failure record must still carry them.
	log := recorder.last()
	if log == nil {
		t.Fatal("failure not recorded")
	}
	if len(log.ToolExecutions) != 1 || log.ToolExecutions[0].ToolName != "create_task" {
		t.Fatalf("tool executions = %+v", log.ToolExecutions)
	}
	if !log.ToolExecutions[0].Success {
		t.Error("executed tool recorded as failed")
	}
	if !strings.Contains(log.Actions, "create_task") {
		t.Errorf("actions = %q, want executed tool call", log.Actions)
	}
}

func TestFailedToolCarriesErrorCode(t *testing.T) {
	directive := `{"tool_calls":[
		{"id":"c1","name":"start_timer","arguments":{"task_id":"t1"}},
		{"id":"c2","name":"get_tasks","arguments":{}}
	]}`
	recorder := &fakeRecorder{}
	provider := newFakeProvider(directive, "done")
	m := readyManager(t, provider, recorder)

	registerEchoTool(t, m, "start_timer", []toolkit.Permission{toolkit.PermissionWrite},
		func(ctx context.Context, args json.RawMessage) (any, error) {
			panic("timer subsystem exploded")
		})
	registerEchoTool(t, m, "get_tasks", []toolkit.Permission{toolkit.PermissionRead},
		func(ctx context.Context, args json.RawMessage) (any, error) {
			return []string{}, nil
		})

	if _, err := m.ProcessMessage(context.Background(), &Request{SessionID: "s1", Message: "do both"}); err != nil {
		t.Fatalf("process: %v", err)
	}

	log := recorder.last()
	if len(log.ToolExecutions) != 2 {
		t.Fatalf("tool executions = %d, want 2", len(log.ToolExecutions))
	}
	if got := log.ToolExecutions[0].ErrorCode; got != string(aicore.KindToolExecutionFailed) {
		t.Errorf("failed tool error code = %q, want %q", got, aicore.KindToolExecutionFailed)
	}
	if got := log.ToolExecutions[1].ErrorCode; got != "" {
		t.Errorf("successful tool error code = %q, want empty", got)
	}
}

func TestToolPermissionNarrowing(t *testing.T) {
	directive := `{"tool_calls":[{"id":"c1","name":"create_task","arguments":{"title":"x"}}]}`
	provider := newFakeProvider(directive, "sorry")
	m := readyManager(t, provider, &fakeRecorder{})

	bodyRan := false
	registerEchoTool(t, m, "create_task", []toolkit.Permission{toolkit.PermissionWrite},
		func(ctx context.Context, args json.RawMessage) (any, error) {
			bodyRan = true
			return nil, nil
		})

	resp, err := m.ProcessMessage(context.Background(), &Request{
		SessionID:   "s1",
		Message:     "add a task",
		Permissions: []toolkit.Permission{toolkit.PermissionRead},
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if bodyRan {
		t.Error("tool body ran despite read-only permissions")
	}
	if resp.ToolCalls[0].Result.Success {
		t.Error("denied tool reported success")
	}
	if !strings.Contains(resp.ToolCalls[0].Result.Error, "Insufficient permissions") {
		t.Errorf("error = %q", resp.ToolCalls[0].Result.Error)
	}
}

func TestUnparseableDirectiveIsPlainText(t *testing.T) {
	raw := `{"tool_calls":[{"name": create_task BROKEN`
	provider := newFakeProvider(raw)
	m := readyManager(t, provider, &fakeRecorder{})

	resp, err := m.ProcessMessage(context.Background(), &Request{SessionID: "s1", Message: "hi"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if resp.Text != raw {
		t.Errorf("text = %q, want raw fragment", resp.Text)
	}
	if len(resp.ToolCalls) != 0 {
		t.Errorf("tool calls = %d, want 0", len(resp.ToolCalls))
	}
}

func TestSessionOrdering(t *testing.T) {
	provider := newFakeProvider("first", "second")
	provider.block = make(chan struct{})
	provider.started = make(chan struct{}, 2)
	m := readyManager(t, provider, &fakeRecorder{})

	var wg sync.WaitGroup
	var mu sync.Mutex
	var order []string

	wg.Add(1)
	go func() {
		defer wg.Done()
		resp, err := m.ProcessMessage(context.Background(), &Request{SessionID: "s1", Message: "one"})
		if err != nil {
			t.Errorf("first: %v", err)
			return
		}
		mu.Lock()
		order = append(order, resp.Text)
		mu.Unlock()
	}()
	<-provider.started

	wg.Add(1)
	go func() {
		defer wg.Done()
		resp, err := m.ProcessMessage(context.Background(), &Request{SessionID: "s1", Message: "two"})
		if err != nil {
			t.Errorf("second: %v", err)
			return
		}
		mu.Lock()
		order = append(order, resp.Text)
		mu.Unlock()
	}()

	// The second message must not reach the provider while the first turn
	// is still in flight.
	time.Sleep(20 * time.Millisecond)
	provider.mu.Lock()
	generated := len(provider.prompts)
	provider.mu.Unlock()
	if generated != 0 {
		t.Fatalf("second message generated before first completed")
	}

	close(provider.block)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("order = %v", order)
	}
}

func TestCancellationWhileQueued(t *testing.T) {
	provider := newFakeProvider("first", "second")
	provider.block = make(chan struct{})
	provider.started = make(chan struct{}, 2)
	m := readyManager(t, provider, &fakeRecorder{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.ProcessMessage(context.Background(), &Request{SessionID: "s1", Message: "one"})
	}()
	<-provider.started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.ProcessMessage(ctx, &Request{SessionID: "s1", Message: "two"})
	if err != context.Canceled {
		t.Fatalf("queued call err = %v, want context.Canceled", err)
	}

	close(provider.block)
	<-done

	// The session is still usable after the cancelled call.
	resp, err := m.ProcessMessage(context.Background(), &Request{SessionID: "s1", Message: "three"})
	if err != nil {
		t.Fatalf("follow-up: %v", err)
	}
	if resp.Text != "second" {
		t.Errorf("text = %q", resp.Text)
	}
}

func TestSessionRingTrimsOldest(t *testing.T) {
	provider := newFakeProvider("a", "b", "c", "d")
	m := NewManager(Config{MaxTurns: 4, Audit: nil})
	m.RegisterProvider("cloud", provider)
	m.SwitchProvider(context.Background(), "cloud")

	for _, msg := range []string{"m1", "m2", "m3", "m4"} {
		if _, err := m.ProcessMessage(context.Background(), &Request{SessionID: "s1", Message: msg}); err != nil {
			t.Fatal(err)
		}
	}

	sess := m.getOrCreateSession("s1")
	turns := sess.history()
	if len(turns) != 4 {
		t.Fatalf("retained turns = %d, want 4", len(turns))
	}
	// Oldest (m1/a and m2/b) trimmed, newest retained.
	if turns[0].Content != "m3" || turns[3].Content != "d" {
		t.Errorf("unexpected ring contents: %+v", turns)
	}
}

func TestClearConversation(t *testing.T) {
	provider := newFakeProvider("hello")
	m := readyManager(t, provider, &fakeRecorder{})

	if _, err := m.ProcessMessage(context.Background(), &Request{SessionID: "s1", Message: "hi"}); err != nil {
		t.Fatal(err)
	}
	m.ClearConversation("s1")
	if turns := m.getOrCreateSession("s1").history(); len(turns) != 0 {
		t.Errorf("turns after clear = %d, want 0", len(turns))
	}

	// Clearing an unknown session is a no-op.
	m.ClearConversation("never-seen")
}

func TestAuditFailureDoesNotSurface(t *testing.T) {
	recorder := &fakeRecorder{err: context.DeadlineExceeded}
	provider := newFakeProvider("fine")
	m := readyManager(t, provider, recorder)

	resp, err := m.ProcessMessage(context.Background(), &Request{SessionID: "s1", Message: "hi"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if resp.Text != "fine" {
		t.Errorf("text = %q", resp.Text)
	}
}

func TestFailedGenerationStillRecorded(t *testing.T) {
	recorder := &fakeRecorder{}
	provider := newFakeProvider()
	m := readyManager(t, provider, recorder)
	provider.mu.Lock()
	provider.genErr = aicore.NewError(aicore.KindTimeout, "model stalled", "Too slow.")
	provider.mu.Unlock()

	_, err := m.ProcessMessage(context.Background(), &Request{SessionID: "s1", Message: "hi"})
	if aicore.KindOf(err) != aicore.KindTimeout {
		t.Fatalf("kind = %v, want timeout", aicore.KindOf(err))
	}
	log := recorder.last()
	if log == nil || log.ErrorCode != "timeout" {
		t.Fatalf("failure not recorded: %+v", log)
	}

	// History is intact: the failed turn added nothing.
	if turns := m.getOrCreateSession("s1").history(); len(turns) != 0 {
		t.Errorf("turns after failed request = %d, want 0", len(turns))
	}
}
