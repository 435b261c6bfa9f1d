package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/taskpilot/taskpilot/src/aicore"
	"github.com/taskpilot/taskpilot/src/auditlog"
	"github.com/taskpilot/taskpilot/src/toolkit"
)

// Request is one conversational message.
type Request struct {
	SessionID            string `json:"session_id"`
	Message              string `json:"message"`
	SystemPromptOverride string `json:"system_prompt_override,omitempty"`

	// Permissions narrow what tool calls this request may perform. Nil
	// grants the manager's defaults.
	Permissions []toolkit.Permission `json:"permissions,omitempty"`
}

// ToolCallRecord is one executed tool call within a response.
type ToolCallRecord struct {
	ID        string                   `json:"id"`
	Name      string                   `json:"name"`
	Arguments json.RawMessage          `json:"arguments"`
	Result    *toolkit.ExecutionResult `json:"result"`
}

// Response is the final answer for one request cycle.
type Response struct {
	SessionID  string           `json:"session_id"`
	Text       string           `json:"text"`
	ToolCalls  []ToolCallRecord `json:"tool_calls"`
	Model      string           `json:"model"`
	DurationMs int64            `json:"duration_ms"`
}

// ProcessMessage runs one full request cycle: generate, execute any tool
// directives, feed results back for one final generation, and record the
// interaction. Requests for the same session run strictly in submission
// order; a failed request leaves the session history intact and usable.
func (m *Manager) ProcessMessage(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	if req.Message == "" {
		return nil, aicore.NewError(aicore.KindInvalidRequest, "message is required",
			"Type a message first.")
	}
	if req.SessionID == "" {
		return nil, aicore.NewError(aicore.KindInvalidRequest, "session id is required",
			"The conversation session is missing.")
	}

	activeName, provider, err := m.activeProvider()
	if err != nil {
		return nil, aicore.WrapError(aicore.KindProviderUnavailable, "no active provider",
			"No AI model is active. Pick a model first.", err)
	}
	if !provider.IsReady() {
		return nil, aicore.NewError(aicore.KindProviderUnavailable,
			fmt.Sprintf("active provider %q is not ready", activeName),
			"The AI model is not ready. Try again or switch models.")
	}
	if err := provider.ValidatePrompt(req.Message); err != nil {
		return nil, err
	}

	sess := m.getOrCreateSession(req.SessionID)
	if err := sess.acquire(ctx); err != nil {
		return nil, err
	}
	defer sess.release()

	resp, interaction, err := m.runCycle(ctx, sess, provider, req, start)

	// Interaction logging is best-effort and strictly after the response
	// is finalized. A logging failure never reaches the caller.
	if m.audit != nil && interaction != nil {
		if logErr := m.audit.LogInteraction(ctx, interaction); logErr != nil {
			m.logger.Warn("failed to record interaction", "session", req.SessionID, "error", logErr)
		}
	}
	return resp, err
}

// runCycle does the generate / tool round / finalize pipeline and builds the
// audit record for both success and failure outcomes.
func (m *Manager) runCycle(ctx context.Context, sess *session, provider aicore.Provider, req *Request, start time.Time) (*Response, *auditlog.InteractionLog, error) {
	systemPrompt := m.systemPrompt
	if req.SystemPromptOverride != "" {
		systemPrompt = req.SystemPromptOverride
	}

	modelType := auditlog.ModelTypeCloud
	if provider.ModelType() == aicore.ModelTypeLocal {
		modelType = auditlog.ModelTypeLocal
	}
	interaction := &auditlog.InteractionLog{
		SessionID:    req.SessionID,
		ModelType:    modelType,
		UserMessage:  req.Message,
		SystemPrompt: systemPrompt,
	}

	history := sess.history()
	prompt := buildPrompt(systemPrompt, history, req.Message)
	interaction.ContextSnapshot = transcript(history)

	result, err := provider.Generate(ctx, prompt, nil)
	if err != nil {
		fillFailure(interaction, err, start)
		return nil, interaction, err
	}
	interaction.ModelInfo = result.Model

	resp := &Response{
		SessionID: req.SessionID,
		Text:      result.Text,
		ToolCalls: []ToolCallRecord{},
		Model:     result.Model,
	}
	tokenCount := result.TokenCount

	// One tool round per request. Directives from a provider without the
	// tool-calling capability are treated as plain text.
	if len(result.ToolCalls) > 0 && slices.Contains(provider.Capabilities(), aicore.CapabilityToolCalling) {
		records := m.executeToolCalls(ctx, req, result.ToolCalls)
		resp.ToolCalls = records

		// Tools have side effects; record them even if finalization fails.
		interaction.ToolExecutions = toolExecutionLogs(records)
		if actions, err := json.Marshal(records); err == nil {
			interaction.Actions = string(actions)
		}

		sess.append(Turn{Role: RoleUser, Content: req.Message, CreatedAt: time.Now()})
		toolTurns := make([]Turn, 0, len(records))
		for _, record := range records {
			toolTurns = append(toolTurns, Turn{
				Role:      RoleTool,
				ToolName:  record.Name,
				Content:   renderToolResult(record.Result),
				CreatedAt: time.Now(),
			})
		}
		sess.append(toolTurns...)

		finalPrompt := buildPrompt(systemPrompt, sess.history(),
			"Summarize the results of the actions above for the user.")
		final, err := provider.Generate(ctx, finalPrompt, nil)
		if err != nil {
			fillFailure(interaction, err, start)
			return nil, interaction, err
		}
		// Further directives past the single round are not executed.
		resp.Text = final.Text
		tokenCount += final.TokenCount

		sess.append(Turn{Role: RoleAssistant, Content: resp.Text, CreatedAt: time.Now()})
	} else {
		sess.append(
			Turn{Role: RoleUser, Content: req.Message, CreatedAt: time.Now()},
			Turn{Role: RoleAssistant, Content: resp.Text, CreatedAt: time.Now()},
		)
	}

	resp.DurationMs = time.Since(start).Milliseconds()
	interaction.AIResponse = resp.Text
	interaction.ResponseTimeMs = resp.DurationMs
	interaction.TokenCount = tokenCount
	if actions, err := json.Marshal(resp.ToolCalls); err == nil {
		interaction.Actions = string(actions)
	}
	return resp, interaction, nil
}

// executeToolCalls runs directives sequentially in order. A failing tool
// never prevents its siblings from executing.
func (m *Manager) executeToolCalls(ctx context.Context, req *Request, calls []aicore.ToolCall) []ToolCallRecord {
	perms := req.Permissions
	if perms == nil {
		perms = m.defaultPerms
	}
	execCtx := toolkit.NewExecutionContext(perms...)

	records := make([]ToolCallRecord, 0, len(calls))
	for _, call := range calls {
		m.logger.Debug("executing tool call", "tool", call.Name, "id", call.ID)
		result := m.registry.Execute(ctx, call.Name, call.Arguments, execCtx)
		if !result.Success {
			m.logger.Warn("tool call failed", "tool", call.Name, "error", result.Error)
		}
		records = append(records, ToolCallRecord{
			ID:        call.ID,
			Name:      call.Name,
			Arguments: call.Arguments,
			Result:    result,
		})
	}
	return records
}

func fillFailure(interaction *auditlog.InteractionLog, err error, start time.Time) {
	interaction.Error = err.Error()
	interaction.ErrorCode = string(aicore.KindOf(err))
	interaction.ResponseTimeMs = time.Since(start).Milliseconds()
}

func toolExecutionLogs(records []ToolCallRecord) []auditlog.ToolExecutionLog {
	logs := make([]auditlog.ToolExecutionLog, 0, len(records))
	for _, record := range records {
		log := auditlog.ToolExecutionLog{
			ToolName:        record.Name,
			Arguments:       string(record.Arguments),
			Success:         record.Result.Success,
			Error:           record.Result.Error,
			ExecutionTimeMs: record.Result.Metadata.ExecutionTimeMs,
		}
		if !record.Result.Success {
			log.ErrorCode = string(aicore.KindToolExecutionFailed)
		}
		if record.Result.Data != nil {
			if out, err := json.Marshal(record.Result.Data); err == nil {
				log.Output = string(out)
			}
		}
		logs = append(logs, log)
	}
	return logs
}

func renderToolResult(result *toolkit.ExecutionResult) string {
	if !result.Success {
		return "error: " + result.Error
	}
	if result.Data == nil {
		return "ok"
	}
	out, err := json.Marshal(result.Data)
	if err != nil {
		return "ok"
	}
	return string(out)
}

// buildPrompt composes the system prompt, the session transcript, and the
// new user message into one generation prompt.
func buildPrompt(systemPrompt string, history []Turn, message string) string {
	var b []byte
	if systemPrompt != "" {
		b = append(b, systemPrompt...)
		b = append(b, "\n\n"...)
	}
	if len(history) > 0 {
		b = append(b, transcript(history)...)
	}
	b = append(b, "User: "...)
	b = append(b, message...)
	b = append(b, "\nAssistant:"...)
	return string(b)
}
