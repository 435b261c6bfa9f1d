package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// ExecutionResult is the uniform envelope produced by every tool call,
// success or failure. Nothing thrown by a tool body ever crosses this
// boundary as a raised error.
type ExecutionResult struct {
	Success     bool              `json:"success"`
	Data        any               `json:"data,omitempty"`
	Error       string            `json:"error,omitempty"`
	UserMessage string            `json:"user_message"`
	Metadata    ExecutionMetadata `json:"metadata"`
}

// ExecutionMetadata records timing and identity for a tool call.
type ExecutionMetadata struct {
	ToolName        string `json:"tool_name"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
}

// ExecFunc runs a tool body against raw arguments.
type ExecFunc func(ctx context.Context, args json.RawMessage) (any, error)

// Middleware wraps an ExecFunc to add behavior around tool execution.
type Middleware func(toolName string, next ExecFunc) ExecFunc

// Execute resolves and runs a tool, always returning a result envelope.
// Unknown tools, denied permissions, panicking bodies, and tool errors all
// produce a failed envelope with timing recorded; they never raise.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage, execCtx *ExecutionContext) *ExecutionResult {
	start := time.Now()
	finish := func(res *ExecutionResult) *ExecutionResult {
		res.Metadata.ToolName = name
		res.Metadata.ExecutionTimeMs = time.Since(start).Milliseconds()
		return res
	}

	tool, exists := r.GetTool(name)
	if !exists {
		return finish(&ExecutionResult{
			Error:       fmt.Sprintf("tool not found: %s", name),
			UserMessage: "That action is not available.",
		})
	}

	if execCtx != nil && !execCtx.Grants(RequiredPermissions(tool)) {
		return finish(&ExecutionResult{
			Error:       fmt.Sprintf("Insufficient permissions for tool %s: requires %v", name, RequiredPermissions(tool)),
			UserMessage: "You don't have permission for that action.",
		})
	}

	output, err := r.runGuarded(ctx, tool, args)
	if err != nil {
		return finish(&ExecutionResult{
			Error:       err.Error(),
			UserMessage: "The action failed. Try again or rephrase your request.",
		})
	}

	return finish(&ExecutionResult{
		Success:     true,
		Data:        normalizeOutput(output),
		UserMessage: "Done.",
	})
}

// runGuarded applies the middleware chain and converts panics in the tool
// body into ordinary errors.
func (r *Registry) runGuarded(ctx context.Context, tool Tool, args json.RawMessage) (output any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			output = nil
			err = fmt.Errorf("tool %s panicked: %v", tool.GetName(), rec)
		}
	}()

	exec := ExecFunc(tool.Execute)

	r.mu.RLock()
	middleware := r.middleware
	r.mu.RUnlock()
	for i := len(middleware) - 1; i >= 0; i-- {
		exec = middleware[i](tool.GetName(), exec)
	}

	return exec(ctx, args)
}

// normalizeOutput keeps structured results as-is and wraps raw textual or
// byte output that is not valid JSON as {data: raw}. Malformed tool output
// is tolerated, not fatal.
func normalizeOutput(output any) any {
	switch v := output.(type) {
	case json.RawMessage:
		return wrapRaw(string(v))
	case []byte:
		return wrapRaw(string(v))
	case string:
		return wrapRaw(v)
	default:
		return output
	}
}

func wrapRaw(raw string) any {
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
		return decoded
	}
	return map[string]any{"data": raw}
}

// TimingMiddleware logs tool execution duration and outcome.
func TimingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(toolName string, next ExecFunc) ExecFunc {
		return func(ctx context.Context, args json.RawMessage) (any, error) {
			start := time.Now()
			logger.Debug("executing tool", "tool", toolName)
			output, err := next(ctx, args)
			if err != nil {
				logger.Warn("tool execution failed", "tool", toolName, "duration", time.Since(start), "error", err)
			} else {
				logger.Debug("tool execution completed", "tool", toolName, "duration", time.Since(start))
			}
			return output, err
		}
	}
}
