package toolkit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	res := r.Execute(context.Background(), "nope", nil, nil)
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "tool not found")
	assert.Equal(t, "nope", res.Metadata.ToolName)
	assert.NotEmpty(t, res.UserMessage)
}

func TestExecutePermissionDenied(t *testing.T) {
	r := NewRegistry()
	ran := false
	tool := MustNewFuncTool("create_task", "Create a task", nil, []Permission{PermissionWrite},
		func(ctx context.Context, args json.RawMessage) (any, error) {
			ran = true
			return map[string]any{"id": "1"}, nil
		})
	require.NoError(t, r.RegisterTool(tool))

	res := r.Execute(context.Background(), "create_task", json.RawMessage(`{"title":"X"}`),
		NewExecutionContext(PermissionRead))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "Insufficient permissions")
	assert.False(t, ran, "tool body must not run on permission denial")
}

func TestExecutePermissionGranted(t *testing.T) {
	r := NewRegistry()
	tool := MustNewFuncTool("create_task", "Create a task", nil, []Permission{PermissionWrite},
		func(ctx context.Context, args json.RawMessage) (any, error) {
			return map[string]any{"id": "1"}, nil
		})
	require.NoError(t, r.RegisterTool(tool))

	res := r.Execute(context.Background(), "create_task", json.RawMessage(`{}`),
		NewExecutionContext(PermissionRead, PermissionWrite))
	assert.True(t, res.Success)

	// Nil context bypasses permission checks entirely.
	res = r.Execute(context.Background(), "create_task", json.RawMessage(`{}`), nil)
	assert.True(t, res.Success)
}

func TestExecuteToolError(t *testing.T) {
	r := NewRegistry()
	tool := MustNewFuncTool("get_tasks", "List tasks", nil, nil,
		func(ctx context.Context, args json.RawMessage) (any, error) {
			return nil, errors.New("store offline")
		})
	require.NoError(t, r.RegisterTool(tool))

	res := r.Execute(context.Background(), "get_tasks", nil, nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "store offline")
	assert.GreaterOrEqual(t, res.Metadata.ExecutionTimeMs, int64(0))
}

func TestExecutePanicIsContained(t *testing.T) {
	r := NewRegistry()
	tool := MustNewFuncTool("get_tasks", "List tasks", nil, nil,
		func(ctx context.Context, args json.RawMessage) (any, error) {
			panic("boom")
		})
	require.NoError(t, r.RegisterTool(tool))

	res := r.Execute(context.Background(), "get_tasks", nil, nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "panicked")
}

func TestExecuteRawOutputWrapping(t *testing.T) {
	r := NewRegistry()
	tests := []struct {
		name   string
		output any
		want   any
	}{
		{
			name:   "non-JSON string wrapped",
			output: "plain text result",
			want:   map[string]any{"data": "plain text result"},
		},
		{
			name:   "JSON string decoded",
			output: `{"count":2}`,
			want:   map[string]any{"count": float64(2)},
		},
		{
			name:   "structured output untouched",
			output: map[string]any{"id": "7"},
			want:   map[string]any{"id": "7"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r.Clear()
			tool := MustNewFuncTool("get_tasks", "List tasks", nil, nil,
				func(ctx context.Context, args json.RawMessage) (any, error) {
					return tt.output, nil
				})
			require.NoError(t, r.RegisterTool(tool))

			res := r.Execute(context.Background(), "get_tasks", nil, nil)
			require.True(t, res.Success)
			assert.Equal(t, tt.want, res.Data)
		})
	}
}

func TestMiddlewareOrderAndInvocation(t *testing.T) {
	r := NewRegistry()
	var order []string
	r.RegisterMiddleware(func(toolName string, next ExecFunc) ExecFunc {
		return func(ctx context.Context, args json.RawMessage) (any, error) {
			order = append(order, "outer-before")
			out, err := next(ctx, args)
			order = append(order, "outer-after")
			return out, err
		}
	})
	r.RegisterMiddleware(func(toolName string, next ExecFunc) ExecFunc {
		return func(ctx context.Context, args json.RawMessage) (any, error) {
			order = append(order, "inner-before")
			out, err := next(ctx, args)
			order = append(order, "inner-after")
			return out, err
		}
	})
	tool := MustNewFuncTool("get_tasks", "List tasks", nil, nil,
		func(ctx context.Context, args json.RawMessage) (any, error) {
			order = append(order, "body")
			return map[string]any{}, nil
		})
	require.NoError(t, r.RegisterTool(tool))

	res := r.Execute(context.Background(), "get_tasks", nil, nil)
	require.True(t, res.Success)
	assert.Equal(t, []string{"outer-before", "inner-before", "body", "inner-after", "outer-after"}, order)
}
