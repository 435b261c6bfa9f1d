package tasktools

import (
	"context"
	"encoding/json"
	"fmt"

	jsonschema "github.com/swaggest/jsonschema-go"

	"github.com/taskpilot/taskpilot/src/toolkit"
)

var taskStatuses = []string{"open", "in_progress", "done", "cancelled"}
var taskPriorities = []string{"low", "medium", "high"}

// RegisterAll registers the five task-boundary tools against the store.
func RegisterAll(registry *toolkit.Registry, store TaskStore) error {
	tools := []*toolkit.FuncTool{
		newGetTasksTool(store),
		newCreateTaskTool(store),
		newUpdateTaskTool(store),
		newStartTimerTool(store),
		newStopTimerTool(store),
	}
	for _, tool := range tools {
		if err := registry.RegisterTool(tool); err != nil {
			return fmt.Errorf("register %s: %w", tool.Name, err)
		}
	}
	return nil
}

func newGetTasksTool(store TaskStore) *toolkit.FuncTool {
	schema := toolkit.ObjectSchema(map[string]*jsonschema.Schema{
		"status":   toolkit.StringEnumSchema("Filter by task status", taskStatuses),
		"priority": toolkit.StringEnumSchema("Filter by priority", taskPriorities),
		"search":   toolkit.StringSchema("Free-text match on title and notes"),
		"limit":    toolkit.IntegerSchema("Maximum number of tasks to return"),
	}, nil)
	return toolkit.MustNewFuncTool("get_tasks",
		"List tasks, optionally filtered by status, priority, or search text.",
		schema, []toolkit.Permission{toolkit.PermissionRead},
		func(ctx context.Context, args json.RawMessage) (any, error) {
			var filter TaskFilter
			if len(args) > 0 {
				if err := json.Unmarshal(args, &filter); err != nil {
					return nil, fmt.Errorf("invalid filter: %w", err)
				}
			}
			tasks, err := store.QueryTasks(ctx, filter)
			if err != nil {
				return nil, err
			}
			return map[string]any{"tasks": tasks, "count": len(tasks)}, nil
		})
}

type createTaskArgs struct {
	Title    string `json:"title"`
	Notes    string `json:"notes,omitempty"`
	Priority string `json:"priority,omitempty"`
	DueDate  string `json:"due_date,omitempty"`
}

func newCreateTaskTool(store TaskStore) *toolkit.FuncTool {
	schema := toolkit.ObjectSchema(map[string]*jsonschema.Schema{
		"title":    toolkit.StringSchema("Task title"),
		"notes":    toolkit.StringSchema("Free-form notes"),
		"priority": toolkit.StringEnumSchema("Task priority", taskPriorities),
		"due_date": toolkit.StringSchema("Due date in RFC 3339 format"),
	}, []string{"title"})
	return toolkit.MustNewFuncTool("create_task",
		"Create a new task with a title and optional notes, priority, and due date.",
		schema, []toolkit.Permission{toolkit.PermissionWrite},
		func(ctx context.Context, args json.RawMessage) (any, error) {
			var in createTaskArgs
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
			if in.Title == "" {
				return nil, fmt.Errorf("title is required")
			}
			fields := TaskFields{Title: &in.Title}
			if in.Notes != "" {
				fields.Notes = &in.Notes
			}
			if in.Priority != "" {
				fields.Priority = &in.Priority
			}
			if in.DueDate != "" {
				due, err := parseDueDate(in.DueDate)
				if err != nil {
					return nil, err
				}
				fields.DueDate = due
			}
			task, err := store.CreateTask(ctx, fields)
			if err != nil {
				return nil, err
			}
			return map[string]any{"task": task}, nil
		})
}

type updateTaskArgs struct {
	ID       string  `json:"id"`
	Title    *string `json:"title,omitempty"`
	Notes    *string `json:"notes,omitempty"`
	Status   *string `json:"status,omitempty"`
	Priority *string `json:"priority,omitempty"`
	DueDate  *string `json:"due_date,omitempty"`
}

func newUpdateTaskTool(store TaskStore) *toolkit.FuncTool {
	schema := toolkit.ObjectSchema(map[string]*jsonschema.Schema{
		"id":       toolkit.StringSchema("ID of the task to update"),
		"title":    toolkit.StringSchema("New title"),
		"notes":    toolkit.StringSchema("New notes"),
		"status":   toolkit.StringEnumSchema("New status", taskStatuses),
		"priority": toolkit.StringEnumSchema("New priority", taskPriorities),
		"due_date": toolkit.StringSchema("New due date in RFC 3339 format"),
	}, []string{"id"})
	return toolkit.MustNewFuncTool("update_task",
		"Update fields of an existing task by ID.",
		schema, []toolkit.Permission{toolkit.PermissionWrite},
		func(ctx context.Context, args json.RawMessage) (any, error) {
			var in updateTaskArgs
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
			if in.ID == "" {
				return nil, fmt.Errorf("id is required")
			}
			fields := TaskFields{
				Title:    in.Title,
				Notes:    in.Notes,
				Status:   in.Status,
				Priority: in.Priority,
			}
			if in.DueDate != nil {
				due, err := parseDueDate(*in.DueDate)
				if err != nil {
					return nil, err
				}
				fields.DueDate = due
			}
			task, err := store.UpdateTask(ctx, in.ID, fields)
			if err != nil {
				return nil, err
			}
			return map[string]any{"task": task}, nil
		})
}

func newStartTimerTool(store TaskStore) *toolkit.FuncTool {
	schema := toolkit.ObjectSchema(map[string]*jsonschema.Schema{
		"task_id": toolkit.StringSchema("ID of the task to track time for"),
	}, []string{"task_id"})
	return toolkit.MustNewFuncTool("start_timer",
		"Start a time-tracking session on a task.",
		schema, []toolkit.Permission{toolkit.PermissionWrite},
		func(ctx context.Context, args json.RawMessage) (any, error) {
			var in struct {
				TaskID string `json:"task_id"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
			if in.TaskID == "" {
				return nil, fmt.Errorf("task_id is required")
			}
			session, err := store.StartTimer(ctx, in.TaskID)
			if err != nil {
				return nil, err
			}
			return map[string]any{"session": session}, nil
		})
}

func newStopTimerTool(store TaskStore) *toolkit.FuncTool {
	schema := toolkit.ObjectSchema(map[string]*jsonschema.Schema{
		"session_id": toolkit.StringSchema("ID of the timer session to stop"),
	}, []string{"session_id"})
	return toolkit.MustNewFuncTool("stop_timer",
		"Stop a running time-tracking session.",
		schema, []toolkit.Permission{toolkit.PermissionWrite},
		func(ctx context.Context, args json.RawMessage) (any, error) {
			var in struct {
				SessionID string `json:"session_id"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
			if in.SessionID == "" {
				return nil, fmt.Errorf("session_id is required")
			}
			session, err := store.StopTimer(ctx, in.SessionID)
			if err != nil {
				return nil, err
			}
			return map[string]any{"session": session}, nil
		})
}
