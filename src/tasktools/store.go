// Package tasktools exposes the task/time-tracking persistence layer to the
// agent loop as narrow, schema-described tools. The store itself is an
// external collaborator; this package only defines the capability surface.
package tasktools

import (
	"context"
	"time"
)

// Task is the task record shape crossing the tool boundary.
type Task struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Notes     string     `json:"notes,omitempty"`
	Status    string     `json:"status"`
	Priority  string     `json:"priority,omitempty"`
	DueDate   *time.Time `json:"due_date,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TaskFilter narrows a task query.
type TaskFilter struct {
	Status   string `json:"status,omitempty"`
	Priority string `json:"priority,omitempty"`
	Search   string `json:"search,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// TaskFields carries the writable fields of a task. Nil pointers mean
// "leave unchanged" on update.
type TaskFields struct {
	Title    *string    `json:"title,omitempty"`
	Notes    *string    `json:"notes,omitempty"`
	Status   *string    `json:"status,omitempty"`
	Priority *string    `json:"priority,omitempty"`
	DueDate  *time.Time `json:"due_date,omitempty"`
}

// TimerSession is one tracked stretch of work on a task.
type TimerSession struct {
	ID        string     `json:"id"`
	TaskID    string     `json:"task_id"`
	StartedAt time.Time  `json:"started_at"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
}

// TaskStore is the capability contract with the external task database.
// Reads are idempotent; writes either fully succeed or return an error with
// no partial state visible here.
type TaskStore interface {
	QueryTasks(ctx context.Context, filter TaskFilter) ([]Task, error)
	CreateTask(ctx context.Context, fields TaskFields) (Task, error)
	UpdateTask(ctx context.Context, id string, fields TaskFields) (Task, error)
	StartTimer(ctx context.Context, taskID string) (TimerSession, error)
	StopTimer(ctx context.Context, sessionID string) (TimerSession, error)
}
