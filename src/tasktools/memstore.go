package tasktools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory TaskStore. The production task database lives
// outside this subsystem; MemStore exercises the tool contract and backs
// tests and local development.
type MemStore struct {
	mu       sync.Mutex
	tasks    map[string]Task
	sessions map[string]TimerSession
}

// NewMemStore creates an empty in-memory task store.
func NewMemStore() *MemStore {
	return &MemStore{
		tasks:    make(map[string]Task),
		sessions: make(map[string]TimerSession),
	}
}

// QueryTasks returns tasks matching the filter, newest first.
func (s *MemStore) QueryTasks(ctx context.Context, filter TaskFilter) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Task
	for _, task := range s.tasks {
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		if filter.Priority != "" && task.Priority != filter.Priority {
			continue
		}
		if filter.Search != "" {
			needle := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(task.Title), needle) &&
				!strings.Contains(strings.ToLower(task.Notes), needle) {
				continue
			}
		}
		out = append(out, task)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// CreateTask creates a task from the given fields.
func (s *MemStore) CreateTask(ctx context.Context, fields TaskFields) (Task, error) {
	if fields.Title == nil || *fields.Title == "" {
		return Task{}, fmt.Errorf("task title is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	task := Task{
		ID:        uuid.New().String(),
		Title:     *fields.Title,
		Status:    "open",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if fields.Notes != nil {
		task.Notes = *fields.Notes
	}
	if fields.Priority != nil {
		task.Priority = *fields.Priority
	}
	if fields.Status != nil {
		task.Status = *fields.Status
	}
	task.DueDate = fields.DueDate

	s.tasks[task.ID] = task
	return task, nil
}

// UpdateTask applies non-nil fields to an existing task.
func (s *MemStore) UpdateTask(ctx context.Context, id string, fields TaskFields) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[id]
	if !exists {
		return Task{}, fmt.Errorf("task not found: %s", id)
	}
	if fields.Title != nil {
		task.Title = *fields.Title
	}
	if fields.Notes != nil {
		task.Notes = *fields.Notes
	}
	if fields.Status != nil {
		task.Status = *fields.Status
	}
	if fields.Priority != nil {
		task.Priority = *fields.Priority
	}
	if fields.DueDate != nil {
		task.DueDate = fields.DueDate
	}
	task.UpdatedAt = time.Now()
	s.tasks[id] = task
	return task, nil
}

// StartTimer opens a timer session for a task.
func (s *MemStore) StartTimer(ctx context.Context, taskID string) (TimerSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[taskID]; !exists {
		return TimerSession{}, fmt.Errorf("task not found: %s", taskID)
	}
	session := TimerSession{
		ID:        uuid.New().String(),
		TaskID:    taskID,
		StartedAt: time.Now(),
	}
	s.sessions[session.ID] = session
	return session, nil
}

// StopTimer closes a running timer session.
func (s *MemStore) StopTimer(ctx context.Context, sessionID string) (TimerSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return TimerSession{}, fmt.Errorf("timer session not found: %s", sessionID)
	}
	if session.StoppedAt != nil {
		return TimerSession{}, fmt.Errorf("timer session already stopped: %s", sessionID)
	}
	now := time.Now()
	session.StoppedAt = &now
	s.sessions[sessionID] = session
	return session, nil
}

var _ TaskStore = (*MemStore)(nil)

func parseDueDate(value string) (*time.Time, error) {
	due, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("due_date must be RFC 3339: %w", err)
	}
	return &due, nil
}
