package orchestrator

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Turn roles within a session transcript.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Turn is one entry in a session's transcript.
type Turn struct {
	Role      string
	Content   string
	ToolName  string
	CreatedAt time.Time
}

// session holds one conversation's state. Turns for the same session run
// strictly in submission order: slot is a capacity-1 channel acquired for
// the whole request cycle, so a second message cannot start until the first
// finishes its tool round.
type session struct {
	id        string
	slot      chan struct{}
	createdAt time.Time

	mu       sync.Mutex
	turns    []Turn
	maxTurns int
}

func newSession(id string, maxTurns int) *session {
	return &session{
		id:        id,
		slot:      make(chan struct{}, 1),
		createdAt: time.Now(),
		maxTurns:  maxTurns,
	}
}

// acquire claims the session's processing slot, or gives up when the caller
// cancels while waiting.
func (s *session) acquire(ctx context.Context) error {
	select {
	case s.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *session) release() {
	<-s.slot
}

// append adds turns, trimming the oldest once the cap is exceeded.
func (s *session) append(turns ...Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turns...)
	if len(s.turns) > s.maxTurns {
		s.turns = s.turns[len(s.turns)-s.maxTurns:]
	}
}

func (s *session) history() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

func (s *session) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
}

// transcript renders the history for a prompt, newest last.
func transcript(turns []Turn) string {
	var b strings.Builder
	for _, turn := range turns {
		switch turn.Role {
		case RoleUser:
			b.WriteString("User: ")
		case RoleAssistant:
			b.WriteString("Assistant: ")
		case RoleTool:
			b.WriteString("Tool " + turn.ToolName + " result: ")
		}
		b.WriteString(turn.Content)
		b.WriteString("\n")
	}
	return b.String()
}
