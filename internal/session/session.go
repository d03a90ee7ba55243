// Package session holds per-conversation message history in memory.
// History is bounded to the most recent exchanges and does not survive a
// process restart.
package session

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/studyware/coursechat/internal/domain"
)

// Store keeps bounded conversation history keyed by an opaque session
// id. Safe for concurrent use.
type Store struct {
	mu         sync.Mutex
	maxHistory int // number of retained user/assistant exchanges
	sessions   map[string][]domain.Message
}

// NewStore creates a session store retaining maxHistory exchanges per
// session. maxHistory of 0 disables history entirely.
func NewStore(maxHistory int) *Store {
	return &Store{
		maxHistory: maxHistory,
		sessions:   map[string][]domain.Message{},
	}
}

// Create allocates a new session and returns its id.
func (s *Store) Create() string {
	id := uuid.New().String()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = nil
	return id
}

// AddExchange appends one user/assistant pair and truncates the history
// to the configured bound, dropping oldest pairs first. A pair is never
// split by truncation.
func (s *Store) AddExchange(id, userMessage, assistantMessage string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.sessions[id],
		domain.Message{Role: "user", Content: userMessage},
		domain.Message{Role: "assistant", Content: assistantMessage},
	)
	if max := s.maxHistory * 2; len(history) > max {
		history = history[len(history)-max:]
	}
	s.sessions[id] = history
}

// History returns a copy of the session's messages, oldest first.
func (s *Store) History(id string) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.sessions[id]
	out := make([]domain.Message, len(history))
	copy(out, history)
	return out
}

// FormatHistory renders the history as prompt context, or empty when
// the session has none.
func (s *Store) FormatHistory(id string) string {
	history := s.History(id)
	if len(history) == 0 {
		return ""
	}

	lines := make([]string, 0, len(history))
	for _, msg := range history {
		role := "User"
		if msg.Role == "assistant" {
			role = "Assistant"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", role, msg.Content))
	}
	return strings.Join(lines, "\n")
}

// Clear discards the session's history. Clearing an unknown id is a
// no-op, not an error.
func (s *Store) Clear(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}
