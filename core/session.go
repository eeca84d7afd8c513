package core

import (
	"sync"
	"time"
)

// Message is one turn in a conversation session.
type Message struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is a per-conversation message history keyed by session id. The
// orchestrator reads and appends it; ownership and persistence belong to the
// calling layer.
//
// Contract:
//   - Append updates the Updated timestamp
//   - Messages returns a defensive copy
//   - Clone deep-copies for safe divergence
//
// Concurrent messages within one session are single-writer by assumption:
// a lost append under racing writers is an accepted limitation, never a
// corrupted history.
type Session struct {
	ID       string    `json:"id"`
	Messages []Message `json:"messages"`
	Created  time.Time `json:"created"`
	Updated  time.Time `json:"updated"`
	mu       sync.RWMutex
}

// NewSession creates an empty session with the given id.
func NewSession(id string) *Session {
	now := time.Now().UTC()
	return &Session{ID: id, Messages: []Message{}, Created: now, Updated: now}
}

// Append adds a message to the history.
func (s *Session) Append(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = append(s.Messages, m)
	s.Updated = time.Now().UTC()
}

// History returns a defensive copy of the message slice.
func (s *Session) History() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.Messages))
	copy(out, s.Messages)
	return out
}

// RecentTexts returns the text of up to n most recent messages, oldest first.
// The intent router scans these for identifiers carried over from earlier
// turns.
func (s *Session) RecentTexts(n int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := len(s.Messages) - n
	if start < 0 {
		start = 0
	}
	out := make([]string, 0, len(s.Messages)-start)
	for _, m := range s.Messages[start:] {
		out = append(out, m.Text)
	}
	return out
}

// Clone returns a deep copy safe for independent mutation.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{ID: s.ID, Messages: make([]Message, len(s.Messages)), Created: s.Created, Updated: s.Updated}
	copy(clone.Messages, s.Messages)
	return clone
}

// SessionStore persists sessions and their message history.
type SessionStore interface {
	Create(id string) (*Session, error)
	Get(id string) (*Session, error)
	Append(sessionID string, m Message) error
}
