// Package session provides conversation session storage. Sessions are
// ephemeral by design: durable state lives in the document store, history
// only steers routing within one conversation.
package session

import (
	"fmt"
	"sync"

	"github.com/shelfwise/shelfwise/core"
)

// InMemoryStore keeps sessions in a map guarded by a read/write mutex.
// Reads return clones so callers can never mutate shared history; writes go
// through Append.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
}

// NewInMemoryStore creates an empty session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: map[string]*core.Session{}}
}

// Create registers a new session under the given id. Creating an existing id
// is a conflict.
func (s *InMemoryStore) Create(id string) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[id]; exists {
		return nil, fmt.Errorf("session %s already exists: %w", id, core.ErrConflict)
	}
	sess := core.NewSession(id)
	s.sessions[id] = sess
	return sess.Clone(), nil
}

// Get returns a clone of the session, or ErrNotFound.
func (s *InMemoryStore) Get(id string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, core.ErrNotFound)
	}
	return sess.Clone(), nil
}

// Append adds a message to the stored session.
func (s *InMemoryStore) Append(sessionID string, m core.Message) error {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("session %s: %w", sessionID, core.ErrNotFound)
	}
	sess.Append(m)
	return nil
}
