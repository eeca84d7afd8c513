package state

import "sync"

// InMemoryStore is a volatile Store for tests and ephemeral runs. Semantics
// match FileStore minus durability.
type InMemoryStore struct {
	mu  sync.RWMutex
	doc *Document
}

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{doc: NewDocument()}
}

// View implements Store.
func (s *InMemoryStore) View(fn func(doc *Document) error) error {
	s.mu.RLock()
	snapshot := s.doc.Clone()
	s.mu.RUnlock()
	return fn(snapshot)
}

// Transact implements Store.
func (s *InMemoryStore) Transact(fn func(doc *Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	scratch := s.doc.Clone()
	if err := fn(scratch); err != nil {
		return err
	}
	s.doc = scratch
	return nil
}
