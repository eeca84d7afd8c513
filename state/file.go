package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists the document as one JSON file. Writes go to a temporary
// file in the same directory, are fsynced, then renamed over the target, so
// the on-disk document is always either the old or the new complete state.
type FileStore struct {
	mu   sync.RWMutex
	path string
	doc  *Document
}

// OpenFileStore loads the document at path, creating an empty one if the file
// does not exist yet. A present-but-unparsable file is a hard error: there is
// no safe fallback for a corrupt durable store.
func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, doc: NewDocument()}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	if len(raw) == 0 {
		return s, nil
	}

	doc := NewDocument()
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, fmt.Errorf("state file %s is corrupt: %w", path, err)
	}
	doc.normalize()
	s.doc = doc
	return s, nil
}

// View implements Store.
func (s *FileStore) View(fn func(doc *Document) error) error {
	s.mu.RLock()
	snapshot := s.doc.Clone()
	s.mu.RUnlock()
	return fn(snapshot)
}

// Transact implements Store. The new document is durable before Transact
// returns; a write failure leaves the in-memory and on-disk state at the
// prior version and surfaces as a hard error.
func (s *FileStore) Transact(fn func(doc *Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scratch := s.doc.Clone()
	if err := fn(scratch); err != nil {
		return err
	}
	if err := s.flushLocked(scratch); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	s.doc = scratch
	return nil
}

// flushLocked writes doc with the temp-then-rename discipline. Caller holds
// the write lock.
func (s *FileStore) flushLocked(doc *Document) error {
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
