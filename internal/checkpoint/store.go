// Package checkpoint holds the in-memory watermarks for every entity and
// category during a sync pass.
package checkpoint

import (
	"sync"

	"github.com/livinlefevreloca/p2g/internal/model"
)

// Key addresses one checkpoint axis
type Key struct {
	Entity   model.EntityKey
	Category model.Category
}

// Map is a plain checkpoint mapping used at the persistence boundary
type Map map[Key]model.Checkpoint

// Store is the working copy of checkpoints for one run. Fetch workers read
// through Get while the orchestrator commits; the lock keeps the race
// detector quiet when those overlap.
type Store struct {
	mu    sync.RWMutex
	data  Map
	dirty bool
}

// New returns a store seeded from persisted checkpoints
func New(initial Map) *Store {
	s := &Store{}
	s.Load(initial)
	return s
}

// Load replaces the store contents. Invalid entries (earliest after latest)
// are discarded so those axes bootstrap again.
func (s *Store) Load(m Map) {
	data := make(Map, len(m))
	for k, cp := range m {
		if cp.IsZero() || !cp.Valid() {
			continue
		}
		data[k] = cp
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	s.dirty = false
}

// Get returns the checkpoint for the key, or the zero checkpoint if absent
func (s *Store) Get(entity model.EntityKey, cat model.Category) model.Checkpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data[Key{Entity: entity, Category: cat}]
}

// Commit records a delivered checkpoint. A zero or invalid checkpoint is
// ignored and reported as false.
func (s *Store) Commit(entity model.EntityKey, cat model.Category, cp model.Checkpoint) bool {
	if cp.IsZero() || !cp.Valid() {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := Key{Entity: entity, Category: cat}
	if prev, ok := s.data[k]; ok && prev.Equal(cp) {
		return true
	}
	s.data[k] = cp
	s.dirty = true
	return true
}

// Len returns the number of non-empty checkpoints
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Dirty reports whether any commit changed the store since it was created
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// Snapshot returns a copy of every checkpoint, suitable for a single flush
func (s *Store) Snapshot() Map {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(Map, len(s.data))
	for k, cp := range s.data {
		out[k] = cp
	}
	return out
}
