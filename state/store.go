// Package state holds the per-path stores the engine correlates events
// against. Every operation locks for the duration of a single key update, so
// operations on the same path are linearizable and no key is ever observed
// half-updated.
package state

import (
	"sync"

	"edrwatch/scanner"
)

// SnapshotStore keeps the most recent snapshot per path.
type SnapshotStore struct {
	mu    sync.Mutex
	items map[string]scanner.FileSnapshot
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{items: make(map[string]scanner.FileSnapshot)}
}

func (s *SnapshotStore) Get(path string) (scanner.FileSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.items[path]
	return snap, ok
}

// Replace stores snap and returns the snapshot it displaced, if any.
func (s *SnapshotStore) Replace(path string, snap scanner.FileSnapshot) (scanner.FileSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.items[path]
	s.items[path] = snap
	return prev, ok
}

func (s *SnapshotStore) Remove(path string) {
	s.mu.Lock()
	delete(s.items, path)
	s.mu.Unlock()
}

func (s *SnapshotStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
