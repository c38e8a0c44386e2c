// Package store holds the per-session chunk store.
package store

import (
	"maps"
	"sync"

	"docmind/internal/domain"
)

// Store is an ordered in-memory sequence of chunks plus the set of their
// sources. Both structures change under the same lock so readers never see a
// source without its chunks.
type Store struct {
	mu      sync.RWMutex
	chunks  []domain.Chunk
	sources map[string]struct{}
	order   []string
}

func New() *Store {
	return &Store{sources: make(map[string]struct{})}
}

// Insert appends chunks in order, labelling chunks without a source as
// domain.UnknownSource.
func (s *Store) Insert(chunks ...domain.Chunk) {
	if len(chunks) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range chunks {
		if ch.Source == "" {
			ch.Source = domain.UnknownSource
		}
		if ch.Extra != nil {
			ch.Extra = maps.Clone(ch.Extra)
		}
		if _, ok := s.sources[ch.Source]; !ok {
			s.sources[ch.Source] = struct{}{}
			s.order = append(s.order, ch.Source)
		}
		s.chunks = append(s.chunks, ch)
	}
}

// Clear empties the store. It is safe to call repeatedly.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
	s.sources = make(map[string]struct{})
	s.order = nil
}

// Sources returns the distinct sources in first-insertion order.
func (s *Store) Sources() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// HasSource reports whether any chunk carries the given source.
func (s *Store) HasSource(source string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sources[source]
	return ok
}

// All returns a copy of every chunk in insertion order.
func (s *Store) All() []domain.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Chunk(nil), s.chunks...)
}

// Len returns the number of stored chunks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Snapshot returns the chunks and the ordered source list as seen under a
// single read lock.
func (s *Store) Snapshot() ([]domain.Chunk, []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Chunk(nil), s.chunks...), append([]string(nil), s.order...)
}
