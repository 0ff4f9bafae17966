package mapping

import (
	"context"
	"sync"
)

// StaticSource serves mappings from an in-memory table. Used for
// config-declared mappings and in tests.
type StaticSource struct {
	mu       sync.RWMutex
	mappings map[Key]Mapping
}

// NewStaticSource builds a source from a fixed table. The map is copied.
func NewStaticSource(mappings map[Key]Mapping) *StaticSource {
	table := make(map[Key]Mapping, len(mappings))
	for k, v := range mappings {
		table[k] = v
	}
	return &StaticSource{mappings: table}
}

func (s *StaticSource) FetchMapping(_ context.Context, key Key) (Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mappings[key]
	if !ok {
		return Mapping{}, ErrNoMapping
	}
	return m, nil
}

// Put inserts or replaces one mapping.
func (s *StaticSource) Put(key Key, m Mapping) {
	s.mu.Lock()
	s.mappings[key] = m
	s.mu.Unlock()
}
