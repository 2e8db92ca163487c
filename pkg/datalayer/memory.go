package datalayer

import (
	"context"
	"maps"
	"sync"
	"time"
)

// MemoryStore keeps data-layer entries in process memory
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
	seq     int64
	closed  bool
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Push(_ context.Context, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	s.seq++
	s.entries = append(s.entries, Entry{
		Seq:      s.seq,
		Data:     maps.Clone(data),
		PushedAt: time.Now(),
	})
	return nil
}

func (s *MemoryStore) Flush(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	flushed := 0
	for i := range s.entries {
		if !s.entries[i].Dispatched {
			s.entries[i].Dispatched = true
			flushed++
		}
	}
	return flushed, nil
}

func (s *MemoryStore) Entries(_ context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
