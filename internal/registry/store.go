package registry

import (
	"context"
	"sort"
	"sync"
)

// Store is a durable key→entry backend. Any store providing atomic upserts
// and iteration sorted by command name can back the registry.
type Store interface {
	// Put atomically upserts the entry under its canonical key.
	Put(ctx context.Context, key string, entry *Entry) error
	// Get returns the entry for a key, or nil if absent.
	Get(ctx context.Context, key string) (*Entry, error)
	// List returns all entries sorted by command name. The result is a
	// consistent snapshot: concurrent writes never show through it.
	List(ctx context.Context) ([]*Entry, error)
	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)
	Close() error
}

// MemoryStore is the in-process Store. Listing copies under the read lock,
// so exports see a stable snapshot while ingestion proceeds.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Entry)}
}

func (s *MemoryStore) Put(_ context.Context, key string, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry.clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	return e.clone(), nil
}

func (s *MemoryStore) List(_ context.Context) ([]*Entry, error) {
	s.mu.RLock()
	out := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	return out, nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *MemoryStore) Close() error { return nil }
