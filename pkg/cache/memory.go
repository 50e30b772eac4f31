package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. Entries expire passively: an expired
// entry is dropped when it is next read. There is no size bound.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]*Entry
	now  func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]*Entry),
		now:  time.Now,
	}
}

// SetClock replaces the time source (for testing).
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, key string) (*Entry, error) {
	s.mu.RLock()
	entry, ok := s.data[key]
	now := s.now()
	s.mu.RUnlock()

	if !ok {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	if entry.expiredAt(now) {
		s.mu.Lock()
		// only drop the entry we saw; a concurrent Set may have replaced it
		if s.data[key] == entry {
			delete(s.data, key)
		}
		s.mu.Unlock()
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("memory").Inc()
	return entry, nil
}

// Set implements Store.
func (s *MemoryStore) Set(ctx context.Context, key string, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.expiredAt(s.now()) {
		return nil
	}
	s.data[key] = entry
	CacheEntries.WithLabelValues("memory").Inc()
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Len returns the number of stored entries, including expired ones that have
// not been read since they expired.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
