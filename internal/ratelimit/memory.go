package ratelimit

import (
	"context"
	"sync"
	"time"
)

// entry is one identity's counter. An entry older than its window reads
// as absent; it is only physically removed when eviction runs.
type entry struct {
	count       int
	windowStart time.Time
	window      time.Duration
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.windowStart) >= e.window
}

// MemoryStore is a bounded, process-local counter store. Once the
// identity cap is reached, expired entries are swept and, failing that,
// the oldest entry is evicted, so growth is always bounded.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]*entry
	maxEntries int
	now        func() time.Time
}

// NewMemoryStore creates a store tracking at most maxEntries identities.
func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = 100000
	}
	return &MemoryStore{
		entries:    make(map[string]*entry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Increment implements Store.
func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (int, time.Duration, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		if len(s.entries) >= s.maxEntries {
			s.evictLocked(now)
		}
		e = &entry{}
		s.entries[key] = e
	}
	if !ok || e.expired(now) {
		e.count = 1
		e.windowStart = now
		e.window = window
		return 1, window, nil
	}

	e.count++
	return e.count, e.window - now.Sub(e.windowStart), nil
}

// Peek implements Store.
func (s *MemoryStore) Peek(_ context.Context, key string) (int, time.Duration, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.expired(now) {
		return 0, 0, nil
	}
	return e.count, e.window - now.Sub(e.windowStart), nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// ClearAll implements Store.
func (s *MemoryStore) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry)
	return nil
}

// Len reports the number of physically tracked identities.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// evictLocked frees capacity: first all expired entries, then the entry
// with the oldest window start. Caller holds the lock.
func (s *MemoryStore) evictLocked(now time.Time) {
	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
		}
	}
	if len(s.entries) < s.maxEntries {
		return
	}

	var oldestKey string
	var oldest time.Time
	for key, e := range s.entries {
		if oldestKey == "" || e.windowStart.Before(oldest) {
			oldestKey = key
			oldest = e.windowStart
		}
	}
	if oldestKey != "" {
		delete(s.entries, oldestKey)
	}
}
