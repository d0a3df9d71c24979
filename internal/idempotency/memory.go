package idempotency

import (
	"context"
	"sync"
	"time"

	"gitlab.com/funnelworks/api/lead-intake-service/internal/model"
	"gitlab.com/funnelworks/api/lead-intake-service/pkg/utils"
)

// MemoryStore is a process-local Store. Suitable for single-instance
// deployments and tests; multi-instance deployments use the postgres
// backed store so racing duplicates across processes agree.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]model.IdempotencyRecord
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]model.IdempotencyRecord),
		now:     utils.Now,
	}
}

// PutIfAbsent implements Store.
func (s *MemoryStore) PutIfAbsent(_ context.Context, rec model.IdempotencyRecord) (*model.IdempotencyRecord, bool, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[rec.Key]; ok && !existing.Expired(now) {
		out := existing
		return &out, false, nil
	}
	rec.CreatedAt = now
	s.records[rec.Key] = rec
	out := rec
	return &out, true, nil
}

// Find implements Store.
func (s *MemoryStore) Find(_ context.Context, key string) (*model.IdempotencyRecord, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok || rec.Expired(now) {
		return nil, nil
	}
	out := rec
	return &out, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, key)
	return nil
}

// Sweep drops expired records to bound memory. Called periodically by the
// owner; expiry is otherwise recognized lazily on read.
func (s *MemoryStore) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, rec := range s.records {
		if rec.Expired(now) {
			delete(s.records, key)
			removed++
		}
	}
	return removed
}
