package quarantine

import (
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
)

const (
	// Sized for the retention horizon of the velocity/duplicate windows;
	// false positives only cost a store round trip.
	expectedEmails    = 1_000_000
	falsePositiveRate = 0.01
)

// seenEmailCache is a bloom filter over normalized emails. A negative
// answer is definitive (the address was never submitted to this
// process), a positive answer means the store must be consulted.
type seenEmailCache struct {
	filter *bloom.BloomFilter
	mu     sync.RWMutex
	hits   atomic.Int64
	misses atomic.Int64
}

func newSeenEmailCache() *seenEmailCache {
	return &seenEmailCache{
		filter: bloom.NewWithEstimates(expectedEmails, falsePositiveRate),
	}
}

// generateKey hashes the email with FNV-1a to keep filter keys short.
func (c *seenEmailCache) generateKey(email string) string {
	h := fnv.New64a()
	h.Write([]byte(email))
	return fmt.Sprintf("%x", h.Sum64())
}

// MaybeSeen reports whether the email may have been submitted before.
func (c *seenEmailCache) MaybeSeen(email string) bool {
	key := c.generateKey(email)

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.filter.TestString(key) {
		c.hits.Add(1)
		return true
	}
	c.misses.Add(1)
	return false
}

// Mark records the email as seen.
func (c *seenEmailCache) Mark(email string) {
	key := c.generateKey(email)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.filter.AddString(key)
}

// Stats returns hit/miss counters, for debugging and tests.
func (c *seenEmailCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
