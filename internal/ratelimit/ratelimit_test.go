package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/funnelworks/api/lead-intake-service/internal/apperrors"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/config"
)

func testConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		MaxRequests:        5,
		WindowSeconds:      3600,
		BurstLimit:         3,
		BurstWindowSeconds: 60,
		MaxIdentities:      100,
	}
}

func TestCheckAndIncrement_AllowsUpToLimitThenDenies(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore(100), testConfig())
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		res, err := limiter.CheckAndIncrement(ctx, "203.0.113.1", 5, time.Hour)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d should be allowed", i)
		assert.Equal(t, i, res.Count)
		assert.Zero(t, res.RetryAfter)
	}

	res, err := limiter.CheckAndIncrement(ctx, "203.0.113.1", 5, time.Hour)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 6, res.Count)
	assert.Greater(t, res.RetryAfter, 0)
}

func TestCheckAndIncrement_WindowResets(t *testing.T) {
	store := NewMemoryStore(100)
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }
	limiter := NewLimiter(store, testConfig())
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := limiter.CheckAndIncrement(ctx, "ip-1", 5, time.Hour)
		require.NoError(t, err)
	}
	res, err := limiter.CheckAndIncrement(ctx, "ip-1", 5, time.Hour)
	require.NoError(t, err)
	require.False(t, res.Allowed)

	// The counter starts fresh once the window has fully elapsed.
	current = current.Add(time.Hour)
	res, err = limiter.CheckAndIncrement(ctx, "ip-1", 5, time.Hour)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Count)
}

func TestCheckAndIncrement_IdentitiesAreIndependent(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore(100), testConfig())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := limiter.CheckAndIncrement(ctx, "ip-a", 5, time.Hour)
		require.NoError(t, err)
	}
	denied, err := limiter.CheckAndIncrement(ctx, "ip-a", 5, time.Hour)
	require.NoError(t, err)
	require.False(t, denied.Allowed)

	other, err := limiter.CheckAndIncrement(ctx, "ip-b", 5, time.Hour)
	require.NoError(t, err)
	assert.True(t, other.Allowed)
	assert.Equal(t, 1, other.Count)
}

func TestPeek_DoesNotMutateCounter(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore(100), testConfig())
	ctx := context.Background()

	_, err := limiter.CheckAndIncrement(ctx, "ip-1", 5, time.Hour)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		res, err := limiter.Peek(ctx, "ip-1", 5)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Count)
		assert.True(t, res.Allowed)
	}

	res, err := limiter.CheckAndIncrement(ctx, "ip-1", 5, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)
}

func TestAllow_BurstWindowShortCircuits(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore(100), testConfig())
	ctx := context.Background()

	// Burst limit is 3; the long window would allow 5.
	for i := 0; i < 3; i++ {
		res, err := limiter.Allow(ctx, "ip-1")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := limiter.Allow(ctx, "ip-1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 3, res.Limit, "denial should come from the burst window")
}

func TestAllow_BurstDenialDoesNotConsumeLongWindowQuota(t *testing.T) {
	store := NewMemoryStore(100)
	limiter := NewLimiter(store, testConfig())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := limiter.Allow(ctx, "ip-1")
		require.NoError(t, err)
	}

	count, _, err := store.Peek(ctx, "ip-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count, "burst-denied requests must not advance the long counter")
}

func TestReset_ClearsBothWindows(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore(100), testConfig())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := limiter.Allow(ctx, "ip-1")
		require.NoError(t, err)
	}
	require.NoError(t, limiter.Reset(ctx, "ip-1"))

	res, err := limiter.Allow(ctx, "ip-1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Count)
}

func TestMemoryStore_BoundedEviction(t *testing.T) {
	store := NewMemoryStore(10)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		_, _, err := store.Increment(ctx, fmt.Sprintf("identity-%d", i), time.Hour)
		require.NoError(t, err)
	}

	assert.LessOrEqual(t, store.Len(), 10)
}

func TestMemoryStore_EvictionPrefersExpiredEntries(t *testing.T) {
	store := NewMemoryStore(2)
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }
	ctx := context.Background()

	_, _, err := store.Increment(ctx, "stale", time.Minute)
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)
	_, _, err = store.Increment(ctx, "fresh", time.Hour)
	require.NoError(t, err)
	_, _, err = store.Increment(ctx, "newest", time.Hour)
	require.NoError(t, err)

	// The expired entry is the one swept; the live counter survives.
	count, _, err := store.Peek(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

type failingStore struct{}

func (failingStore) Increment(context.Context, string, time.Duration) (int, time.Duration, error) {
	return 0, 0, fmt.Errorf("store down")
}
func (failingStore) Peek(context.Context, string) (int, time.Duration, error) {
	return 0, 0, fmt.Errorf("store down")
}
func (failingStore) Reset(context.Context, string) error { return fmt.Errorf("store down") }
func (failingStore) ClearAll(context.Context) error      { return fmt.Errorf("store down") }

func TestLimiter_FailsClosedOnStoreError(t *testing.T) {
	limiter := NewLimiter(failingStore{}, testConfig())

	_, err := limiter.Allow(context.Background(), "ip-1")
	require.Error(t, err)
	assert.True(t, apperrors.IsStoreUnavailableError(err))
}
