package idempotency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/funnelworks/api/lead-intake-service/internal/config"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/model"
)

func testGuard() (*Guard, *MemoryStore) {
	store := NewMemoryStore()
	guard := NewGuard(store, config.IdempotencyConfig{
		Retention:  24 * time.Hour,
		BucketSize: 5 * time.Minute,
	})
	return guard, store
}

func TestDeriveKey_CallerKeyWins(t *testing.T) {
	guard, _ := testGuard()

	sub := &model.NormalizedSubmission{
		Email:          "jane@gmail.com",
		IdempotencyKey: "client-key-123",
	}
	key := guard.DeriveKey(sub, model.RequestContext{ClientIP: "203.0.113.1"}, time.Now())
	assert.Equal(t, "client-key-123", key)
}

func TestDeriveKey_StableWithinBucket(t *testing.T) {
	guard, _ := testGuard()

	sub := &model.NormalizedSubmission{Email: "jane@gmail.com", FunnelID: "funnel-1"}
	reqCtx := model.RequestContext{ClientIP: "203.0.113.1"}
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := guard.DeriveKey(sub, reqCtx, base)
	second := guard.DeriveKey(sub, reqCtx, base.Add(2*time.Minute))
	assert.Equal(t, first, second, "retries within the bucket share a key")

	later := guard.DeriveKey(sub, reqCtx, base.Add(10*time.Minute))
	assert.NotEqual(t, first, later, "a later bucket derives a fresh key")
}

func TestDeriveKey_DistinguishesAttributes(t *testing.T) {
	guard, _ := testGuard()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reqCtx := model.RequestContext{ClientIP: "203.0.113.1"}

	base := guard.DeriveKey(&model.NormalizedSubmission{Email: "jane@gmail.com", FunnelID: "funnel-1"}, reqCtx, now)
	otherEmail := guard.DeriveKey(&model.NormalizedSubmission{Email: "john@gmail.com", FunnelID: "funnel-1"}, reqCtx, now)
	otherFunnel := guard.DeriveKey(&model.NormalizedSubmission{Email: "jane@gmail.com", FunnelID: "funnel-2"}, reqCtx, now)
	otherIP := guard.DeriveKey(&model.NormalizedSubmission{Email: "jane@gmail.com", FunnelID: "funnel-1"}, model.RequestContext{ClientIP: "203.0.113.2"}, now)

	assert.NotEqual(t, base, otherEmail)
	assert.NotEqual(t, base, otherFunnel)
	assert.NotEqual(t, base, otherIP)
}

func TestReserve_FirstWriterWins(t *testing.T) {
	guard, _ := testGuard()
	ctx := context.Background()

	winner, created, err := guard.Reserve(ctx, "key-1", "lead-a", model.StatusNew)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "lead-a", winner.LeadID)

	replay, created, err := guard.Reserve(ctx, "key-1", "lead-b", model.StatusQuarantined)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "lead-a", replay.LeadID, "loser must receive the winner's outcome")
	assert.Equal(t, model.StatusNew, replay.Status)
}

func TestRelease_AllowsReReservation(t *testing.T) {
	guard, _ := testGuard()
	ctx := context.Background()

	_, created, err := guard.Reserve(ctx, "key-1", "lead-a", model.StatusNew)
	require.NoError(t, err)
	require.True(t, created)

	require.NoError(t, guard.Release(ctx, "key-1"))

	// A released key is absent, so the next reservation re-executes.
	fresh, created, err := guard.Reserve(ctx, "key-1", "lead-b", model.StatusNew)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "lead-b", fresh.LeadID)

	rec, err := guard.Lookup(ctx, "key-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "lead-b", rec.LeadID)
}

func TestReserve_ExpiredRecordIsReplaced(t *testing.T) {
	store := NewMemoryStore()
	current := time.Now().UTC()
	store.now = func() time.Time { return current }
	guard := NewGuard(store, config.IdempotencyConfig{Retention: time.Hour, BucketSize: 5 * time.Minute})
	ctx := context.Background()

	_, created, err := guard.Reserve(ctx, "key-1", "lead-old", model.StatusNew)
	require.NoError(t, err)
	require.True(t, created)

	current = current.Add(2 * time.Hour)
	winner, created, err := guard.Reserve(ctx, "key-1", "lead-fresh", model.StatusNew)
	require.NoError(t, err)
	assert.True(t, created, "an expired record no longer guards the key")
	assert.Equal(t, "lead-fresh", winner.LeadID)
}

func TestReserve_ConcurrentCallsProduceOneWinner(t *testing.T) {
	guard, _ := testGuard()
	ctx := context.Background()

	const attempts = 32
	var wg sync.WaitGroup
	createdCount := make(chan bool, attempts)
	leadIDs := make(chan string, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, created, err := guard.Reserve(ctx, "shared-key", uuid.NewString(), model.StatusNew)
			if !assert.NoError(t, err) {
				return
			}
			createdCount <- created
			leadIDs <- rec.LeadID
		}()
	}
	wg.Wait()
	close(createdCount)
	close(leadIDs)

	winners := 0
	for created := range createdCount {
		if created {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "exactly one caller may create the record")

	ids := map[string]bool{}
	for id := range leadIDs {
		ids[id] = true
	}
	assert.Len(t, ids, 1, "every caller observes the same winning lead ID")
}

func TestLookup_MissingAndExpired(t *testing.T) {
	store := NewMemoryStore()
	current := time.Now().UTC()
	store.now = func() time.Time { return current }
	guard := NewGuard(store, config.IdempotencyConfig{Retention: time.Hour, BucketSize: 5 * time.Minute})
	ctx := context.Background()

	rec, err := guard.Lookup(ctx, "never-seen")
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, _, err = guard.Reserve(ctx, "key-1", "lead-a", model.StatusNew)
	require.NoError(t, err)

	rec, err = guard.Lookup(ctx, "key-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "lead-a", rec.LeadID)

	current = current.Add(2 * time.Hour)
	rec, err = guard.Lookup(ctx, "key-1")
	require.NoError(t, err)
	assert.Nil(t, rec, "expired records read as absent")
}

func TestSweep_RemovesOnlyExpiredRecords(t *testing.T) {
	store := NewMemoryStore()
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }
	ctx := context.Background()

	_, _, err := store.PutIfAbsent(ctx, model.IdempotencyRecord{
		Key: "stale", LeadID: "a", Status: model.StatusNew, ExpiresAt: current.Add(time.Minute),
	})
	require.NoError(t, err)
	_, _, err = store.PutIfAbsent(ctx, model.IdempotencyRecord{
		Key: "live", LeadID: "b", Status: model.StatusNew, ExpiresAt: current.Add(time.Hour),
	})
	require.NoError(t, err)

	current = current.Add(10 * time.Minute)
	assert.Equal(t, 1, store.Sweep())

	rec, err := store.Find(ctx, "live")
	require.NoError(t, err)
	assert.NotNil(t, rec)
}
