// Package idempotency detects retried submissions carrying the same
// derived key and returns the original outcome instead of creating a
// duplicate lead.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"gitlab.com/funnelworks/api/lead-intake-service/internal/apperrors"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/config"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/model"
	"gitlab.com/funnelworks/api/lead-intake-service/pkg/utils"
)

// Store records first-writer-wins outcomes. PutIfAbsent must be atomic:
// under concurrent calls with the same key exactly one caller creates the
// record, all others read it back.
type Store interface {
	// PutIfAbsent records rec unless a live record already holds its key.
	// It returns the winning record and whether this call created it.
	// An expired record is replaced as if absent.
	PutIfAbsent(ctx context.Context, rec model.IdempotencyRecord) (*model.IdempotencyRecord, bool, error)
	// Find returns the live record for key, or nil when absent/expired.
	Find(ctx context.Context, key string) (*model.IdempotencyRecord, error)
	// Delete removes the record for key. Absent keys are not an error.
	Delete(ctx context.Context, key string) error
}

// Guard derives keys and arbitrates retried requests over a Store.
type Guard struct {
	store     Store
	retention time.Duration
	bucket    time.Duration
}

// NewGuard creates a guard with the configured retention window and
// derivation time bucket.
func NewGuard(store Store, cfg config.IdempotencyConfig) *Guard {
	retention := cfg.Retention
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	bucket := cfg.BucketSize
	if bucket <= 0 {
		bucket = 5 * time.Minute
	}
	return &Guard{store: store, retention: retention, bucket: bucket}
}

// DeriveKey produces the idempotency key for a submission. A
// caller-supplied key wins; otherwise the key is a SHA-256 over stable
// request attributes plus a coarse time bucket, so the same retried
// submission maps to the same key.
func (g *Guard) DeriveKey(sub *model.NormalizedSubmission, reqCtx model.RequestContext, now time.Time) string {
	if sub.IdempotencyKey != "" {
		return sub.IdempotencyKey
	}
	h := sha256.New()
	h.Write([]byte(reqCtx.ClientIP))
	h.Write([]byte{0})
	h.Write([]byte(sub.Email))
	h.Write([]byte{0})
	h.Write([]byte(sub.FunnelID))
	h.Write([]byte{0})
	var bucketBytes [8]byte
	bucket := utils.TimeBucket(now, g.bucket)
	for i := 0; i < 8; i++ {
		bucketBytes[i] = byte(bucket >> (8 * i))
	}
	h.Write(bucketBytes[:])
	return hex.EncodeToString(h.Sum(nil))
}

// Reserve claims key for the given outcome. When this request is the
// first writer it returns created=true and the caller proceeds with side
// effects under the reserved lead ID. When a racing or earlier request
// already holds the key, the recorded outcome is returned with
// created=false and no side effects may run.
func (g *Guard) Reserve(ctx context.Context, key, leadID string, status model.LeadStatus) (*model.IdempotencyRecord, bool, error) {
	now := utils.Now()
	rec := model.IdempotencyRecord{
		Key:       key,
		LeadID:    leadID,
		Status:    status,
		ExpiresAt: now.Add(g.retention),
	}
	winner, created, err := g.store.PutIfAbsent(ctx, rec)
	if err != nil {
		return nil, false, apperrors.NewRetryable(err, "idempotency reserve for key %q", key)
	}
	return winner, created, nil
}

// Release drops the reservation for key so a retry re-executes. Called
// when the side effects reserved under the key failed to commit; leaving
// the record in place would replay a lead that was never persisted.
func (g *Guard) Release(ctx context.Context, key string) error {
	if err := g.store.Delete(ctx, key); err != nil {
		return apperrors.NewRetryable(err, "idempotency release for key %q", key)
	}
	return nil
}

// Lookup returns the recorded outcome for key, or nil when the key has
// not been seen within its retention window.
func (g *Guard) Lookup(ctx context.Context, key string) (*model.IdempotencyRecord, error) {
	rec, err := g.store.Find(ctx, key)
	if err != nil {
		return nil, apperrors.NewRetryable(err, "idempotency lookup for key %q", key)
	}
	return rec, nil
}
