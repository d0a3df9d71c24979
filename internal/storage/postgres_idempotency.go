package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gitlab.com/funnelworks/api/lead-intake-service/internal/apperrors"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/model"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/observer"
	"gitlab.com/funnelworks/api/lead-intake-service/pkg/utils"
)

// --- Idempotency Record Repository Methods ---

// PutIfAbsent atomically records rec unless a live record already holds
// its key. The write is a single upsert whose update branch only fires
// when the existing record has expired, so under concurrent duplicates
// exactly one request wins and the rest read the winner's outcome back.
func (r *PostgresRepo) PutIfAbsent(ctx context.Context, rec model.IdempotencyRecord) (*model.IdempotencyRecord, bool, error) {
	now := utils.Now()
	rec.CreatedAt = now

	var created bool
	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "key"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"lead_id":    rec.LeadID,
				"status":     rec.Status,
				"expires_at": rec.ExpiresAt,
				"created_at": now,
			}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Lte{Column: clause.Column{Table: "idempotency_records", Name: "expires_at"}, Value: now},
			}},
		}).Create(&rec)
		if result.Error != nil {
			return fmt.Errorf("%w: failed to upsert idempotency record: %v", apperrors.ErrDatabase, result.Error)
		}
		created = result.RowsAffected > 0
		return nil
	}

	policy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, policy, "PutIdempotencyRecord", operation)
	observer.ObserveDbOperationDuration("upsert", "idempotency", time.Since(startTime), err)
	if err != nil {
		return nil, false, err
	}

	if created {
		out := rec
		return &out, true, nil
	}

	// Lost the race: read the winning record back.
	winner, err := r.Find(ctx, rec.Key)
	if err != nil {
		return nil, false, err
	}
	if winner == nil {
		// The winner expired between the upsert and the read. Treat as a
		// conflict the caller can retry at the application layer.
		return nil, false, fmt.Errorf("%w: idempotency record for key %s vanished", apperrors.ErrConflict, rec.Key)
	}
	return winner, false, nil
}

// Find returns the live record for key, or nil when absent or expired.
func (r *PostgresRepo) Find(ctx context.Context, key string) (*model.IdempotencyRecord, error) {
	var rec model.IdempotencyRecord

	operation := func() error {
		return r.db.WithContext(ctx).
			Where("key = ? AND expires_at > ?", key, utils.Now()).
			First(&rec).Error
	}

	policy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, policy, "FindIdempotencyRecord", operation)
	observer.ObserveDbOperationDuration("find", "idempotency", time.Since(startTime), err)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: failed to find idempotency record: %v", apperrors.ErrDatabase, err)
	}
	return &rec, nil
}

// Delete removes the record for key. Used to release a reservation whose
// side effects did not commit, so a retry re-executes instead of
// replaying a lead that was never written.
func (r *PostgresRepo) Delete(ctx context.Context, key string) error {
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("key = ?", key).
			Delete(&model.IdempotencyRecord{})
		if result.Error != nil {
			return fmt.Errorf("%w: failed to delete idempotency record: %v", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	policy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, policy, "DeleteIdempotencyRecord", operation)
	observer.ObserveDbOperationDuration("delete", "idempotency", time.Since(startTime), err)
	return err
}

// PurgeExpired removes records past their retention window. Run
// periodically to bound table growth; expiry is otherwise lazy.
func (r *PostgresRepo) PurgeExpired(ctx context.Context) (int64, error) {
	var removed int64

	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("expires_at <= ?", utils.Now()).
			Delete(&model.IdempotencyRecord{})
		if result.Error != nil {
			return fmt.Errorf("%w: failed to purge idempotency records: %v", apperrors.ErrDatabase, result.Error)
		}
		removed = result.RowsAffected
		return nil
	}

	policy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, policy, "PurgeIdempotencyRecords", operation)
	observer.ObserveDbOperationDuration("delete", "idempotency", time.Since(startTime), err)
	if err != nil {
		return 0, err
	}
	return removed, nil
}
