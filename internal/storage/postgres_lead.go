package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"gitlab.com/funnelworks/api/lead-intake-service/internal/apperrors"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/model"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/observer"
	"gitlab.com/funnelworks/api/lead-intake-service/pkg/logger"
	"gitlab.com/funnelworks/api/lead-intake-service/pkg/utils"
)

// --- Lead Repository Methods ---

// Save persists a new lead record.
func (r *PostgresRepo) Save(ctx context.Context, lead model.Lead) error {
	operation := func() error {
		if err := r.db.WithContext(ctx).Create(&lead).Error; err != nil {
			return checkConstraintViolation(err)
		}
		return nil
	}

	policy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, policy, "SaveLead", operation)
	observer.ObserveDbOperationDuration("save", "lead", time.Since(startTime), err)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to save lead after retries",
			zap.String("lead_id", lead.ID), zap.Error(err))
		return err
	}
	return nil
}

// FindByID fetches a lead by its identifier.
func (r *PostgresRepo) FindByID(ctx context.Context, id string) (*model.Lead, error) {
	var lead model.Lead

	operation := func() error {
		return r.db.WithContext(ctx).Where("id = ?", id).First(&lead).Error
	}

	policy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, policy, "FindLeadByID", operation)
	observer.ObserveDbOperationDuration("find", "lead", time.Since(startTime), err)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: lead %s", apperrors.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: failed to find lead: %v", apperrors.ErrDatabase, err)
	}
	return &lead, nil
}

// CountByEmailSince counts leads sharing the normalized email created at
// or after since.
func (r *PostgresRepo) CountByEmailSince(ctx context.Context, email string, since time.Time) (int64, error) {
	var count int64

	operation := func() error {
		return r.db.WithContext(ctx).Model(&model.Lead{}).
			Where("email = ? AND created_at >= ?", email, since).
			Count(&count).Error
	}

	policy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, policy, "CountLeadsByEmail", operation)
	observer.ObserveDbOperationDuration("count", "lead", time.Since(startTime), err)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to count leads by email: %v", apperrors.ErrDatabase, err)
	}
	return count, nil
}

// FindRecentByEmail returns leads sharing the email created at or after
// since, newest first.
func (r *PostgresRepo) FindRecentByEmail(ctx context.Context, email string, since time.Time) ([]model.Lead, error) {
	var leads []model.Lead

	operation := func() error {
		return r.db.WithContext(ctx).
			Where("email = ? AND created_at >= ?", email, since).
			Order("created_at DESC").
			Find(&leads).Error
	}

	policy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, policy, "FindRecentLeadsByEmail", operation)
	observer.ObserveDbOperationDuration("find", "lead", time.Since(startTime), err)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to find recent leads: %v", apperrors.ErrDatabase, err)
	}
	return leads, nil
}

// ClaimForAssignment stamps the winning rule's assignment onto the lead.
// The update is conditional on status still being new, which is what
// guarantees at most one rule/organization ever claims a given lead even
// under concurrent invocation.
func (r *PostgresRepo) ClaimForAssignment(ctx context.Context, leadID, ruleID, orgID string, userID *string, at time.Time) error {
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Lead{}).
			Where("id = ? AND status = ?", leadID, model.StatusNew).
			Updates(map[string]interface{}{
				"status":          model.StatusAssigned,
				"org_id":          orgID,
				"assigned_user":   userID,
				"matched_rule_id": ruleID,
				"assigned_at":     at,
				"updated_at":      utils.Now(),
			})
		if result.Error != nil {
			return fmt.Errorf("%w: failed to claim lead: %v", apperrors.ErrDatabase, result.Error)
		}
		if result.RowsAffected == 0 {
			return r.classifyConditionalMiss(ctx, leadID)
		}
		return nil
	}

	policy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, policy, "ClaimLeadForAssignment", operation)
	observer.ObserveDbOperationDuration("claim", "lead", time.Since(startTime), err)
	return err
}

// MarkUnassigned conditionally moves a still-new lead to unassigned.
func (r *PostgresRepo) MarkUnassigned(ctx context.Context, leadID string) error {
	return r.UpdateStatus(ctx, leadID, model.StatusNew, model.StatusUnassigned)
}

// UpdateStatus performs an optimistic conditional status write.
func (r *PostgresRepo) UpdateStatus(ctx context.Context, leadID string, from, to model.LeadStatus) error {
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Lead{}).
			Where("id = ? AND status = ?", leadID, from).
			Updates(map[string]interface{}{
				"status":     to,
				"updated_at": utils.Now(),
			})
		if result.Error != nil {
			return fmt.Errorf("%w: failed to update lead status: %v", apperrors.ErrDatabase, result.Error)
		}
		if result.RowsAffected == 0 {
			return r.classifyConditionalMiss(ctx, leadID)
		}
		return nil
	}

	policy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, policy, "UpdateLeadStatus", operation)
	observer.ObserveDbOperationDuration("update", "lead", time.Since(startTime), err)
	return err
}

// ForceStatus overwrites the lead status unconditionally. Administrative
// override path only; callers audit it separately.
func (r *PostgresRepo) ForceStatus(ctx context.Context, leadID string, to model.LeadStatus) error {
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Lead{}).
			Where("id = ?", leadID).
			Updates(map[string]interface{}{
				"status":     to,
				"updated_at": utils.Now(),
			})
		if result.Error != nil {
			return fmt.Errorf("%w: failed to force lead status: %v", apperrors.ErrDatabase, result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: lead %s", apperrors.ErrNotFound, leadID)
		}
		return nil
	}

	policy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, policy, "ForceLeadStatus", operation)
	observer.ObserveDbOperationDuration("update", "lead", time.Since(startTime), err)
	return err
}

// Reassign unconditionally overwrites the assignment and re-stamps the
// status to assigned (manual administrator path).
func (r *PostgresRepo) Reassign(ctx context.Context, leadID, orgID string, ruleID, userID *string, at time.Time) error {
	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Lead{}).
			Where("id = ?", leadID).
			Updates(map[string]interface{}{
				"status":          model.StatusAssigned,
				"org_id":          orgID,
				"assigned_user":   userID,
				"matched_rule_id": ruleID,
				"assigned_at":     at,
				"updated_at":      utils.Now(),
			})
		if result.Error != nil {
			return fmt.Errorf("%w: failed to reassign lead: %v", apperrors.ErrDatabase, result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: lead %s", apperrors.ErrNotFound, leadID)
		}
		return nil
	}

	policy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, policy, "ReassignLead", operation)
	observer.ObserveDbOperationDuration("update", "lead", time.Since(startTime), err)
	return err
}

// AddNote appends one note to the lead's ordered note list.
func (r *PostgresRepo) AddNote(ctx context.Context, note model.LeadNote) error {
	operation := func() error {
		if err := r.db.WithContext(ctx).Create(&note).Error; err != nil {
			return checkConstraintViolation(err)
		}
		return nil
	}

	policy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, policy, "AddLeadNote", operation)
	observer.ObserveDbOperationDuration("save", "lead_note", time.Since(startTime), err)
	return err
}

// NotesByLeadID returns a lead's notes in creation order.
func (r *PostgresRepo) NotesByLeadID(ctx context.Context, leadID string) ([]model.LeadNote, error) {
	var notes []model.LeadNote

	operation := func() error {
		return r.db.WithContext(ctx).
			Where("lead_id = ?", leadID).
			Order("created_at ASC").
			Find(&notes).Error
	}

	policy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, policy, "NotesByLeadID", operation)
	observer.ObserveDbOperationDuration("find", "lead_note", time.Since(startTime), err)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load notes: %v", apperrors.ErrDatabase, err)
	}
	return notes, nil
}

// classifyConditionalMiss distinguishes "lead gone" from "lead already
// claimed/moved" after a conditional update matched zero rows.
func (r *PostgresRepo) classifyConditionalMiss(ctx context.Context, leadID string) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Lead{}).
		Where("id = ?", leadID).Count(&count).Error; err != nil {
		return fmt.Errorf("%w: failed to inspect lead after conditional miss: %v", apperrors.ErrDatabase, err)
	}
	if count == 0 {
		return fmt.Errorf("%w: lead %s", apperrors.ErrNotFound, leadID)
	}
	return fmt.Errorf("%w: lead %s already claimed or moved", apperrors.ErrConflict, leadID)
}
