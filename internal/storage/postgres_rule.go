package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"gitlab.com/funnelworks/api/lead-intake-service/internal/apperrors"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/model"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/observer"
	"gitlab.com/funnelworks/api/lead-intake-service/pkg/utils"
)

// --- Assignment Rule Repository Methods ---

// ActiveRulesForFunnel returns the funnel's active rules sorted by
// ascending priority, ties broken by creation order. Soft-deleted rules
// are excluded by gorm's DeletedAt handling.
func (r *PostgresRepo) ActiveRulesForFunnel(ctx context.Context, funnelID string) ([]model.AssignmentRule, error) {
	var rules []model.AssignmentRule

	operation := func() error {
		return r.db.WithContext(ctx).
			Where("funnel_id = ? AND active = ?", funnelID, true).
			Order("priority ASC, created_at ASC").
			Find(&rules).Error
	}

	policy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, policy, "ActiveRulesForFunnel", operation)
	observer.ObserveDbOperationDuration("find", "rule", time.Since(startTime), err)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load rules for funnel %s: %v", apperrors.ErrDatabase, funnelID, err)
	}
	return rules, nil
}

// FindRuleByID fetches a single rule, soft-deleted excluded.
func (r *PostgresRepo) FindRuleByID(ctx context.Context, id string) (*model.AssignmentRule, error) {
	var rule model.AssignmentRule

	operation := func() error {
		return r.db.WithContext(ctx).Where("id = ?", id).First(&rule).Error
	}

	policy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, policy, "FindRuleByID", operation)
	observer.ObserveDbOperationDuration("find", "rule", time.Since(startTime), err)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: rule %s", apperrors.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: failed to find rule: %v", apperrors.ErrDatabase, err)
	}
	return &rule, nil
}

// CountAssignments returns a rule's acceptance counts for the calendar
// day and month keys. Cap counters are scoped per rule per period.
func (r *PostgresRepo) CountAssignments(ctx context.Context, ruleID, dayKey, monthKey string) (int64, int64, error) {
	var day, month int64

	operation := func() error {
		if err := r.db.WithContext(ctx).Model(&model.RuleAssignment{}).
			Where("rule_id = ? AND day_key = ?", ruleID, dayKey).
			Count(&day).Error; err != nil {
			return err
		}
		return r.db.WithContext(ctx).Model(&model.RuleAssignment{}).
			Where("rule_id = ? AND month_key = ?", ruleID, monthKey).
			Count(&month).Error
	}

	policy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, policy, "CountRuleAssignments", operation)
	observer.ObserveDbOperationDuration("count", "rule_assignment", time.Since(startTime), err)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: failed to count assignments for rule %s: %v", apperrors.ErrDatabase, ruleID, err)
	}
	return day, month, nil
}

// RecordAssignment appends one acceptance under a rule for cap accounting.
func (r *PostgresRepo) RecordAssignment(ctx context.Context, rec model.RuleAssignment) error {
	operation := func() error {
		if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
			return checkConstraintViolation(err)
		}
		return nil
	}

	policy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, policy, "RecordRuleAssignment", operation)
	observer.ObserveDbOperationDuration("save", "rule_assignment", time.Since(startTime), err)
	return err
}

// --- Unassigned Queue Repository Methods ---

// Enqueue records a lead in the unassigned-leads queue for manual triage.
// Enqueueing the same lead twice is a no-op.
func (r *PostgresRepo) Enqueue(ctx context.Context, entry model.UnassignedLead) error {
	operation := func() error {
		err := r.db.WithContext(ctx).Create(&entry).Error
		if err != nil {
			mapped := checkConstraintViolation(err)
			if apperrors.IsDuplicateError(mapped) {
				return nil // Already queued
			}
			return mapped
		}
		return nil
	}

	policy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, policy, "EnqueueUnassignedLead", operation)
	observer.ObserveDbOperationDuration("save", "unassigned_lead", time.Since(startTime), err)
	return err
}

// List pages through the unassigned queue, optionally scoped to a funnel.
func (r *PostgresRepo) List(ctx context.Context, funnelID string, limit, offset int) ([]model.UnassignedLead, error) {
	var entries []model.UnassignedLead

	operation := func() error {
		q := r.db.WithContext(ctx).Order("created_at ASC").Limit(limit).Offset(offset)
		if funnelID != "" {
			q = q.Where("funnel_id = ?", funnelID)
		}
		return q.Find(&entries).Error
	}

	policy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, policy, "ListUnassignedLeads", operation)
	observer.ObserveDbOperationDuration("find", "unassigned_lead", time.Since(startTime), err)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list unassigned leads: %v", apperrors.ErrDatabase, err)
	}
	return entries, nil
}

// Remove drops a lead from the unassigned queue, typically after a manual
// reassignment.
func (r *PostgresRepo) Remove(ctx context.Context, leadID string) error {
	operation := func() error {
		return r.db.WithContext(ctx).
			Where("lead_id = ?", leadID).
			Delete(&model.UnassignedLead{}).Error
	}

	policy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, policy, "RemoveUnassignedLead", operation)
	observer.ObserveDbOperationDuration("delete", "unassigned_lead", time.Since(startTime), err)
	if err != nil {
		return fmt.Errorf("%w: failed to remove unassigned lead: %v", apperrors.ErrDatabase, err)
	}
	return nil
}
