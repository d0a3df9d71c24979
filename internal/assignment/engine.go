// Package assignment matches accepted leads against their funnel's
// routing rules and atomically claims them for the winning organization.
package assignment

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gitlab.com/funnelworks/api/lead-intake-service/internal/apperrors"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/model"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/observer"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/storage"
	"gitlab.com/funnelworks/api/lead-intake-service/pkg/logger"
	"gitlab.com/funnelworks/api/lead-intake-service/pkg/utils"
)

// Reasons recorded on the unassigned queue.
const (
	reasonNoActiveRules  = "no_active_rules"
	reasonNoMatchingRule = "no_matching_rule"
)

// Auditor is the audit-log collaborator. Recording must never fail the
// assignment; implementations log and drop on error.
type Auditor interface {
	Audit(ctx context.Context, event model.AuditEvent)
}

// Engine routes leads through priority-ordered rules. It never loops on
// claim conflicts: a lost claim surfaces as apperrors.ErrConflict and the
// caller decides whether to re-read and retry.
type Engine struct {
	leads      storage.LeadRepo
	rules      storage.RuleRepo
	unassigned storage.UnassignedRepo
	auditor    Auditor
}

// NewEngine creates an assignment engine.
func NewEngine(leads storage.LeadRepo, rules storage.RuleRepo, unassigned storage.UnassignedRepo, auditor Auditor) *Engine {
	return &Engine{
		leads:      leads,
		rules:      rules,
		unassigned: unassigned,
		auditor:    auditor,
	}
}

// Assign matches the lead against its funnel's active rules in priority
// order and claims it for the first rule that matches and has cap
// headroom. Rule counts per funnel are small, so this is a plain linear
// scan. The claim itself is a conditional write that only succeeds while
// the lead's status is still new, which keeps Assign safe to retry and
// guarantees at most one claimant.
func (e *Engine) Assign(ctx context.Context, lead *model.Lead) (model.AssignmentOutcome, error) {
	log := logger.FromContext(ctx).With(
		zap.String("lead_id", lead.ID),
		zap.String("funnel_id", lead.FunnelID),
	)
	startTime := utils.Now()
	defer func() {
		observer.ObserveAssignmentDuration(lead.FunnelID, time.Since(startTime))
	}()

	rules, err := e.rules.ActiveRulesForFunnel(ctx, lead.FunnelID)
	if err != nil {
		return model.AssignmentOutcome{}, err
	}
	if len(rules) == 0 {
		log.Info("No active rules for funnel, marking unassigned")
		return e.markUnassigned(ctx, lead, reasonNoActiveRules)
	}

	now := utils.Now()
	dayKey := utils.DayBucket(now)
	monthKey := utils.MonthBucket(now)

	for i := range rules {
		rule := &rules[i]
		if !rule.Active {
			continue
		}
		if !matchesZip(rule, lead.Zip) {
			continue
		}
		ok, err := e.hasCapHeadroom(ctx, rule, dayKey, monthKey)
		if err != nil {
			return model.AssignmentOutcome{}, err
		}
		if !ok {
			log.Debug("Rule cap reached, skipping",
				zap.String("rule_id", rule.ID), zap.Int("priority", rule.Priority))
			continue
		}
		return e.claim(ctx, lead, rule, now, dayKey, monthKey)
	}

	log.Info("No rule matched lead, marking unassigned")
	return e.markUnassigned(ctx, lead, reasonNoMatchingRule)
}

// Reassign is the manual administrator path: it unconditionally
// overwrites the organization/rule and re-stamps status to assigned.
func (e *Engine) Reassign(ctx context.Context, leadID, orgID string, ruleID, userID *string, actor string) error {
	now := utils.Now()
	if err := e.leads.Reassign(ctx, leadID, orgID, ruleID, userID, now); err != nil {
		return err
	}
	if err := e.unassigned.Remove(ctx, leadID); err != nil {
		// The queue entry is advisory; a failed cleanup does not undo the
		// reassignment.
		logger.FromContext(ctx).Warn("Failed to remove lead from unassigned queue",
			zap.String("lead_id", leadID), zap.Error(err))
	}
	e.auditor.Audit(ctx, model.AuditEvent{
		Action: model.AuditActionReassigned,
		LeadID: leadID,
		RuleID: ruleID,
		OrgID:  &orgID,
		UserID: userID,
		Actor:  actor,
		At:     now,
	})
	return nil
}

// claim performs the atomic conditional claim and records the acceptance
// for cap accounting.
func (e *Engine) claim(ctx context.Context, lead *model.Lead, rule *model.AssignmentRule, now time.Time, dayKey, monthKey string) (model.AssignmentOutcome, error) {
	log := logger.FromContext(ctx)

	err := e.leads.ClaimForAssignment(ctx, lead.ID, rule.ID, rule.OrgID, rule.TargetUser, now)
	if err != nil {
		if apperrors.IsConflictError(err) {
			observer.IncAssignment(lead.FunnelID, "conflict")
			return model.AssignmentOutcome{}, fmt.Errorf("lead %s: %w", lead.ID, err)
		}
		return model.AssignmentOutcome{}, err
	}

	if err := e.rules.RecordAssignment(ctx, model.RuleAssignment{
		RuleID:   rule.ID,
		LeadID:   lead.ID,
		DayKey:   dayKey,
		MonthKey: monthKey,
	}); err != nil {
		// The claim already committed; cap accounting losing one entry is
		// preferable to double-claiming, so log and continue.
		log.Error("Failed to record rule acceptance after claim",
			zap.String("rule_id", rule.ID), zap.String("lead_id", lead.ID), zap.Error(err))
	}

	lead.Status = model.StatusAssigned
	lead.OrgID = &rule.OrgID
	lead.AssignedUser = rule.TargetUser
	lead.MatchedRuleID = &rule.ID
	lead.AssignedAt = &now

	e.auditor.Audit(ctx, model.AuditEvent{
		Action:   model.AuditActionAssigned,
		LeadID:   lead.ID,
		FunnelID: lead.FunnelID,
		RuleID:   &rule.ID,
		OrgID:    &rule.OrgID,
		UserID:   rule.TargetUser,
		At:       now,
	})
	observer.IncAssignment(lead.FunnelID, "matched")
	log.Info("Lead assigned",
		zap.String("rule_id", rule.ID),
		zap.String("org_id", rule.OrgID),
		zap.Int("priority", rule.Priority),
	)

	return model.AssignmentOutcome{
		Assigned: true,
		RuleID:   &rule.ID,
		OrgID:    &rule.OrgID,
		UserID:   rule.TargetUser,
	}, nil
}

// markUnassigned conditionally moves the lead to unassigned and queues it
// for manual triage.
func (e *Engine) markUnassigned(ctx context.Context, lead *model.Lead, reason string) (model.AssignmentOutcome, error) {
	if err := e.leads.MarkUnassigned(ctx, lead.ID); err != nil {
		if apperrors.IsConflictError(err) {
			observer.IncAssignment(lead.FunnelID, "conflict")
			return model.AssignmentOutcome{}, fmt.Errorf("lead %s: %w", lead.ID, err)
		}
		return model.AssignmentOutcome{}, err
	}
	if err := e.unassigned.Enqueue(ctx, model.UnassignedLead{
		ID:       lead.ID,
		LeadID:   lead.ID,
		FunnelID: lead.FunnelID,
		Reason:   reason,
	}); err != nil {
		return model.AssignmentOutcome{}, err
	}

	lead.Status = model.StatusUnassigned
	e.auditor.Audit(ctx, model.AuditEvent{
		Action:   model.AuditActionUnassigned,
		LeadID:   lead.ID,
		FunnelID: lead.FunnelID,
		At:       utils.Now(),
	})
	observer.IncAssignment(lead.FunnelID, "unassigned")

	return model.AssignmentOutcome{Assigned: false, Reason: reason}, nil
}

// hasCapHeadroom checks the rule's daily and monthly acceptance caps.
func (e *Engine) hasCapHeadroom(ctx context.Context, rule *model.AssignmentRule, dayKey, monthKey string) (bool, error) {
	if rule.DailyCap == nil && rule.MonthlyCap == nil {
		return true, nil
	}
	day, month, err := e.rules.CountAssignments(ctx, rule.ID, dayKey, monthKey)
	if err != nil {
		return false, err
	}
	if rule.DailyCap != nil && day >= int64(*rule.DailyCap) {
		return false, nil
	}
	if rule.MonthlyCap != nil && month >= int64(*rule.MonthlyCap) {
		return false, nil
	}
	return true, nil
}

// matchesZip applies the rule's zip patterns. A rule with no patterns has
// no geographic constraint and matches every lead.
func matchesZip(rule *model.AssignmentRule, zip string) bool {
	if len(rule.ZipPatterns) == 0 {
		return true
	}
	return rule.ZipPatterns.Matches(zip)
}
