package storage

import (
	"context"
	"time"

	"gitlab.com/funnelworks/api/lead-intake-service/internal/model"
)

// LeadRepo defines lead storage operations. Status-changing writes are
// conditional on the expected current status (optimistic concurrency);
// only ForceStatus and Reassign overwrite unconditionally.
type LeadRepo interface {
	Save(ctx context.Context, lead model.Lead) error
	FindByID(ctx context.Context, id string) (*model.Lead, error)
	// CountByEmailSince counts submissions from the same normalized email
	// within a rolling window (email velocity check).
	CountByEmailSince(ctx context.Context, email string, since time.Time) (int64, error)
	// FindRecentByEmail returns leads sharing the email created at or
	// after since, newest first (near-duplicate detection).
	FindRecentByEmail(ctx context.Context, email string, since time.Time) ([]model.Lead, error)
	// ClaimForAssignment atomically stamps the assignment onto the lead,
	// succeeding only while its status is still new. Returns
	// apperrors.ErrConflict when another attempt already claimed it.
	ClaimForAssignment(ctx context.Context, leadID, ruleID, orgID string, userID *string, at time.Time) error
	// MarkUnassigned conditionally moves a still-new lead to unassigned.
	MarkUnassigned(ctx context.Context, leadID string) error
	// UpdateStatus performs a conditional status write: it succeeds only
	// while the lead's status equals from.
	UpdateStatus(ctx context.Context, leadID string, from, to model.LeadStatus) error
	// ForceStatus overwrites the status unconditionally. Administrative
	// override only; the caller must audit it.
	ForceStatus(ctx context.Context, leadID string, to model.LeadStatus) error
	// Reassign unconditionally overwrites the assignment and re-stamps
	// status to assigned.
	Reassign(ctx context.Context, leadID, orgID string, ruleID, userID *string, at time.Time) error
	AddNote(ctx context.Context, note model.LeadNote) error
	NotesByLeadID(ctx context.Context, leadID string) ([]model.LeadNote, error)
	Close(ctx context.Context) error
}

// RuleRepo defines assignment-rule storage operations. Rules are read
// only from the engine's perspective; acceptance records implement the
// per-rule per-period caps.
type RuleRepo interface {
	// ActiveRulesForFunnel returns the funnel's active, non-deleted rules
	// sorted by ascending priority, ties broken by creation order.
	ActiveRulesForFunnel(ctx context.Context, funnelID string) ([]model.AssignmentRule, error)
	FindRuleByID(ctx context.Context, id string) (*model.AssignmentRule, error)
	// CountAssignments returns the rule's acceptance counts for the given
	// calendar day and month keys.
	CountAssignments(ctx context.Context, ruleID, dayKey, monthKey string) (day int64, month int64, err error)
	RecordAssignment(ctx context.Context, rec model.RuleAssignment) error
}

// UnassignedRepo defines the manual-triage queue for leads no rule matched.
type UnassignedRepo interface {
	Enqueue(ctx context.Context, entry model.UnassignedLead) error
	List(ctx context.Context, funnelID string, limit, offset int) ([]model.UnassignedLead, error)
	Remove(ctx context.Context, leadID string) error
}

// IdempotencyRepo defines durable idempotency-record operations. It
// satisfies idempotency.Store plus retention maintenance.
type IdempotencyRepo interface {
	PutIfAbsent(ctx context.Context, rec model.IdempotencyRecord) (*model.IdempotencyRecord, bool, error)
	Find(ctx context.Context, key string) (*model.IdempotencyRecord, error)
	// Delete removes the record for key, releasing its reservation.
	Delete(ctx context.Context, key string) error
	// PurgeExpired removes records past their retention window.
	PurgeExpired(ctx context.Context) (int64, error)
}
