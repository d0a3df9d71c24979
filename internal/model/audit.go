package model

import "time"

// Audit actions recorded for assignment and status overrides.
const (
	AuditActionAssigned     = "lead.assigned"
	AuditActionUnassigned   = "lead.unassigned"
	AuditActionReassigned   = "lead.reassigned"
	AuditActionStatusForced = "lead.status_forced"
)

// AuditEvent is handed to the audit-log collaborator for every
// assignment and administrative override. Persistence of the audit trail
// is the collaborator's responsibility, not this service's.
type AuditEvent struct {
	Action   string    `json:"action"`
	LeadID   string    `json:"lead_id"`
	FunnelID string    `json:"funnel_id,omitempty"`
	RuleID   *string   `json:"rule_id,omitempty"`
	OrgID    *string   `json:"org_id,omitempty"`
	UserID   *string   `json:"user_id,omitempty"`
	Status   string    `json:"status,omitempty"`
	Actor    string    `json:"actor,omitempty"` // Administrator performing a manual override
	At       time.Time `json:"at"`
}
