package model

// LeadSubmission is the raw inbound payload of the submission endpoint.
type LeadSubmission struct {
	Name           string            `json:"name,omitempty"`
	Email          string            `json:"email" validate:"required"`
	Phone          string            `json:"phone,omitempty"`
	Message        string            `json:"message,omitempty"`
	Zip            string            `json:"zip,omitempty"`
	FunnelID       string            `json:"funnelId,omitempty"`
	PageURL        string            `json:"pageUrl,omitempty"`
	Referrer       string            `json:"referrer,omitempty"`
	UTM            map[string]string `json:"utm,omitempty"`
	Website        string            `json:"website,omitempty"` // Honeypot: hidden field, always empty for humans
	IdempotencyKey string            `json:"idempotencyKey,omitempty"`
}

// RequestContext carries the network-level attributes of a submission.
type RequestContext struct {
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent"`
	RequestID string `json:"request_id,omitempty"`
}

// NormalizedSubmission is a LeadSubmission after validation: strings
// trimmed, email lower-cased, phone stripped to a digits-aware form.
type NormalizedSubmission struct {
	Name           string
	Email          string
	Phone          string
	Message        string
	Zip            string
	FunnelID       string
	PageURL        string
	Referrer       string
	UTM            map[string]string
	IdempotencyKey string
	HoneypotFilled bool
}

// SubmissionResult is the successful response of the submission endpoint.
type SubmissionResult struct {
	LeadID    string     `json:"leadId"`
	Status    LeadStatus `json:"status"`
	Duplicate bool       `json:"duplicate,omitempty"` // True when replayed via the idempotency guard
}

// AssignmentOutcome reports what the assignment engine decided for a lead.
type AssignmentOutcome struct {
	Assigned bool    `json:"assigned"`
	RuleID   *string `json:"rule_id,omitempty"`
	OrgID    *string `json:"org_id,omitempty"`
	UserID   *string `json:"user_id,omitempty"`
	Reason   string  `json:"reason,omitempty"` // Why the lead went unassigned
}
