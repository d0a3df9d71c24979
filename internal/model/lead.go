package model

import (
	"time"

	"gorm.io/datatypes"
)

// Lead represents a captured form submission in the PostgreSQL database.
type Lead struct {
	ID            string         `json:"id" gorm:"primaryKey;type:text"`
	FunnelID      string         `json:"funnel_id" gorm:"index;type:text" validate:"required"`
	Name          string         `json:"name,omitempty" gorm:"type:text"`
	Email         string         `json:"email" gorm:"index;type:text" validate:"required,email"`
	Phone         string         `json:"phone,omitempty" gorm:"type:text"`
	Message       string         `json:"message,omitempty" gorm:"type:text"`
	Zip           string         `json:"zip,omitempty" gorm:"type:text"` // Region/zip used for rule matching
	PageURL       string         `json:"page_url,omitempty" gorm:"type:text"`
	Referrer      string         `json:"referrer,omitempty" gorm:"type:text"`
	UTM           datatypes.JSON `json:"utm,omitempty" gorm:"type:jsonb"`             // utm_source, utm_medium, ...
	OrgID         *string        `json:"org_id,omitempty" gorm:"index;type:text"`     // Set once the lead passes through assigned
	AssignedUser  *string        `json:"assigned_user_id,omitempty" gorm:"type:text"` // Optional target user of the matched rule
	MatchedRuleID *string        `json:"matched_rule_id,omitempty" gorm:"type:text"`  // Rule that claimed the lead, for audit
	Status        LeadStatus     `json:"status" gorm:"index;type:text;default:new"`
	SpamScore     float64        `json:"spam_score" gorm:"type:double precision"`
	SpamReasons   datatypes.JSON `json:"spam_reasons,omitempty" gorm:"type:jsonb"` // Ordered reason codes from classification
	ClientIP      string         `json:"client_ip,omitempty" gorm:"type:text"`
	UserAgent     string         `json:"user_agent,omitempty" gorm:"type:text"`
	AssignedAt    *time.Time     `json:"assigned_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at,omitempty" gorm:"autoCreateTime;index"`
	UpdatedAt     time.Time      `json:"updated_at,omitempty" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the Lead model.
func (Lead) TableName() string {
	return "leads"
}

// LeadNote is one entry of a lead's ordered note list. Notes are append
// only; the core never rewrites or deletes them.
type LeadNote struct {
	ID        string    `json:"id" gorm:"primaryKey;type:text"`
	LeadID    string    `json:"lead_id" gorm:"index;type:text" validate:"required"`
	Author    string    `json:"author,omitempty" gorm:"type:text"`
	Body      string    `json:"body" gorm:"type:text" validate:"required"`
	CreatedAt time.Time `json:"created_at,omitempty" gorm:"autoCreateTime;index"`
}

// TableName specifies the table name for the LeadNote model.
func (LeadNote) TableName() string {
	return "lead_notes"
}

// UnassignedLead is a triage-queue entry for a lead no routing rule matched.
type UnassignedLead struct {
	ID        string    `json:"id" gorm:"primaryKey;type:text"`
	LeadID    string    `json:"lead_id" gorm:"uniqueIndex;type:text" validate:"required"`
	FunnelID  string    `json:"funnel_id" gorm:"index;type:text"`
	Reason    string    `json:"reason,omitempty" gorm:"type:text"` // e.g. no_active_rules, no_matching_rule
	CreatedAt time.Time `json:"created_at,omitempty" gorm:"autoCreateTime"`
}

// TableName specifies the table name for the UnassignedLead model.
func (UnassignedLead) TableName() string {
	return "unassigned_leads"
}
