package model

import (
	"time"

	"gorm.io/gorm"
)

// AssignmentRule is a routing directive scoped to one funnel. Rules are
// created and edited by administrative collaborators; the assignment
// engine only reads them.
type AssignmentRule struct {
	ID          string         `json:"id" gorm:"primaryKey;type:text"`
	FunnelID    string         `json:"funnel_id" gorm:"index;type:text" validate:"required"`
	OrgID       string         `json:"org_id" gorm:"type:text" validate:"required"`
	TargetUser  *string        `json:"target_user_id,omitempty" gorm:"type:text"`
	Priority    int            `json:"priority" gorm:"index"`         // Lower = evaluated first, ties broken by creation order
	ZipPatterns ZipPatterns    `json:"zip_patterns" gorm:"type:text"` // Comma-separated exact/prefix-wildcard patterns
	DailyCap    *int           `json:"daily_cap,omitempty"`
	MonthlyCap  *int           `json:"monthly_cap,omitempty"`
	Active      bool           `json:"active" gorm:"default:true"`
	CreatedAt   time.Time      `json:"created_at,omitempty" gorm:"autoCreateTime"`
	UpdatedAt   time.Time      `json:"updated_at,omitempty" gorm:"autoUpdateTime"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"` // Soft-deleted rules are excluded from matching
}

// TableName specifies the table name for the AssignmentRule model.
func (AssignmentRule) TableName() string {
	return "assignment_rules"
}

// RuleAssignment records one acceptance under a rule, used to enforce
// daily/monthly caps scoped per rule per calendar period.
type RuleAssignment struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	RuleID    string    `json:"rule_id" gorm:"index:idx_rule_day;index:idx_rule_month;type:text" validate:"required"`
	LeadID    string    `json:"lead_id" gorm:"type:text"`
	DayKey    string    `json:"day_key" gorm:"index:idx_rule_day;type:text"`     // UTC calendar day, YYYY-MM-DD
	MonthKey  string    `json:"month_key" gorm:"index:idx_rule_month;type:text"` // UTC calendar month, YYYY-MM
	CreatedAt time.Time `json:"created_at,omitempty" gorm:"autoCreateTime"`
}

// TableName specifies the table name for the RuleAssignment model.
func (RuleAssignment) TableName() string {
	return "rule_assignments"
}
