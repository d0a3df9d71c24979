package model

import (
	"time"
)

// IdempotencyRecord maps a derived idempotency key to the outcome of the
// first request bearing that key. Racing duplicates read the recorded
// outcome instead of creating a second lead.
type IdempotencyRecord struct {
	Key       string     `json:"key" gorm:"primaryKey;type:text" validate:"required"`
	LeadID    string     `json:"lead_id" gorm:"type:text" validate:"required"`
	Status    LeadStatus `json:"status" gorm:"type:text"`
	ExpiresAt time.Time  `json:"expires_at" gorm:"index"`
	CreatedAt time.Time  `json:"created_at,omitempty" gorm:"autoCreateTime"`
}

// TableName specifies the table name for the IdempotencyRecord model.
func (IdempotencyRecord) TableName() string {
	return "idempotency_records"
}

// Expired reports whether the record has aged out of its retention window.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
