package models

import "time"

// AuditEntry is an append-only record of one Action status change. An
// empty FromStatus marks the creation of the action.
type AuditEntry struct {
	ID         uint         `gorm:"primary_key" json:"id"`
	ActionID   string       `gorm:"index;not null" json:"action_id"`
	FromStatus ActionStatus `json:"from_status"`
	ToStatus   ActionStatus `json:"to_status"`
	Actor      string       `json:"actor"`
	Tick       int64        `json:"tick"`
	Note       string       `gorm:"type:text" json:"note,omitempty"`
	Timestamp  time.Time    `json:"timestamp"`
}

// TableName sets the table name for AuditEntry
func (AuditEntry) TableName() string {
	return "audit_entries"
}
