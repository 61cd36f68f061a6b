package models

import (
	"encoding/json"
	"time"
)

// Closed taxonomy of audited admin action types.
const (
	ActionUserBanned     = "user_banned"
	ActionUserUnbanned   = "user_unbanned"
	ActionBanExpired     = "ban_expired"
	ActionReportAssigned = "report_assigned"
	ActionReportResolved = "report_resolved"
	ActionReportRejected = "report_rejected"
)

// AdminActionTypes lists every valid action_type value.
var AdminActionTypes = []string{
	ActionUserBanned,
	ActionUserUnbanned,
	ActionBanExpired,
	ActionReportAssigned,
	ActionReportResolved,
	ActionReportRejected,
}

// AdminAction is an append-only audit entry for an administrative action.
// Rows are written once and never updated or deleted; corrections are
// recorded as new subsequent entries. The struct intentionally carries no
// UpdatedAt column.
type AdminAction struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	TargetUserID uint   `gorm:"not null;index" json:"target_user_id"`
	AdminUserID  uint   `gorm:"not null;index" json:"admin_user_id"`
	ActionType   string `gorm:"not null;index" json:"action_type"`
	Title        string `gorm:"not null" json:"title"`
	Description  string `gorm:"type:text;default:''" json:"description"`
	Reason       string `gorm:"type:text;default:''" json:"reason"`

	OldValues json.RawMessage `gorm:"type:text" json:"old_values,omitempty"`
	NewValues json.RawMessage `gorm:"type:text" json:"new_values,omitempty"`
	Details   json.RawMessage `gorm:"type:text" json:"details,omitempty"`

	Status string `gorm:"not null;default:'completed'" json:"status"`
}

// TableName specifies the table name for GORM.
func (AdminAction) TableName() string {
	return "admin_actions"
}

// ValidActionType reports whether t is part of the closed action taxonomy.
func ValidActionType(t string) bool {
	for _, known := range AdminActionTypes {
		if t == known {
			return true
		}
	}
	return false
}
