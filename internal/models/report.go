package models

import "time"

// Report status values, mirrored by the review status below.
const (
	ReportStatusPending   = "pending"
	ReportStatusReviewing = "reviewing"
	ReportStatusResolved  = "resolved"
	ReportStatusRejected  = "rejected"
)

// Review assignment states. Completed is terminal.
const (
	ReviewNotAssigned = "not_assigned"
	ReviewInProgress  = "in_progress"
	ReviewCompleted   = "completed"
)

// Report severity values.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Report is a member abuse report. Rows are created by the member reporting
// flow and mutated only by the review service. At most one admin can hold a
// report in_progress at a time; that claim is enforced by a conditional
// update on review_status, not by an in-process lock.
type Report struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ReporterID     uint   `gorm:"not null;index" json:"reporter_id"`
	ReportedUserID uint   `gorm:"not null;index" json:"reported_user_id"`
	Reason         string `gorm:"not null" json:"reason"`
	Description    string `gorm:"type:text;default:''" json:"description"`
	Severity       string `gorm:"not null;default:'medium'" json:"severity"`
	Priority       int    `gorm:"not null;default:0" json:"priority"`

	Status           string     `gorm:"not null;default:'pending';index" json:"status"`
	ReviewStatus     string     `gorm:"not null;default:'not_assigned';index" json:"review_status"`
	ReviewedByUserID *uint      `gorm:"index" json:"reviewed_by_user_id,omitempty"`
	ReviewedAt       *time.Time `json:"reviewed_at,omitempty"`
	ReviewNotes      string     `gorm:"type:text;default:''" json:"review_notes"`
	EvidenceFileRefs []string   `gorm:"serializer:json;type:text" json:"evidence_file_refs,omitempty"`

	Reporter     *User `gorm:"foreignKey:ReporterID" json:"reporter,omitempty"`
	ReportedUser *User `gorm:"foreignKey:ReportedUserID" json:"reported_user,omitempty"`
	ReviewedBy   *User `gorm:"foreignKey:ReviewedByUserID" json:"reviewed_by,omitempty"`
}

// TableName specifies the table name for GORM.
func (Report) TableName() string {
	return "reports"
}
