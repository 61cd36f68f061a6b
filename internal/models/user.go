package models

import "time"

// Account status values.
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusBanned    = "banned"
)

// Ban type values. BanExpiresAt is set iff the type is temporary.
const (
	BanTypePermanent = "permanent"
	BanTypeTemporary = "temporary"
)

// User is a platform member account. Moderation state lives on the user row
// and is mutated only by the ban service, never by profile handlers.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Username string `gorm:"uniqueIndex;not null" json:"username"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Password string `gorm:"not null" json:"-"`
	Phone    string `gorm:"default:''" json:"phone,omitempty"`
	IsAdmin  bool   `gorm:"default:false" json:"is_admin"`

	Status           string     `gorm:"not null;default:'active';index" json:"status"`
	IsBanActive      bool       `gorm:"not null;default:false;index" json:"is_ban_active"`
	BanType          *string    `json:"ban_type,omitempty"`
	BanExpiresAt     *time.Time `gorm:"index" json:"ban_expires_at,omitempty"`
	BlockReason      string     `gorm:"type:text;default:''" json:"block_reason,omitempty"`
	BlockedByUserID  *uint      `json:"blocked_by_user_id,omitempty"`
	BlockedAt        *time.Time `json:"blocked_at,omitempty"`
	EvidenceFileRefs []string   `gorm:"serializer:json;type:text" json:"evidence_file_refs,omitempty"`

	Profile *Profile `gorm:"foreignKey:UserID" json:"profile,omitempty"`
}

// TableName specifies the table name for GORM.
func (User) TableName() string {
	return "users"
}

// Banned reports whether the account currently has an active ban.
func (u *User) Banned() bool {
	return u.IsBanActive && u.Status == StatusBanned
}
