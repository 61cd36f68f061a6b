package models

import "time"

// Profile is the matrimonial profile attached to a member account.
type Profile struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID        uint       `gorm:"uniqueIndex;not null" json:"user_id"`
	FullName      string     `gorm:"not null" json:"full_name"`
	Gender        string     `gorm:"not null;index" json:"gender"`
	BirthDate     *time.Time `json:"birth_date,omitempty"`
	Religion      string     `gorm:"index;default:''" json:"religion"`
	Community     string     `gorm:"index;default:''" json:"community"`
	MotherTongue  string     `gorm:"default:''" json:"mother_tongue"`
	City          string     `gorm:"index;default:''" json:"city"`
	Country       string     `gorm:"default:''" json:"country"`
	Education     string     `gorm:"default:''" json:"education"`
	Occupation    string     `gorm:"default:''" json:"occupation"`
	MaritalStatus string     `gorm:"default:'never_married'" json:"marital_status"`
	About         string     `gorm:"type:text;default:''" json:"about"`
	PhotoRefs     []string   `gorm:"serializer:json;type:text" json:"photo_refs,omitempty"`
	Visible       bool       `gorm:"default:true;index" json:"visible"`
}

// TableName specifies the table name for GORM.
func (Profile) TableName() string {
	return "profiles"
}
