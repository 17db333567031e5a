package models

import (
	"time"

	"gorm.io/gorm"
)

// ShareState is the explicit lifecycle tag stored next to the raw share timestamps.
type ShareState string

const (
	ShareStateNone      ShareState = "none"
	ShareStatePending   ShareState = "pending"
	ShareStateStarted   ShareState = "started"
	ShareStateCompleted ShareState = "completed"
	ShareStateFailed    ShareState = "failed"
)

// Post is a piece of content scheduled to be shared once on LinkedIn.
type Post struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	UserID  uint   `gorm:"not null;index" json:"user_id"`
	Content string `gorm:"type:text;not null" json:"content"`

	ShareNow        *bool      `json:"share_now"`
	ShareAt         *time.Time `gorm:"index" json:"share_at"`
	ShareStartAt    *time.Time `json:"share_start_at"`
	ShareCompleteAt *time.Time `json:"share_complete_at"`
	ShareState      ShareState `gorm:"size:20;default:'none';index" json:"share_state"`
	ShareError      string     `gorm:"type:text" json:"share_error,omitempty"`

	ShareOnLinkedIn  bool       `gorm:"default:false" json:"share_on_linkedin"`
	SharedAtLinkedIn *time.Time `json:"shared_at_linkedin"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Column names used by partial updates.
const (
	ColumnShareAt          = "share_at"
	ColumnShareStartAt     = "share_start_at"
	ColumnShareCompleteAt  = "share_complete_at"
	ColumnShareState       = "share_state"
	ColumnShareError       = "share_error"
	ColumnShareOnLinkedIn  = "share_on_linkedin"
	ColumnSharedAtLinkedIn = "shared_at_linkedin"
)

// HasSchedulingIntent reports whether the post asks to be shared now or at a given time.
func (p *Post) HasSchedulingIntent() bool {
	return (p.ShareNow != nil && *p.ShareNow) || p.ShareAt != nil
}

// IsShared reports whether the post has already been published on LinkedIn.
func (p *Post) IsShared() bool {
	return p.SharedAtLinkedIn != nil
}
