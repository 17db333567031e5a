package models

import (
	"time"

	"gorm.io/gorm"
)

const ProviderLinkedIn = "linkedin"

// SocialAccount links a user to a connected third-party account.
type SocialAccount struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserID    uint           `gorm:"not null;uniqueIndex:ux_social_user_provider,priority:1" json:"user_id"`
	Provider  string         `gorm:"size:50;not null;uniqueIndex:ux_social_user_provider,priority:2" json:"provider"`
	UID       string         `gorm:"size:255" json:"uid"`
	Token     string         `gorm:"type:text" json:"-"`
	ExpiresAt *time.Time     `json:"expires_at"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
