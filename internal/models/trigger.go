package models

import "time"

// ScheduledTrigger records a deferred request handed to a delivery substrate
// that cannot deduplicate by key on its own.
type ScheduledTrigger struct {
	Key       string     `gorm:"primaryKey;size:255" json:"key"`
	PostID    uint       `gorm:"not null;index" json:"post_id"`
	FireAt    time.Time  `gorm:"not null" json:"fire_at"`
	SentAt    *time.Time `json:"sent_at"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
