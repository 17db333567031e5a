package models

import (
	"time"
)

// ShareStats is a daily snapshot of share pipeline counters
type ShareStats struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Date            time.Time `gorm:"uniqueIndex;not null" json:"date"`
	TotalPosts      int       `gorm:"default:0" json:"total_posts"`
	PendingPosts    int       `gorm:"default:0" json:"pending_posts"`
	StartedPosts    int       `gorm:"default:0" json:"started_posts"`
	CompletedPosts  int       `gorm:"default:0" json:"completed_posts"`
	FailedPosts     int       `gorm:"default:0" json:"failed_posts"`
	SharedPosts     int       `gorm:"default:0" json:"shared_posts"`
	UnresolvedError int       `gorm:"default:0" json:"unresolved_errors"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ErrorLog stores failures attributed to a single post
type ErrorLog struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Level      string     `gorm:"size:20;not null;index" json:"level"`   // ERROR, WARN, INFO
	Source     string     `gorm:"size:100;not null;index" json:"source"` // trigger, handler, reconciler
	Platform   string     `gorm:"size:100;index" json:"platform"`
	PostID     *uint      `gorm:"index" json:"post_id"`
	Title      string     `gorm:"size:500;not null" json:"title"`
	Message    string     `gorm:"type:text;not null" json:"message"`
	StackTrace string     `gorm:"type:text" json:"stack_trace"`
	Context    string     `gorm:"type:jsonb" json:"context"`
	Resolved   bool       `gorm:"default:false;index" json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at"`
	CreatedAt  time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Post *Post `gorm:"foreignKey:PostID" json:"post,omitempty"`
}

// MetricsSample is a single counter/gauge observation
type MetricsSample struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	MetricName string    `gorm:"size:100;not null;index" json:"metric_name"`
	MetricType string    `gorm:"size:50;not null" json:"metric_type"` // gauge, counter, histogram
	Value      float64   `gorm:"not null" json:"value"`
	Tags       string    `gorm:"type:jsonb" json:"tags"`
	Timestamp  time.Time `gorm:"not null;index" json:"timestamp"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}
