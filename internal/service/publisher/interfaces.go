package publisher

import (
	"context"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/ifuryst/postshare/internal/models"
)

// ErrNotConnected is returned when a user has no usable account on the platform.
var ErrNotConnected = errors.New("account not connected")

// Credentials identify the platform account a post is published as.
type Credentials struct {
	UserID    uint       `json:"user_id"`
	Provider  string     `json:"provider"`
	UID       string     `json:"uid"`
	Token     string     `json:"-"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// CredentialResolver looks up publishing credentials for a post owner.
type CredentialResolver interface {
	ResolveCredentials(ctx context.Context, userID uint) (*Credentials, error)
}

// PublishContent represents the content to be published
type PublishContent struct {
	ID       uint              `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// PublishResult represents the result of a publish operation
type PublishResult struct {
	Success     bool              `json:"success"`
	PublishID   string            `json:"publish_id,omitempty"`
	URL         string            `json:"url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	PublishedAt time.Time         `json:"published_at"`
}

// Publisher sends content to a single third-party platform. Implementations
// must not retry on their own; a failed call is reported to the caller.
type Publisher interface {
	GetPlatformName() string
	Publish(ctx context.Context, content PublishContent, creds Credentials) (*PublishResult, error)
}

// FromPost converts a Post to PublishContent
func FromPost(post *models.Post) PublishContent {
	return PublishContent{
		ID:   post.ID,
		Text: post.Content,
		Metadata: map[string]string{
			"user_id": strconv.FormatUint(uint64(post.UserID), 10),
		},
	}
}
