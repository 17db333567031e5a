package share

import (
	"context"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ifuryst/postshare/internal/models"
	"github.com/ifuryst/postshare/internal/service/publisher"
)

// MinContentLength is the shortest content, in characters, that can be shared.
const MinContentLength = 5

// Reason explains why a post is not eligible for sharing.
type Reason string

const (
	ReasonAlreadyPublished Reason = "already_published"
	ReasonNotRequested     Reason = "not_requested"
	ReasonTooShort         Reason = "too_short"
	ReasonNotConnected     Reason = "not_connected"
)

// Decision is the result of a Guard evaluation.
type Decision struct {
	Eligible    bool
	Reason      Reason
	Credentials *publisher.Credentials
}

func eligible(creds *publisher.Credentials) Decision {
	return Decision{Eligible: true, Credentials: creds}
}

func ineligible(reason Reason) Decision {
	return Decision{Reason: reason}
}

// Guard decides whether a post may be published right now. It has no side
// effects and can be called any number of times.
type Guard struct {
	resolver publisher.CredentialResolver
	logger   *zap.Logger
}

func NewGuard(resolver publisher.CredentialResolver, logger *zap.Logger) *Guard {
	return &Guard{
		resolver: resolver,
		logger:   logger,
	}
}

// Evaluate checks the post snapshot and the owner's credentials.
func (g *Guard) Evaluate(ctx context.Context, post *models.Post) Decision {
	if !post.ShareOnLinkedIn {
		return ineligible(ReasonNotRequested)
	}
	if utf8.RuneCountInString(post.Content) < MinContentLength {
		return ineligible(ReasonTooShort)
	}
	if post.IsShared() {
		return ineligible(ReasonAlreadyPublished)
	}

	creds, err := g.resolver.ResolveCredentials(ctx, post.UserID)
	if err != nil || creds == nil {
		// A failed lookup counts as not connected
		g.logger.Warn("Could not resolve sharing credentials",
			zap.Uint("post_id", post.ID),
			zap.Uint("user_id", post.UserID),
			zap.Error(err))
		return ineligible(ReasonNotConnected)
	}

	return eligible(creds)
}
