package share

import (
	"github.com/ifuryst/postshare/internal/models"
)

// StateOf derives the lifecycle state of a post from its timestamps.
//
//	none      no scheduling intent
//	pending   intent present, no attempt started
//	started   share_start_at set, attempt in flight (or crashed mid-way)
//	completed share_complete_at set; published or found ineligible
//	failed    share_complete_at set after a publisher error
func StateOf(post *models.Post) models.ShareState {
	switch {
	case post.ShareCompleteAt != nil:
		if post.ShareState == models.ShareStateFailed {
			return models.ShareStateFailed
		}
		return models.ShareStateCompleted
	case post.ShareStartAt != nil:
		return models.ShareStateStarted
	case post.HasSchedulingIntent():
		return models.ShareStatePending
	default:
		return models.ShareStateNone
	}
}

// IsRetriggerable reports whether a post still waits for its first execution
// attempt and may be enqueued again.
func IsRetriggerable(post *models.Post) bool {
	return StateOf(post) == models.ShareStatePending
}
