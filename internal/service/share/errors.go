package share

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrInvalidSchedulingIntent rejects a post that asks neither to be shared now nor at a time.
	ErrInvalidSchedulingIntent = errors.New("invalid scheduling intent: share now or a share time is required")
	// ErrPostNotFound is returned when a trigger fires for a deleted or unknown post.
	ErrPostNotFound = errors.New("post not found")
	// ErrPublisher marks a failed publish attempt. The attempt is terminal.
	ErrPublisher = errors.New("publisher error")
	// ErrEnqueueFailure marks a deferred request the substrate did not accept.
	ErrEnqueueFailure = errors.New("enqueue failure")
)

// IsTerminal reports whether a delivery substrate must not redeliver after err.
func IsTerminal(err error) bool {
	return errors.IsAny(err, ErrPostNotFound, ErrPublisher)
}
