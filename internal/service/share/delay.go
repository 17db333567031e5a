package share

import (
	"time"
)

const (
	DefaultShareNowDelay = 10 * time.Second
	DefaultShareAtDelay  = 45 * time.Second
)

// DelayCalculator computes when a deferred share request should fire.
type DelayCalculator struct {
	ShareNowDelay time.Duration
	ShareAtDelay  time.Duration
}

func NewDelayCalculator(shareNowDelay, shareAtDelay time.Duration) DelayCalculator {
	return DelayCalculator{
		ShareNowDelay: shareNowDelay,
		ShareAtDelay:  shareAtDelay,
	}
}

// FireTime returns now+ShareNowDelay for share-now posts and
// shareAt+ShareAtDelay for timed posts.
func (c DelayCalculator) FireTime(now time.Time, shareNow *bool, shareAt *time.Time) (time.Time, error) {
	if shareNow != nil && *shareNow {
		return now.Add(c.ShareNowDelay), nil
	}
	if shareAt != nil {
		return shareAt.Add(c.ShareAtDelay), nil
	}
	return time.Time{}, ErrInvalidSchedulingIntent
}
