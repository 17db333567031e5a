package store

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ifuryst/postshare/internal/models"
)

// TriggerLedger remembers which trigger keys were handed to a substrate that
// cannot deduplicate on its own.
type TriggerLedger struct {
	db  *gorm.DB
	now func() time.Time
}

func NewTriggerLedger(db *gorm.DB) *TriggerLedger {
	return &TriggerLedger{db: db, now: time.Now}
}

// Claim reserves key for a send at fireAt. It reports false when the key is
// already held for the same fire time and was touched after staleBefore.
// A different fire time moves the row and is claimed again.
func (l *TriggerLedger) Claim(ctx context.Context, key string, postID uint, fireAt, staleBefore time.Time) (bool, error) {
	row := models.ScheduledTrigger{Key: key, PostID: postID, FireAt: fireAt}
	result := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row)
	if result.Error != nil {
		return false, errors.Wrapf(result.Error, "claim trigger %s", key)
	}
	if result.RowsAffected == 1 {
		return true, nil
	}

	result = l.db.WithContext(ctx).Model(&models.ScheduledTrigger{}).
		Where("key = ? AND (fire_at <> ? OR updated_at < ?)", key, fireAt, staleBefore).
		Updates(map[string]interface{}{
			"post_id":    postID,
			"fire_at":    fireAt,
			"sent_at":    nil,
			"updated_at": l.now(),
		})
	if result.Error != nil {
		return false, errors.Wrapf(result.Error, "reclaim trigger %s", key)
	}
	return result.RowsAffected == 1, nil
}

func (l *TriggerLedger) MarkSent(ctx context.Context, key string) error {
	err := l.db.WithContext(ctx).Model(&models.ScheduledTrigger{}).
		Where("key = ?", key).
		Update("sent_at", l.now()).Error
	return errors.Wrapf(err, "mark trigger %s sent", key)
}

// Release forgets a claim whose send failed so the next attempt can claim it.
func (l *TriggerLedger) Release(ctx context.Context, key string) error {
	err := l.db.WithContext(ctx).Where("key = ?", key).Delete(&models.ScheduledTrigger{}).Error
	return errors.Wrapf(err, "release trigger %s", key)
}
