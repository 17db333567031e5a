// Package store persists posts, connected accounts and the trigger ledger.
package store

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"

	"github.com/ifuryst/postshare/internal/models"
	"github.com/ifuryst/postshare/internal/service/share"
)

// editableColumns are the columns a post update may change. Share markers are
// owned by the execution handler and never overwritten here.
var editableColumns = []string{
	"content",
	"share_now",
	models.ColumnShareAt,
	models.ColumnShareOnLinkedIn,
}

type PostStore struct {
	db *gorm.DB
}

func NewPostStore(db *gorm.DB) *PostStore {
	return &PostStore{db: db}
}

func (s *PostStore) Create(ctx context.Context, post *models.Post) error {
	if err := s.db.WithContext(ctx).Create(post).Error; err != nil {
		return errors.Wrap(err, "create post")
	}
	return nil
}

// Update writes the editable columns of post. A pending tag is only applied
// while no execution attempt has started.
func (s *PostStore) Update(ctx context.Context, post *models.Post) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(post).Select(editableColumns).Updates(post)
		if result.Error != nil {
			return errors.Wrap(result.Error, "update post")
		}
		if result.RowsAffected == 0 {
			return errors.Mark(errors.Newf("post %d", post.ID), share.ErrPostNotFound)
		}

		// An imported publish time is written once and never replaced
		if post.SharedAtLinkedIn != nil {
			err := tx.Model(&models.Post{}).
				Where("id = ? AND shared_at_linkedin IS NULL", post.ID).
				Update(models.ColumnSharedAtLinkedIn, *post.SharedAtLinkedIn).Error
			if err != nil {
				return errors.Wrap(err, "record imported share time")
			}
		}

		if post.ShareState != models.ShareStatePending {
			return nil
		}
		err := tx.Model(&models.Post{}).
			Where("id = ? AND share_start_at IS NULL AND share_complete_at IS NULL", post.ID).
			Update(models.ColumnShareState, models.ShareStatePending).Error
		return errors.Wrap(err, "mark post pending")
	})
}

func (s *PostStore) GetPost(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	err := s.db.WithContext(ctx).First(&post, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Mark(errors.Newf("post %d", id), share.ErrPostNotFound)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get post %d", id)
	}
	return &post, nil
}

// UpdateFields applies a partial update in a single statement.
func (s *PostStore) UpdateFields(ctx context.Context, id uint, fields map[string]interface{}) error {
	err := s.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", id).Updates(fields).Error
	return errors.Wrapf(err, "update post %d", id)
}

// MarkShareStarted claims the single execution attempt for a post. Only one
// caller ever observes true for a given post.
func (s *PostStore) MarkShareStarted(ctx context.Context, id uint, at time.Time) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.Post{}).
		Where("id = ? AND share_start_at IS NULL AND share_complete_at IS NULL", id).
		Updates(map[string]interface{}{
			models.ColumnShareStartAt: at,
			models.ColumnShareState:   models.ShareStateStarted,
		})
	if result.Error != nil {
		return false, errors.Wrapf(result.Error, "mark post %d started", id)
	}
	return result.RowsAffected == 1, nil
}

// ListUnstarted returns posts with a share time before dueBefore whose
// execution attempt never began, oldest first.
func (s *PostStore) ListUnstarted(ctx context.Context, dueBefore time.Time, limit int) ([]models.Post, error) {
	var posts []models.Post
	err := s.db.WithContext(ctx).
		Where("share_at IS NOT NULL AND share_at < ?", dueBefore).
		Where("share_start_at IS NULL AND share_complete_at IS NULL").
		Order("share_at ASC").
		Limit(limit).
		Find(&posts).Error
	if err != nil {
		return nil, errors.Wrap(err, "list unstarted posts")
	}
	return posts, nil
}

type stateCount struct {
	ShareState models.ShareState
	Count      int64
}

// CountByState returns the number of posts per stored share state.
func (s *PostStore) CountByState(ctx context.Context) (map[models.ShareState]int64, error) {
	var rows []stateCount
	err := s.db.WithContext(ctx).Model(&models.Post{}).
		Select("share_state, COUNT(*) AS count").
		Group("share_state").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "count posts by state")
	}

	counts := make(map[models.ShareState]int64, len(rows))
	for _, row := range rows {
		counts[row.ShareState] = row.Count
	}
	return counts, nil
}

// CountShared returns the number of posts published since the given time.
func (s *PostStore) CountShared(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Post{}).
		Where("shared_at_linkedin >= ?", since).
		Count(&count).Error
	return count, errors.Wrap(err, "count shared posts")
}
