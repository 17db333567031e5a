package store

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"

	"github.com/ifuryst/postshare/internal/models"
	"github.com/ifuryst/postshare/internal/service/publisher"
)

// AccountStore resolves connected LinkedIn accounts.
type AccountStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewAccountStore(db *gorm.DB) *AccountStore {
	return &AccountStore{db: db, now: time.Now}
}

// ResolveCredentials returns the LinkedIn credentials of a user, or
// publisher.ErrNotConnected when there is no usable account.
func (s *AccountStore) ResolveCredentials(ctx context.Context, userID uint) (*publisher.Credentials, error) {
	var account models.SocialAccount
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, models.ProviderLinkedIn).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(publisher.ErrNotConnected, "user %d", userID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "resolve credentials for user %d", userID)
	}

	if account.UID == "" || account.Token == "" {
		return nil, errors.Wrapf(publisher.ErrNotConnected, "user %d has no token", userID)
	}
	if account.ExpiresAt != nil && !account.ExpiresAt.After(s.now()) {
		return nil, errors.Wrapf(publisher.ErrNotConnected, "token of user %d expired", userID)
	}

	return &publisher.Credentials{
		UserID:    account.UserID,
		Provider:  account.Provider,
		UID:       account.UID,
		Token:     account.Token,
		ExpiresAt: account.ExpiresAt,
	}, nil
}
