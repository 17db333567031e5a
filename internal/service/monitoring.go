package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ifuryst/postshare/internal/models"
	"github.com/ifuryst/postshare/pkg/util"
)

// Monitor records error logs and metric samples.
type Monitor interface {
	RecordError(level, source, title, message string, options ...ErrorLogOption) error
	RecordMetric(name, metricType string, value float64, tags map[string]interface{}) error
}

// PostCounter supplies the post counts of the daily snapshot.
type PostCounter interface {
	CountByState(ctx context.Context) (map[models.ShareState]int64, error)
	CountShared(ctx context.Context, since time.Time) (int64, error)
}

type MonitoringService struct {
	db     *gorm.DB
	posts  PostCounter
	logger *zap.Logger
	now    func() time.Time
}

func NewMonitoringService(db *gorm.DB, posts PostCounter, logger *zap.Logger) *MonitoringService {
	return &MonitoringService{
		db:     db,
		posts:  posts,
		logger: logger,
		now:    time.Now,
	}
}

// maxErrorTitleLength matches the size of error_logs.title.
const maxErrorTitleLength = 500

func (m *MonitoringService) RecordError(level, source, title, message string, options ...ErrorLogOption) error {
	errorLog := &models.ErrorLog{
		Level:   level,
		Source:  source,
		Title:   util.Truncate(title, maxErrorTitleLength),
		Message: message,
	}

	for _, option := range options {
		option(errorLog)
	}
	if errorLog.Context == "" {
		errorLog.Context = "{}"
	}

	return m.db.Create(errorLog).Error
}

type ErrorLogOption func(*models.ErrorLog)

func WithPlatform(platformName string) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.Platform = platformName
	}
}

func WithPost(postID uint) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.PostID = &postID
	}
}

func WithStackTrace(stackTrace string) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.StackTrace = stackTrace
	}
}

func WithContext(context map[string]interface{}) ErrorLogOption {
	return func(e *models.ErrorLog) {
		if contextBytes, err := json.Marshal(context); err == nil {
			e.Context = string(contextBytes)
		}
	}
}

func (m *MonitoringService) RecordMetric(name, metricType string, value float64, tags map[string]interface{}) error {
	var tagsJSON string
	if tags != nil {
		if tagsBytes, err := json.Marshal(tags); err == nil {
			tagsJSON = string(tagsBytes)
		}
	}

	metric := &models.MetricsSample{
		MetricName: name,
		MetricType: metricType,
		Value:      value,
		Tags:       tagsJSON,
		Timestamp:  m.now(),
	}

	return m.db.Create(metric).Error
}

// UpdateShareStats refreshes today's snapshot of the share pipeline and
// returns it.
func (m *MonitoringService) UpdateShareStats(ctx context.Context) (*models.ShareStats, error) {
	today := m.now().UTC().Truncate(24 * time.Hour)
	db := m.db.WithContext(ctx)

	byState, err := m.posts.CountByState(ctx)
	if err != nil {
		return nil, err
	}
	var total int64
	for _, count := range byState {
		total += count
	}

	shared, err := m.posts.CountShared(ctx, today)
	if err != nil {
		return nil, err
	}

	var unresolved int64
	if err := db.Model(&models.ErrorLog{}).Where("resolved = ?", false).Count(&unresolved).Error; err != nil {
		return nil, errors.Wrap(err, "count unresolved errors")
	}

	stats := models.ShareStats{
		Date:            today,
		TotalPosts:      int(total),
		PendingPosts:    int(byState[models.ShareStatePending]),
		StartedPosts:    int(byState[models.ShareStateStarted]),
		CompletedPosts:  int(byState[models.ShareStateCompleted]),
		FailedPosts:     int(byState[models.ShareStateFailed]),
		SharedPosts:     int(shared),
		UnresolvedError: int(unresolved),
	}

	err = db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_posts", "pending_posts", "started_posts", "completed_posts",
			"failed_posts", "shared_posts", "unresolved_error", "updated_at",
		}),
	}).Create(&stats).Error
	if err != nil {
		return nil, errors.Wrap(err, "save share stats")
	}
	return &stats, nil
}

func (m *MonitoringService) GetShareStats(ctx context.Context, days int) ([]models.ShareStats, error) {
	var stats []models.ShareStats
	startDate := m.now().UTC().AddDate(0, 0, -days).Truncate(24 * time.Hour)

	err := m.db.WithContext(ctx).
		Where("date >= ?", startDate).
		Order("date desc").
		Find(&stats).Error
	return stats, err
}

func (m *MonitoringService) GetRecentErrors(ctx context.Context, limit int) ([]models.ErrorLog, error) {
	var errorLogs []models.ErrorLog
	err := m.db.WithContext(ctx).Preload("Post").
		Order("created_at desc").
		Limit(limit).
		Find(&errorLogs).Error
	return errorLogs, err
}

// CleanupOldData drops samples, snapshots and resolved errors older than daysToKeep.
func (m *MonitoringService) CleanupOldData(ctx context.Context, daysToKeep int) error {
	cutoffDate := m.now().AddDate(0, 0, -daysToKeep)
	db := m.db.WithContext(ctx)

	if err := db.Where("timestamp < ?", cutoffDate).Delete(&models.MetricsSample{}).Error; err != nil {
		return errors.Wrap(err, "failed to cleanup metrics samples")
	}

	if err := db.Where("date < ?", cutoffDate).Delete(&models.ShareStats{}).Error; err != nil {
		return errors.Wrap(err, "failed to cleanup share stats")
	}

	if err := db.Where("created_at < ? AND resolved = ?", cutoffDate, true).Delete(&models.ErrorLog{}).Error; err != nil {
		return errors.Wrap(err, "failed to cleanup resolved errors")
	}

	return nil
}
