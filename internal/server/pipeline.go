package server

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ifuryst/postshare/internal/config"
	"github.com/ifuryst/postshare/internal/queue"
	"github.com/ifuryst/postshare/internal/service"
	"github.com/ifuryst/postshare/internal/service/share"
	"github.com/ifuryst/postshare/internal/store"
)

// Pipeline holds the share components used by both the HTTP server and the
// queue worker.
type Pipeline struct {
	Posts      *store.PostStore
	Accounts   *store.AccountStore
	Guard      *share.Guard
	Trigger    *share.Trigger
	Handler    *share.Handler
	Publishers *service.PublisherService
	Monitoring *service.MonitoringService
	Shares     *service.ShareService
	PostSvc    *service.PostService
	Reconciler *service.Reconciler
}

func NewPipeline(cfg *config.Config, db *gorm.DB, scheduler queue.Scheduler, logger *zap.Logger) (*Pipeline, error) {
	publishers, err := service.NewPublisherService(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize publishers: %w", err)
	}
	linkedIn, err := publishers.LinkedIn()
	if err != nil {
		return nil, fmt.Errorf("failed to get linkedin publisher: %w", err)
	}

	posts := store.NewPostStore(db)
	accounts := store.NewAccountStore(db)
	monitoring := service.NewMonitoringService(db, posts, logger)

	guard := share.NewGuard(accounts, logger)
	delays := share.NewDelayCalculator(
		config.Duration(cfg.Scheduler.ShareNowDelay),
		config.Duration(cfg.Scheduler.ShareAtDelay),
	)
	trigger := share.NewTrigger(scheduler, delays, logger)
	handler := share.NewHandler(posts, guard, linkedIn, logger,
		share.WithPublishTimeout(config.Duration(cfg.Scheduler.ExecutionTimeout)))

	return &Pipeline{
		Posts:      posts,
		Accounts:   accounts,
		Guard:      guard,
		Trigger:    trigger,
		Handler:    handler,
		Publishers: publishers,
		Monitoring: monitoring,
		Shares:     service.NewShareService(handler, trigger, posts, monitoring, logger),
		PostSvc:    service.NewPostService(posts, guard, trigger, logger),
		Reconciler: service.NewReconciler(&cfg.Scheduler, posts, trigger, logger),
	}, nil
}
