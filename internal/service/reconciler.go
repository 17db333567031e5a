package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ifuryst/postshare/internal/config"
	"github.com/ifuryst/postshare/internal/models"
	"github.com/ifuryst/postshare/internal/service/share"
)

// UnstartedLister finds posts whose execution attempt never began.
type UnstartedLister interface {
	ListUnstarted(ctx context.Context, dueBefore time.Time, limit int) ([]models.Post, error)
}

// Reconciler periodically re-enqueues overdue posts whose trigger was lost,
// e.g. after a failed enqueue or a restart of the in-memory queue.
type Reconciler struct {
	config  *config.SchedulerConfig
	posts   UnstartedLister
	trigger *share.Trigger
	logger  *zap.Logger
	cron    *cron.Cron
	now     func() time.Time
}

func NewReconciler(cfg *config.SchedulerConfig, posts UnstartedLister, trigger *share.Trigger, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		config:  cfg,
		posts:   posts,
		trigger: trigger,
		logger:  logger,
		now:     time.Now,
	}
}

func (r *Reconciler) Start(ctx context.Context) error {
	if !r.config.ReconcileEnabled {
		r.logger.Info("Reconciler is disabled")
		return nil
	}

	r.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := r.cron.AddFunc(r.config.ReconcileSpec, func() {
		if ctx.Err() != nil {
			return
		}
		r.runReconcile(ctx)
	})
	if err != nil {
		r.logger.Error("Invalid reconcile spec", zap.String("spec", r.config.ReconcileSpec), zap.Error(err))
		return err
	}

	r.logger.Info("Starting reconciler", zap.String("spec", r.config.ReconcileSpec))
	r.cron.Start()
	return nil
}

func (r *Reconciler) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
	r.logger.Info("Reconciler shutdown completed")
}

func (r *Reconciler) runReconcile(ctx context.Context) {
	start := time.Now()
	count, err := r.Reconcile(ctx)
	duration := time.Since(start)

	if err != nil {
		r.logger.Error("Reconcile failed",
			zap.Error(err),
			zap.Duration("duration", duration))
		return
	}

	r.logger.Info("Reconcile completed",
		zap.Int("requeued", count),
		zap.Duration("duration", duration))
}

// Reconcile enqueues one batch of overdue unstarted posts and returns how
// many were handed to the queue.
func (r *Reconciler) Reconcile(ctx context.Context) (int, error) {
	after := config.Duration(r.config.ReconcileAfter)
	posts, err := r.posts.ListUnstarted(ctx, r.now().Add(-after), r.config.ReconcileBatch)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for i := range posts {
		post := &posts[i]
		if err := r.trigger.Enqueue(ctx, post); err != nil {
			r.logger.Warn("Failed to requeue post", zap.Uint("post_id", post.ID), zap.Error(err))
			continue
		}
		requeued++
	}
	return requeued, nil
}
