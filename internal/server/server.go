package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ifuryst/postshare/internal/config"
	"github.com/ifuryst/postshare/internal/models"
	"github.com/ifuryst/postshare/internal/service"
	"github.com/ifuryst/postshare/internal/store"
)

// Reports exposes the operator views over the monitoring tables.
type Reports interface {
	GetRecentErrors(ctx context.Context, limit int) ([]models.ErrorLog, error)
	GetShareStats(ctx context.Context, days int) ([]models.ShareStats, error)
}

// PlatformLister lists the registered publishing platforms.
type PlatformLister interface {
	GetAvailablePlatforms() []string
}

type Server struct {
	Config *config.Config
	DB     *gorm.DB
	Router *gin.Engine
	Logger *zap.Logger
	Server *http.Server

	// Services
	Queue        *Queue
	Pipeline     *Pipeline
	StatsUpdater *service.StatsUpdater
	OperatorAuth *service.OperatorAuth

	posts      *service.PostService
	shares     *service.ShareService
	reconciler *service.Reconciler
	reports    Reports
	platforms  PlatformLister
}

func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	// Set gin mode
	gin.SetMode(cfg.Server.Mode)

	// Initialize database
	db, err := store.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize delivery substrate and share pipeline
	q, err := NewQueue(ctx, cfg, db, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}
	pipeline, err := NewPipeline(cfg, db, q.Scheduler, logger)
	if err != nil {
		return nil, err
	}

	srv := &Server{
		Config:       cfg,
		DB:           db,
		Router:       gin.New(),
		Logger:       logger,
		Queue:        q,
		Pipeline:     pipeline,
		StatsUpdater: service.NewStatsUpdater(pipeline.Monitoring, logger, config.Duration(cfg.Scheduler.StatsInterval)),
		OperatorAuth: service.NewOperatorAuth(logger, cfg.Operator.TOTPSecret),
		posts:        pipeline.PostSvc,
		shares:       pipeline.Shares,
		reconciler:   pipeline.Reconciler,
		reports:      pipeline.Monitoring,
		platforms:    pipeline.Publishers,
	}

	// Setup middleware and routes
	srv.setupMiddleware()
	srv.setupRoutes()

	return srv, nil
}

func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.Router.Use(gin.Recovery())

	// Logger middleware
	s.Router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	// CORS middleware
	s.Router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+service.OperatorOTPHeader)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})
}

func (s *Server) setupRoutes() {
	// Health check
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	// API routes
	api := s.Router.Group("/api/v1")
	{
		posts := api.Group("/posts")
		{
			posts.POST("", s.handleCreatePost)
			posts.GET("/:id", s.handleGetPost)
			posts.PUT("/:id", s.handleUpdatePost)
		}
		api.GET("/platforms", s.handleGetPlatforms)
	}

	// Operator routes
	admin := s.Router.Group("/admin", s.OperatorAuth.Middleware())
	{
		admin.POST("/reconcile", s.handleReconcile)
		admin.POST("/posts/:id/execute", s.handleExecuteShare)
		admin.GET("/errors", s.handleGetErrors)
		admin.GET("/stats", s.handleGetStats)
	}
}

func (s *Server) Start(ctx context.Context) error {
	// Start queue consumer
	if s.Queue.Consumer != nil {
		if err := s.Queue.Consumer.Start(ctx, s.shares.Dispatch); err != nil {
			return fmt.Errorf("failed to start queue consumer: %w", err)
		}
	}

	// Start reconciler
	if err := s.reconciler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start reconciler: %w", err)
	}

	s.StatsUpdater.Start(ctx)

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)

	s.Server = &http.Server{
		Addr:    addr,
		Handler: s.Router,
	}

	s.Logger.Info("Starting HTTP server",
		zap.String("addr", addr),
		zap.String("queue", s.Config.Queue.Driver))

	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		return s.Server.ListenAndServeTLS(s.Config.Server.CertFile, s.Config.Server.KeyFile)
	}

	return s.Server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	// Stop background work first
	s.reconciler.Stop()
	s.StatsUpdater.Stop()
	if s.Queue.Consumer != nil {
		s.Queue.Consumer.Stop()
	}

	if s.Server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return s.Server.Shutdown(shutdownCtx)
}
