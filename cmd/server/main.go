package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ifuryst/postshare/internal/config"
	"github.com/ifuryst/postshare/internal/server"
	"github.com/ifuryst/postshare/internal/service"
	"github.com/ifuryst/postshare/internal/store"
	"github.com/ifuryst/postshare/pkg/logger"
)

var (
	configPath  string
	accountName string
	version     = "0.1.0"
	gitCommit   = "unknown"
	buildTime   = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "postshare",
	Short: "PostShare - Scheduled LinkedIn sharing service",
	Long:  `PostShare stores posts and publishes each one to LinkedIn exactly once, right away or at a scheduled time.`,
	RunE:  runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("PostShare %s\n", version)
		fmt.Printf("Git commit: %s\n", gitCommit)
		fmt.Printf("Build time: %s\n", buildTime)
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Requeue overdue posts whose share never started",
	RunE:  runReconcile,
}

var otpSecretCmd = &cobra.Command{
	Use:   "otp-secret",
	Short: "Generate a TOTP secret for the operator endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, url, err := service.GenerateSecret(accountName)
		if err != nil {
			return err
		}
		fmt.Printf("Secret: %s\n", secret)
		fmt.Printf("URL: %s\n", url)
		fmt.Println("Set operator.totp_secret to the secret and add the URL to an authenticator app.")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/server.yaml", "config file path")
	otpSecretCmd.Flags().StringVar(&accountName, "account", "operator", "account name shown in the authenticator app")
	rootCmd.AddCommand(versionCmd, reconcileCmd, otpSecretCmd)
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	appLogger, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, appLogger, nil
}

func runServer(*cobra.Command, []string) error {
	cfg, appLogger, err := loadConfig()
	if err != nil {
		return err
	}
	defer appLogger.Sync()

	appLogger.Info("Starting PostShare server", zap.String("version", version))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create server
	srv, err := server.NewServer(ctx, cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	go func() {
		if err := srv.Start(ctx); err != nil {
			appLogger.Error("Server failed to start", zap.Error(err))
			cancel()
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		appLogger.Info("Shutting down server...")
	case <-ctx.Done():
		appLogger.Info("Server context cancelled")
	}

	// Graceful shutdown
	if err := srv.Shutdown(context.Background()); err != nil {
		appLogger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	appLogger.Info("Server exited")
	return nil
}

func runReconcile(*cobra.Command, []string) error {
	cfg, appLogger, err := loadConfig()
	if err != nil {
		return err
	}
	defer appLogger.Sync()

	if cfg.Queue.Driver == config.QueueDriverMemory {
		return fmt.Errorf("reconcile needs a persistent queue driver, got %q", cfg.Queue.Driver)
	}

	ctx := context.Background()
	db, err := store.NewDatabase(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	q, err := server.NewQueue(ctx, cfg, db, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize queue: %w", err)
	}
	pipeline, err := server.NewPipeline(cfg, db, q.Scheduler, appLogger)
	if err != nil {
		return err
	}

	count, err := pipeline.Reconciler.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("reconcile failed: %w", err)
	}

	appLogger.Info("Reconcile completed", zap.Int("requeued", count))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
