package server

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ifuryst/postshare/internal/config"
	"github.com/ifuryst/postshare/internal/queue"
	"github.com/ifuryst/postshare/internal/store"
)

// Consumer delivers due requests from a substrate owned by this process.
type Consumer interface {
	Start(ctx context.Context, dispatch queue.DispatchFunc) error
	Stop()
}

// Queue is the configured delivery substrate.
type Queue struct {
	Scheduler queue.Scheduler
	// Consumer is nil when delivery runs in a separate worker.
	Consumer Consumer
	// SQS is set for the sqs driver; the worker parks messages through it.
	SQS *queue.SQS
}

func NewQueue(ctx context.Context, cfg *config.Config, db *gorm.DB, logger *zap.Logger) (*Queue, error) {
	retryDelay := config.Duration(cfg.Queue.RetryDelay)

	switch cfg.Queue.Driver {
	case config.QueueDriverMemory:
		memory := queue.NewMemory(retryDelay, logger)
		return &Queue{Scheduler: memory, Consumer: memory}, nil

	case config.QueueDriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.Redis.Addr,
			Username: cfg.Queue.Redis.Username,
			Password: cfg.Queue.Redis.Password,
			DB:       cfg.Queue.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		rq := queue.NewRedis(client, queue.RedisOptions{
			PollInterval: config.Duration(cfg.Queue.Redis.PollInterval),
			BatchSize:    cfg.Queue.Redis.BatchSize,
			RetryDelay:   retryDelay,
		}, logger)
		return &Queue{Scheduler: rq, Consumer: rq}, nil

	case config.QueueDriverSQS:
		client, err := NewSQSClient(ctx, cfg.Queue.SQS)
		if err != nil {
			return nil, err
		}
		sq := queue.NewSQS(client, cfg.Queue.SQS.QueueURL, logger)
		deduped := queue.NewDeduplicated(sq, store.NewTriggerLedger(db),
			config.Duration(cfg.Scheduler.ReconcileAfter), logger)
		return &Queue{Scheduler: deduped, SQS: sq}, nil
	}

	return nil, fmt.Errorf("unknown queue driver: %s", cfg.Queue.Driver)
}

// NewSQSClient loads the default AWS config with the configured region and
// optional endpoint override.
func NewSQSClient(ctx context.Context, cfg config.SQSConfig) (*sqs.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}
	}), nil
}
