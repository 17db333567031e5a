// Command worker is the Lambda consumer of the SQS share queue.
//
// For each message it either parks it again when its fire time is still
// ahead, or runs the share handler for the referenced post. Failed messages
// are reported as batch item failures so SQS redelivers only those.
package main

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ifuryst/postshare/internal/config"
	"github.com/ifuryst/postshare/internal/queue"
	"github.com/ifuryst/postshare/internal/server"
	"github.com/ifuryst/postshare/internal/store"
	"github.com/ifuryst/postshare/pkg/logger"
)

// Dispatcher runs a due share request.
type Dispatcher interface {
	Dispatch(ctx context.Context, payload queue.Payload) error
}

// Parker sends a not yet due message back to the queue.
type Parker interface {
	Park(ctx context.Context, msg queue.SQSMessage) error
}

type Handler struct {
	dispatcher Dispatcher
	parker     Parker
	logger     *zap.Logger
	now        func() time.Time
}

func NewHandler(dispatcher Dispatcher, parker Parker, logger *zap.Logger) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		parker:     parker,
		logger:     logger,
		now:        time.Now,
	}
}

// Handle processes an SQS batch with partial batch responses.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.logger.Error("Failed to process share message",
				zap.String("message_id", record.MessageId),
				zap.Error(err))
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
	}

	return response, nil
}

func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	msg, err := queue.ParseSQSMessage(record.Body)
	if err != nil {
		// Redelivery cannot fix a malformed body
		h.logger.Error("Dropping malformed share message",
			zap.String("message_id", record.MessageId),
			zap.Error(err))
		return nil
	}

	logger := h.logger.With(
		zap.String("key", msg.Key),
		zap.Uint("post_id", msg.PostID),
		zap.String("trace_id", msg.TraceID))

	if !msg.Due(h.now()) {
		logger.Debug("Share message not due, parking", zap.Time("fire_at", msg.FireAt))
		return h.parker.Park(ctx, msg)
	}

	logger.Info("Processing share message")
	return h.dispatcher.Dispatch(ctx, msg.Payload())
}

func main() {
	_ = godotenv.Load()

	configPath := os.Getenv("POSTSHARE_CONFIG")
	if configPath == "" {
		configPath = "configs/server.yaml"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		panic(err)
	}
	appLogger, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		panic(err)
	}
	defer appLogger.Sync()

	appLogger.Info("Share worker initializing (cold start)")

	if cfg.Queue.Driver != config.QueueDriverSQS {
		appLogger.Fatal("Share worker requires the sqs queue driver", zap.String("driver", cfg.Queue.Driver))
	}

	ctx := context.Background()
	db, err := store.NewDatabase(&cfg.Database)
	if err != nil {
		appLogger.Fatal("Failed to initialize database", zap.Error(err))
	}
	q, err := server.NewQueue(ctx, cfg, db, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize queue", zap.Error(err))
	}
	pipeline, err := server.NewPipeline(cfg, db, q.Scheduler, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize share pipeline", zap.Error(err))
	}

	handler := NewHandler(pipeline.Shares, q.SQS, appLogger)

	appLogger.Info("Share worker initialized", zap.String("queue_url", cfg.Queue.SQS.QueueURL))
	lambda.Start(handler.Handle)
}
