package queue

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxSQSDelay is the longest delivery delay SQS accepts for one message.
const MaxSQSDelay = 15 * time.Minute

// dueTolerance absorbs the rounding of delays to whole seconds.
const dueTolerance = time.Second

// SQSSender abstracts the SQS SendMessage operation for testability.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSMessage is the body of a deferred request on SQS.
type SQSMessage struct {
	Key     string    `json:"key"`
	PostID  uint      `json:"post_id"`
	FireAt  time.Time `json:"fire_at"`
	TraceID string    `json:"trace_id"`
}

// Due reports whether the message reached its fire time.
func (m SQSMessage) Due(now time.Time) bool {
	return !now.Add(dueTolerance).Before(m.FireAt)
}

func (m SQSMessage) Payload() Payload {
	return Payload{PostID: m.PostID}
}

// ParseSQSMessage decodes and checks a message body.
func ParseSQSMessage(body string) (SQSMessage, error) {
	var msg SQSMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return msg, errors.Wrap(err, "malformed message body")
	}
	if msg.Key == "" || msg.PostID == 0 {
		return msg, errors.Newf("message without key or post id: %q", body)
	}
	return msg, nil
}

// DelaySeconds converts the time until fire into an SQS delay, rounded up and
// clamped to MaxSQSDelay.
func DelaySeconds(d time.Duration) int32 {
	if d <= 0 {
		return 0
	}
	if d > MaxSQSDelay {
		d = MaxSQSDelay
	}
	return int32(math.Ceil(d.Seconds()))
}

// SQS sends deferred requests as delayed messages. A fire time beyond
// MaxSQSDelay is reached by parking: the consumer sends the message again
// until it is due. Standard queues cannot deduplicate by key, so wrap SQS in
// a Deduplicated scheduler.
type SQS struct {
	client   SQSSender
	queueURL string
	logger   *zap.Logger
	now      func() time.Time
}

func NewSQS(client SQSSender, queueURL string, logger *zap.Logger) *SQS {
	return &SQS{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
		now:      time.Now,
	}
}

func (q *SQS) Schedule(ctx context.Context, req Request) error {
	return q.send(ctx, SQSMessage{
		Key:     req.Key,
		PostID:  req.Payload.PostID,
		FireAt:  req.FireAt.UTC(),
		TraceID: uuid.New().String(),
	})
}

// Park sends a message that is not yet due back to the queue.
func (q *SQS) Park(ctx context.Context, msg SQSMessage) error {
	return q.send(ctx, msg)
}

func (q *SQS) send(ctx context.Context, msg SQSMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "queue: failed to marshal message")
	}

	delay := DelaySeconds(msg.FireAt.Sub(q.now()))
	input := &sqs.SendMessageInput{
		QueueUrl:     aws.String(q.queueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: delay,
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"key": {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.Key),
			},
		},
	}

	if _, err := q.client.SendMessage(ctx, input); err != nil {
		return errors.Wrapf(err, "queue: failed to send %s", msg.Key)
	}

	q.logger.Info("Share trigger message sent",
		zap.String("key", msg.Key),
		zap.String("trace_id", msg.TraceID),
		zap.Time("fire_at", msg.FireAt),
		zap.Int32("delay_seconds", delay))
	return nil
}
