package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockSQSSender captures SendMessage calls for test assertions.
type mockSQSSender struct {
	calls []*sqs.SendMessageInput
	err   error
}

func (m *mockSQSSender) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.calls = append(m.calls, params)
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.SendMessageOutput{}, nil
}

const testQueueURL = "https://sqs.us-east-1.amazonaws.com/123456789/postshare-triggers"

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestSQS(mock *mockSQSSender) *SQS {
	q := NewSQS(mock, testQueueURL, zap.NewNop())
	q.now = func() time.Time { return testNow }
	return q
}

func TestDelaySeconds(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want int32
	}{
		{in: -time.Minute, want: 0},
		{in: 0, want: 0},
		{in: 10 * time.Second, want: 10},
		{in: 10*time.Second + time.Millisecond, want: 11},
		{in: 15 * time.Minute, want: 900},
		{in: 48 * time.Hour, want: 900},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, DelaySeconds(tt.in), "delay %s", tt.in)
	}
}

func TestSQS_Schedule(t *testing.T) {
	mock := &mockSQSSender{}
	q := newTestSQS(mock)

	err := q.Schedule(context.Background(), Request{
		Key:     "posts/post.scheduled.42",
		FireAt:  testNow.Add(10 * time.Second),
		Payload: Payload{PostID: 42},
	})

	require.NoError(t, err)
	require.Len(t, mock.calls, 1)
	call := mock.calls[0]
	assert.Equal(t, testQueueURL, *call.QueueUrl)
	assert.Equal(t, int32(10), call.DelaySeconds)
	assert.Equal(t, "posts/post.scheduled.42", *call.MessageAttributes["key"].StringValue)

	var msg SQSMessage
	require.NoError(t, json.Unmarshal([]byte(*call.MessageBody), &msg))
	assert.Equal(t, "posts/post.scheduled.42", msg.Key)
	assert.Equal(t, uint(42), msg.PostID)
	assert.True(t, msg.FireAt.Equal(testNow.Add(10*time.Second)))
	assert.NotEmpty(t, msg.TraceID)
}

func TestSQS_ScheduleBeyondMaxDelay(t *testing.T) {
	mock := &mockSQSSender{}
	q := newTestSQS(mock)
	fireAt := testNow.Add(24 * time.Hour)

	require.NoError(t, q.Schedule(context.Background(), Request{Key: "k", FireAt: fireAt, Payload: Payload{PostID: 1}}))

	assert.Equal(t, int32(900), mock.calls[0].DelaySeconds)

	var msg SQSMessage
	require.NoError(t, json.Unmarshal([]byte(*mock.calls[0].MessageBody), &msg))
	assert.False(t, msg.Due(testNow.Add(MaxSQSDelay)))
	assert.True(t, msg.Due(fireAt))
}

func TestSQS_ParkKeepsTraceID(t *testing.T) {
	mock := &mockSQSSender{}
	q := newTestSQS(mock)
	msg := SQSMessage{Key: "k", PostID: 1, FireAt: testNow.Add(time.Hour), TraceID: "trace-1"}

	require.NoError(t, q.Park(context.Background(), msg))

	var sent SQSMessage
	require.NoError(t, json.Unmarshal([]byte(*mock.calls[0].MessageBody), &sent))
	assert.Equal(t, "trace-1", sent.TraceID)
	assert.Equal(t, int32(900), mock.calls[0].DelaySeconds)
}

func TestSQS_SendFailure(t *testing.T) {
	mock := &mockSQSSender{err: errors.New("throttled")}
	q := newTestSQS(mock)

	err := q.Schedule(context.Background(), Request{Key: "posts/post.scheduled.1", FireAt: testNow, Payload: Payload{PostID: 1}})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestParseSQSMessage(t *testing.T) {
	msg, err := ParseSQSMessage(`{"key":"posts/post.scheduled.5","post_id":5,"fire_at":"2024-03-01T12:00:45Z","trace_id":"t"}`)
	require.NoError(t, err)
	assert.Equal(t, uint(5), msg.Payload().PostID)

	_, err = ParseSQSMessage(`not json`)
	assert.Error(t, err)

	_, err = ParseSQSMessage(`{"key":"","post_id":0}`)
	assert.Error(t, err)
}

func TestSQSMessage_Due(t *testing.T) {
	msg := SQSMessage{FireAt: testNow}

	assert.True(t, msg.Due(testNow))
	assert.True(t, msg.Due(testNow.Add(time.Minute)))
	assert.True(t, msg.Due(testNow.Add(-500*time.Millisecond)))
	assert.False(t, msg.Due(testNow.Add(-time.Minute)))
}
