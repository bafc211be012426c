package sqsqueue

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/nagareproject/sqs/internal/fakesqs"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var _ API = (*fakesqs.Client)(nil)

func newTestService() (*fakesqs.Client, *Service) {
	fake := fakesqs.New()
	return fake, NewService(fake, zap.NewNop())
}

func newQueueConfig(name string) *QueueConfig {
	cfg := &QueueConfig{
		QueueName: name,
		Creation:  true,
	}
	cfg.InitDefault()

	return cfg
}

// newTestQueue creates the queue in fake, logging to the returned observer
func newTestQueue(t *testing.T, fake *fakesqs.Client, cfg *QueueConfig, opts ...Option) (*Queue, *observer.ObservedLogs) {
	t.Helper()
	require.NoError(t, cfg.Validate())

	core, logs := observer.New(zapcore.DebugLevel)
	opts = append([]Option{WithLogger(zap.New(core))}, opts...)

	q, err := NewQueue(context.Background(), NewService(fake, zap.NewNop()), "test", cfg, opts...)
	require.NoError(t, err)

	return q, logs
}

func sendBodies(t *testing.T, q *Queue, bodies ...string) {
	t.Helper()

	for _, b := range bodies {
		_, err := q.SendMessage(context.Background(), sendInput(b))
		require.NoError(t, err)
	}
}

func sendInput(body string) *sqs.SendMessageInput {
	return &sqs.SendMessageInput{MessageBody: aws.String(body)}
}
