package sqsqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigInitDefault(t *testing.T) {
	cfg := &Config{
		Queues: map[string]*QueueConfig{
			"orders": {QueueName: "orders"},
		},
	}

	require.NoError(t, cfg.InitDefault())
	assert.Equal(t, 3, cfg.MaxAttempts)

	qc := cfg.Queues["orders"]
	assert.Equal(t, 1, qc.Pool)
	assert.Equal(t, "isolate", qc.ErrorPolicy)
	assert.False(t, qc.FailFast())
	assert.False(t, qc.Creation)
	assert.Equal(t, 0, *qc.DelaySeconds)
	assert.Equal(t, 262144, *qc.MaximumMessageSize)
	assert.Equal(t, 345600, *qc.MessageRetentionPeriod)
	assert.Equal(t, 20, *qc.ReceiveMessageWaitTimeSeconds)
	assert.Equal(t, 30, *qc.VisibilityTimeout)
	assert.Nil(t, qc.FifoQueue)
	assert.Nil(t, qc.RedrivePolicy)
	assert.NotNil(t, qc.Tags)
}

func TestConfigNoQueues(t *testing.T) {
	cfg := &Config{MaxAttempts: 7}

	require.NoError(t, cfg.InitDefault())
	assert.Equal(t, 7, cfg.MaxAttempts)
	assert.Empty(t, cfg.Queues)
}

func TestConfigEmptyQueue(t *testing.T) {
	cfg := &Config{
		Queues: map[string]*QueueConfig{"orders": nil},
	}

	err := cfg.InitDefault()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue orders")
}

func TestQueueConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *QueueConfig)
		err    string
	}{
		{"no queue name", func(c *QueueConfig) { c.QueueName = "" }, "queue_name is required"},
		{"negative pool", func(c *QueueConfig) { c.Pool = -1 }, "pool should be a positive integer"},
		{"error policy", func(c *QueueConfig) { c.ErrorPolicy = "retry" }, "unknown error_policy"},
		{"delay", func(c *QueueConfig) { c.DelaySeconds = ptr(901) }, "delay_seconds"},
		{"message size", func(c *QueueConfig) { c.MaximumMessageSize = ptr(10) }, "maximum_message_size"},
		{"wait time", func(c *QueueConfig) { c.ReceiveMessageWaitTimeSeconds = ptr(21) }, "receive_message_wait_time_seconds"},
		{"visibility", func(c *QueueConfig) { c.VisibilityTimeout = ptr(-1) }, "visibility_timeout"},
		{"deduplication scope", func(c *QueueConfig) { c.DeduplicationScope = ptr("group") }, "deduplication_scope"},
		{"throughput limit", func(c *QueueConfig) { c.FifoThroughputLimit = ptr("perGroup") }, "fifo_throughput_limit"},
		{"redrive json", func(c *QueueConfig) { c.RedrivePolicy = ptr("{maxReceiveCount: 5") }, "redrive_policy is not a valid JSON document"},
		{"redrive target", func(c *QueueConfig) { c.RedrivePolicy = ptr(`{"maxReceiveCount": 5}`) }, "deadLetterTargetArn is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &QueueConfig{QueueName: "test"}
			cfg.InitDefault()
			tt.modify(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.err)
		})
	}
}

func TestQueueConfigValid(t *testing.T) {
	cfg := &QueueConfig{
		QueueName:                 "events.fifo",
		Pool:                      4,
		ErrorPolicy:               "fail_fast",
		FifoQueue:                 ptr(true),
		ContentBasedDeduplication: ptr(true),
		DeduplicationScope:        ptr(DeduplicationScopeQueue),
		FifoThroughputLimit:       ptr(FifoThroughputLimitPerQueue),
		RedrivePolicy:             ptr(`{"deadLetterTargetArn": "arn:aws:sqs:us-east-1:000000000000:dlq.fifo", "maxReceiveCount": "5"}`),
	}
	cfg.InitDefault()

	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.FailFast())
	assert.True(t, cfg.Fifo())
	assert.True(t, cfg.ContentDeduplication())
}

func TestQueueConfigFifoFromName(t *testing.T) {
	assert.True(t, (&QueueConfig{QueueName: "events.fifo"}).Fifo())
	assert.False(t, (&QueueConfig{QueueName: "events"}).Fifo())
	assert.True(t, (&QueueConfig{QueueName: "events", FifoQueue: ptr(true)}).Fifo())
}

func TestParseRedrive(t *testing.T) {
	rp, err := parseRedrive(`{"deadLetterTargetArn": "arn:aws:sqs:us-east-1:000000000000:dlq", "maxReceiveCount": 5}`)
	require.NoError(t, err)
	assert.Equal(t, "arn:aws:sqs:us-east-1:000000000000:dlq", rp.DeadLetterTargetArn)
	assert.Equal(t, ReceiveCount(5), rp.MaxReceiveCount)

	// SQS returns the count as a string
	rp, err = parseRedrive(`{"deadLetterTargetArn": "arn", "maxReceiveCount": "10"}`)
	require.NoError(t, err)
	assert.Equal(t, ReceiveCount(10), rp.MaxReceiveCount)

	_, err = parseRedrive(`{"deadLetterTargetArn": "arn", "maxReceiveCount": "ten"}`)
	require.Error(t, err)
}
