package sqsqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToCamelCase(t *testing.T) {
	tests := map[string]string{
		"fifo_queue":                        "FifoQueue",
		"delay_seconds":                     "DelaySeconds",
		"maximum_message_size":              "MaximumMessageSize",
		"message_retention_period":          "MessageRetentionPeriod",
		"receive_message_wait_time_seconds": "ReceiveMessageWaitTimeSeconds",
		"redrive_policy":                    "RedrivePolicy",
		"visibility_timeout":                "VisibilityTimeout",
		"content_based_deduplication":       "ContentBasedDeduplication",
		"deduplication_scope":               "DeduplicationScope",
		"fifo_throughput_limit":             "FifoThroughputLimit",
		"kms_master_key_id":                 "KmsMasterKeyId",
		"policy":                            "Policy",
		"a":                                 "A",
		"":                                  "",
		"trailing_":                         "Trailing_",
	}

	for in, expected := range tests {
		assert.Equal(t, expected, ToCamelCase(in), in)
	}
}

func TestAwsAttributes(t *testing.T) {
	fifo := true
	scope := DeduplicationScopeMessageGroup
	var unset *string

	attrs := toAwsAttributes(map[string]any{
		FifoQueue:                 &fifo,
		DelaySeconds:              ptr(5),
		VisibilityTimeout:         30,
		ContentBasedDeduplication: false,
		DeduplicationScope:        &scope,
		FifoThroughputLimit:       unset,
		RedrivePolicy:             nil,
	})

	require.Equal(t, map[string]string{
		FifoQueueAWS:                 "true",
		DelaySecondsAWS:              "5",
		VisibilityTimeoutAWS:         "30",
		ContentBasedDeduplicationAWS: "false",
		DeduplicationScopeAWS:        "messageGroup",
	}, attrs)
}

func TestConfigAttributes(t *testing.T) {
	cfg := &QueueConfig{QueueName: "test"}
	cfg.InitDefault()

	attrs := toAwsAttributes(cfg.Attributes())

	// only the defaulted attributes, the optional ones stay unset
	require.Equal(t, map[string]string{
		DelaySecondsAWS:                  "0",
		MaximumMessageSizeAWS:            "262144",
		MessageRetentionPeriodAWS:        "345600",
		ReceiveMessageWaitTimeSecondsAWS: "20",
		VisibilityTimeoutAWS:             "30",
	}, attrs)
}

func TestNameFromURL(t *testing.T) {
	assert.Equal(t, "orders", nameFromURL("https://sqs.us-east-1.amazonaws.com/000000000000/orders"))
	assert.Equal(t, "events.fifo", nameFromURL("http://localhost:9324/queue/events.fifo"))
	assert.Equal(t, "plain", nameFromURL("plain"))
}
