package sqsqueue

import (
	"sort"

	"github.com/roadrunner-server/errors"
)

const (
	defaultPool                   int    = 1
	defaultDelaySeconds           int    = 0
	defaultMaximumMessageSize     int    = 262144
	defaultMessageRetentionPeriod int    = 345600
	defaultReceiveWaitTimeSeconds int    = 20
	defaultVisibilityTimeout      int    = 30
	defaultMaxAttempts            int    = 3
	maxVisibilityTimeout          int    = 43200
	maxWaitTime                   int    = 20
	maxDelaySeconds               int    = 900
	maxMessageSize                int    = 262144
	minMessageSize                int    = 1024
	isolatePolicy                 string = "isolate"
	failFastPolicy                string = "fail_fast"
)

// Config is the `sqs` configuration section
type Config struct {
	// global
	Key          string `mapstructure:"key"`
	Secret       string `mapstructure:"secret"`
	Region       string `mapstructure:"region"`
	SessionToken string `mapstructure:"session_token"`
	Endpoint     string `mapstructure:"endpoint"`

	// MaxAttempts is the number of attempts made by the SDK standard retryer
	// for every call. Nothing is retried on top of it.
	MaxAttempts int `mapstructure:"max_attempts"`

	// Queues maps the logical queue name to its configuration
	Queues map[string]*QueueConfig `mapstructure:"queues"`
}

// QueueConfig describes one named queue
type QueueConfig struct {
	// QueueName is the SQS queue name. FIFO queue names end with `.fifo`.
	//
	// This member is required.
	QueueName string `mapstructure:"queue_name"`
	// AccountID is the owner of the queue for a cross-account lookup
	AccountID string `mapstructure:"account_id"`
	// Pool is the number of concurrent message handlers, default 1
	Pool int `mapstructure:"pool"`
	// Creation creates the queue instead of looking it up
	Creation bool `mapstructure:"creation"`
	// ErrorPolicy is either `isolate` (default) or `fail_fast`
	ErrorPolicy string `mapstructure:"error_policy"`

	// queue attributes, sent to SQS on creation only
	FifoQueue                     *bool   `mapstructure:"fifo_queue"`
	DelaySeconds                  *int    `mapstructure:"delay_seconds"`
	MaximumMessageSize            *int    `mapstructure:"maximum_message_size"`
	MessageRetentionPeriod        *int    `mapstructure:"message_retention_period"`
	ReceiveMessageWaitTimeSeconds *int    `mapstructure:"receive_message_wait_time_seconds"`
	RedrivePolicy                 *string `mapstructure:"redrive_policy"`
	VisibilityTimeout             *int    `mapstructure:"visibility_timeout"`
	ContentBasedDeduplication     *bool   `mapstructure:"content_based_deduplication"`
	DeduplicationScope            *string `mapstructure:"deduplication_scope"`
	FifoThroughputLimit           *string `mapstructure:"fifo_throughput_limit"`

	Tags map[string]string `mapstructure:"tags"`
}

func (c *Config) InitDefault() error {
	const op = errors.Op("sqs_config_init_default")

	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}

	if c.Queues == nil {
		c.Queues = make(map[string]*QueueConfig)
	}

	// stable order for the error messages
	names := make([]string, 0, len(c.Queues))
	for name := range c.Queues {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		qc := c.Queues[name]
		if qc == nil {
			return errors.E(op, errors.Errorf("queue %s: empty configuration", name))
		}

		qc.InitDefault()
		if err := qc.Validate(); err != nil {
			return errors.E(op, errors.Errorf("queue %s: %v", name, err))
		}
	}

	return nil
}

func (c *QueueConfig) InitDefault() {
	if c.Pool == 0 {
		c.Pool = defaultPool
	}

	if c.ErrorPolicy == "" {
		c.ErrorPolicy = isolatePolicy
	}

	if c.DelaySeconds == nil {
		c.DelaySeconds = ptr(defaultDelaySeconds)
	}

	if c.MaximumMessageSize == nil {
		c.MaximumMessageSize = ptr(defaultMaximumMessageSize)
	}

	if c.MessageRetentionPeriod == nil {
		c.MessageRetentionPeriod = ptr(defaultMessageRetentionPeriod)
	}

	if c.ReceiveMessageWaitTimeSeconds == nil {
		c.ReceiveMessageWaitTimeSeconds = ptr(defaultReceiveWaitTimeSeconds)
	}

	if c.VisibilityTimeout == nil {
		c.VisibilityTimeout = ptr(defaultVisibilityTimeout)
	}

	if c.Tags == nil {
		c.Tags = make(map[string]string)
	}
}

// Validate reports configuration errors. It expects InitDefault to be called first.
func (c *QueueConfig) Validate() error {
	const op = errors.Op("sqs_queue_config_validate")

	if c.QueueName == "" {
		return errors.E(op, errors.Str("queue_name is required"))
	}

	if c.Pool < 1 {
		return errors.E(op, errors.Errorf("pool should be a positive integer, provided: %d", c.Pool))
	}

	switch c.ErrorPolicy {
	case isolatePolicy, failFastPolicy:
	default:
		return errors.E(op, errors.Errorf("unknown error_policy: %s, expected %s or %s", c.ErrorPolicy, isolatePolicy, failFastPolicy))
	}

	if *c.DelaySeconds < 0 || *c.DelaySeconds > maxDelaySeconds {
		return errors.E(op, errors.Errorf("delay_seconds should be in the [0, %d] range, provided: %d", maxDelaySeconds, *c.DelaySeconds))
	}

	if *c.MaximumMessageSize < minMessageSize || *c.MaximumMessageSize > maxMessageSize {
		return errors.E(op, errors.Errorf("maximum_message_size should be in the [%d, %d] range, provided: %d", minMessageSize, maxMessageSize, *c.MaximumMessageSize))
	}

	if *c.ReceiveMessageWaitTimeSeconds < 0 || *c.ReceiveMessageWaitTimeSeconds > maxWaitTime {
		return errors.E(op, errors.Errorf("receive_message_wait_time_seconds should be in the [0, %d] range, provided: %d", maxWaitTime, *c.ReceiveMessageWaitTimeSeconds))
	}

	if *c.VisibilityTimeout < 0 || *c.VisibilityTimeout > maxVisibilityTimeout {
		return errors.E(op, errors.Errorf("visibility_timeout should be in the [0, %d] range, provided: %d", maxVisibilityTimeout, *c.VisibilityTimeout))
	}

	if c.DeduplicationScope != nil {
		switch *c.DeduplicationScope {
		case DeduplicationScopeMessageGroup, DeduplicationScopeQueue:
		default:
			return errors.E(op, errors.Errorf("deduplication_scope should be %s or %s, provided: %s", DeduplicationScopeMessageGroup, DeduplicationScopeQueue, *c.DeduplicationScope))
		}
	}

	if c.FifoThroughputLimit != nil {
		switch *c.FifoThroughputLimit {
		case FifoThroughputLimitPerMessageGroupID, FifoThroughputLimitPerQueue:
		default:
			return errors.E(op, errors.Errorf("fifo_throughput_limit should be %s or %s, provided: %s", FifoThroughputLimitPerMessageGroupID, FifoThroughputLimitPerQueue, *c.FifoThroughputLimit))
		}
	}

	if c.RedrivePolicy != nil {
		rp, err := parseRedrive(*c.RedrivePolicy)
		if err != nil {
			return errors.E(op, errors.Errorf("redrive_policy is not a valid JSON document: %v", err))
		}

		if rp.DeadLetterTargetArn == "" {
			return errors.E(op, errors.Str("redrive_policy: deadLetterTargetArn is required"))
		}
	}

	return nil
}

// Attributes returns the snake_case queue attributes used on creation.
// Unset attributes are nil and never reach SQS.
func (c *QueueConfig) Attributes() map[string]any {
	return map[string]any{
		FifoQueue:                     c.FifoQueue,
		DelaySeconds:                  c.DelaySeconds,
		MaximumMessageSize:            c.MaximumMessageSize,
		MessageRetentionPeriod:        c.MessageRetentionPeriod,
		ReceiveMessageWaitTimeSeconds: c.ReceiveMessageWaitTimeSeconds,
		RedrivePolicy:                 c.RedrivePolicy,
		VisibilityTimeout:             c.VisibilityTimeout,
		ContentBasedDeduplication:     c.ContentBasedDeduplication,
		DeduplicationScope:            c.DeduplicationScope,
		FifoThroughputLimit:           c.FifoThroughputLimit,
	}
}

// FailFast reports whether the first handler error stops the consumption
func (c *QueueConfig) FailFast() bool {
	return c.ErrorPolicy == failFastPolicy
}

// ContentDeduplication reports whether SQS deduplicates on the message body
func (c *QueueConfig) ContentDeduplication() bool {
	return c.ContentBasedDeduplication != nil && *c.ContentBasedDeduplication
}

// Fifo reports whether the queue is a FIFO queue
func (c *QueueConfig) Fifo() bool {
	return (c.FifoQueue != nil && *c.FifoQueue) || isFifo(c.QueueName)
}

func ptr[T any](val T) *T {
	return &val
}
