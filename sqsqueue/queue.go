package sqsqueue

import (
	"context"
	"fmt"

	"github.com/roadrunner-server/errors"
	jprop "go.opentelemetry.io/contrib/propagators/jaeger"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

var _ Operations = (*Queue)(nil)

// Queue is a named queue handle. The SQS operations are forwarded to the
// resolved queue, StartConsuming is added on top of them.
type Queue struct {
	*RemoteQueue

	name string
	cfg  *QueueConfig

	log     *zap.Logger
	tracer  *sdktrace.TracerProvider
	prop    propagation.TextMapPropagator
	metrics *Metrics
}

type Option func(*Queue)

func WithLogger(log *zap.Logger) Option {
	return func(q *Queue) {
		q.log = log
	}
}

func WithTracer(tracer *sdktrace.TracerProvider) Option {
	return func(q *Queue) {
		q.tracer = tracer
	}
}

// WithPropagator sets the propagator extracting the trace context carried by
// the message attributes. The default handles W3C trace context, baggage and
// Jaeger headers.
func WithPropagator(prop propagation.TextMapPropagator) Option {
	return func(q *Queue) {
		q.prop = prop
	}
}

func WithMetrics(m *Metrics) Option {
	return func(q *Queue) {
		q.metrics = m
	}
}

// NewQueue creates or looks up the queue described by cfg, depending on
// cfg.Creation. cfg should be initialized and validated.
func NewQueue(ctx context.Context, svc *Service, name string, cfg *QueueConfig, opts ...Option) (*Queue, error) {
	const op = errors.Op("sqs_new_queue")

	q := &Queue{
		name: name,
		cfg:  cfg,
	}

	for _, opt := range opts {
		opt(q)
	}

	if q.log == nil {
		q.log = zap.NewNop()
	}

	if q.tracer == nil {
		q.tracer = sdktrace.NewTracerProvider()
	}

	if q.prop == nil {
		q.prop = propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}, jprop.Jaeger{})
	}

	var err error
	switch cfg.Creation {
	case true:
		q.RemoteQueue, err = svc.CreateQueue(ctx, cfg.QueueName, cfg.Tags, cfg.Attributes())
	case false:
		q.RemoteQueue, err = svc.GetQueue(ctx, cfg.QueueName, cfg.AccountID)
	}
	if err != nil {
		return nil, errors.E(op, fmt.Errorf("queue %s: %w", name, err))
	}

	q.log.Debug("queue is ready", zap.String("name", name), zap.String("queue", cfg.QueueName), zap.String("url", q.URL()), zap.Int("pool", cfg.Pool))
	return q, nil
}

// Name is the logical name of the queue
func (q *Queue) Name() string {
	return q.name
}

// QueueName is the SQS name of the queue
func (q *Queue) QueueName() string {
	return q.cfg.QueueName
}

// Pool is the number of concurrent handlers used by StartConsuming
func (q *Queue) Pool() int {
	return q.cfg.Pool
}

// Config returns the queue configuration
func (q *Queue) Config() *QueueConfig {
	return q.cfg
}

// Remote returns the resolved queue
func (q *Queue) Remote() *RemoteQueue {
	return q.RemoteQueue
}
