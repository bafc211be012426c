package sqs

import (
	"context"
	"sync"
	"time"

	"github.com/nagareproject/sqs/sqsqueue"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/roadrunner-server/endure/v2/dep"
	"github.com/roadrunner-server/errors"
	jprop "go.opentelemetry.io/contrib/propagators/jaeger"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

const (
	pluginName  string = "sqs"
	initTimeout        = time.Second * 30
)

// newClient is replaced in tests
var newClient = func(ctx context.Context, cfg *sqsqueue.Config, log *zap.Logger) (sqsqueue.API, error) {
	return sqsqueue.NewClient(ctx, cfg, log)
}

type Configurer interface {
	// UnmarshalKey takes a single key and unmarshal it into a Struct.
	UnmarshalKey(name string, out any) error
	// Has checks if config section exists.
	Has(name string) bool
}

type Logger interface {
	NamedLogger(name string) *zap.Logger
}

// Tracer is provided by the otel plugin
type Tracer interface {
	Tracer() *sdktrace.TracerProvider
}

type Plugin struct {
	mu sync.RWMutex

	log     *zap.Logger
	cfg     *sqsqueue.Config
	tracer  *sdktrace.TracerProvider
	metrics *sqsqueue.Metrics

	service  *sqsqueue.Service
	registry *sqsqueue.Registry
	// registry population error, reported by Queue
	regErr error
}

func (p *Plugin) Init(cfg Configurer, log Logger) error {
	const op = errors.Op("sqs_plugin_init")

	if !cfg.Has(pluginName) {
		return errors.E(op, errors.Disabled)
	}

	p.cfg = &sqsqueue.Config{}
	err := cfg.UnmarshalKey(pluginName, p.cfg)
	if err != nil {
		return errors.E(op, err)
	}

	err = p.cfg.InitDefault()
	if err != nil {
		return errors.E(op, err)
	}

	p.log = log.NamedLogger(pluginName)

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	client, err := newClient(ctx, p.cfg, p.log)
	if err != nil {
		return errors.E(op, err)
	}

	p.service = sqsqueue.NewService(client, p.log)
	p.metrics = sqsqueue.NewMetrics()

	return nil
}

// Serve resolves the configured queues, creating them when asked to.
func (p *Plugin) Serve() chan error {
	const op = errors.Op("sqs_plugin_serve")
	errCh := make(chan error, 1)

	prop := propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}, jprop.Jaeger{})

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.tracer == nil {
		p.tracer = sdktrace.NewTracerProvider()
	}

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	start := time.Now().UTC()
	registry, err := sqsqueue.NewRegistry(ctx, p.service, p.cfg.Queues,
		sqsqueue.WithLogger(p.log),
		sqsqueue.WithTracer(p.tracer),
		sqsqueue.WithPropagator(prop),
		sqsqueue.WithMetrics(p.metrics),
	)
	if err != nil {
		p.regErr = errors.E(op, err)
		errCh <- p.regErr
		return errCh
	}

	p.registry = registry
	p.log.Debug("queues resolved", zap.Strings("queues", registry.Names()), zap.Time("start", start), zap.Int64("elapsed", time.Since(start).Milliseconds()))

	return errCh
}

func (p *Plugin) Stop(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.registry = nil
	return nil
}

// Queue returns the configured queue handle named name
func (p *Plugin) Queue(name string) (*sqsqueue.Queue, error) {
	const op = errors.Op("sqs_plugin_queue")

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.regErr != nil {
		return nil, p.regErr
	}

	if p.registry == nil {
		return nil, errors.E(op, errors.Str("sqs plugin is not serving"))
	}

	return p.registry.Queue(name)
}

func (p *Plugin) Registry() *sqsqueue.Registry {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.registry
}

func (p *Plugin) Service() *sqsqueue.Service {
	return p.service
}

// MetricsCollector is collected by the metrics plugin
func (p *Plugin) MetricsCollector() []prometheus.Collector {
	return p.metrics.Collectors()
}

func (p *Plugin) Collects() []*dep.In {
	return []*dep.In{
		dep.Fits(func(pp any) {
			p.mu.Lock()
			p.tracer = pp.(Tracer).Tracer()
			p.mu.Unlock()
		}, (*Tracer)(nil)),
	}
}

func (p *Plugin) Name() string {
	return pluginName
}
