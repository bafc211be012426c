package sqsqueue

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace string = "sqs"
	queueTag  string = "queue"
)

// Metrics are the consumption counters, labeled by logical queue name
type Metrics struct {
	received *prometheus.CounterVec
	handled  *prometheus.CounterVec
	failed   *prometheus.CounterVec
	inFlight *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Number of messages received from the queue.",
		}, []string{queueTag}),
		handled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_handled_total",
			Help:      "Number of messages handled without an error.",
		}, []string{queueTag}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_failed_total",
			Help:      "Number of messages whose handler returned an error or panicked.",
		}, []string{queueTag}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "messages_in_flight",
			Help:      "Number of messages currently handled.",
		}, []string{queueTag}),
	}
}

// Collectors returns the collectors to register
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.received, m.handled, m.failed, m.inFlight}
}

// nil safe, queues built without metrics do not count anything
func (m *Metrics) receivedAdd(queue string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.received.WithLabelValues(queue).Add(float64(n))
}

func (m *Metrics) handledInc(queue string) {
	if m == nil {
		return
	}
	m.handled.WithLabelValues(queue).Inc()
}

func (m *Metrics) failedInc(queue string) {
	if m == nil {
		return
	}
	m.failed.WithLabelValues(queue).Inc()
}

func (m *Metrics) inFlightAdd(queue string, delta float64) {
	if m == nil {
		return
	}
	m.inFlight.WithLabelValues(queue).Add(delta)
}
