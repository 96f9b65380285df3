package stompprotocol

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsConfig configures client metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "stomp_client").
	Namespace string

	// Buckets are the histogram buckets for receipt waits.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures client metrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithBuckets sets the receipt wait histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// Metrics counts protocol traffic. A nil *Metrics records nothing.
type Metrics struct {
	framesSent        *prometheus.CounterVec
	framesReceived    *prometheus.CounterVec
	malformedFrames   prometheus.Counter
	unmatchedReceipts prometheus.Counter
	eventsIngested    prometheus.Counter
	receiptWait       prometheus.Histogram
}

// NewMetrics creates and registers the client collectors.
func NewMetrics(opts ...MetricsOption) *Metrics {
	cfg := MetricsConfig{
		Namespace: "stomp_client",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	m := &Metrics{
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "frames_sent_total",
			Help:      "Frames written to the broker, by kind.",
		}, []string{"kind"}),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "frames_received_total",
			Help:      "Frames decoded from the broker, by kind.",
		}, []string{"kind"}),
		malformedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "malformed_frames_total",
			Help:      "Inbound frames that failed to decode.",
		}),
		unmatchedReceipts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "unmatched_receipts_total",
			Help:      "RECEIPT frames whose id matched no pending request.",
		}),
		eventsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "events_ingested_total",
			Help:      "MESSAGE events handed to the event store.",
		}),
		receiptWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "receipt_wait_seconds",
			Help:      "Time from sending a receipted frame to its acknowledgement.",
			Buckets:   cfg.Buckets,
		}),
	}

	if cfg.Registry != nil {
		cfg.Registry.MustRegister(
			m.framesSent,
			m.framesReceived,
			m.malformedFrames,
			m.unmatchedReceipts,
			m.eventsIngested,
			m.receiptWait,
		)
	}
	return m
}

func (m *Metrics) frameSent(kind FrameKind) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) frameReceived(kind FrameKind) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) malformedFrame() {
	if m == nil {
		return
	}
	m.malformedFrames.Inc()
}

func (m *Metrics) unmatchedReceipt() {
	if m == nil {
		return
	}
	m.unmatchedReceipts.Inc()
}

func (m *Metrics) eventIngested() {
	if m == nil {
		return
	}
	m.eventsIngested.Inc()
}

func (m *Metrics) observeReceiptWait(d time.Duration) {
	if m == nil {
		return
	}
	m.receiptWait.Observe(d.Seconds())
}
