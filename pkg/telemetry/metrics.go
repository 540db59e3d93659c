package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// Module registers the Prometheus metrics set.
var Module = fx.Provide(NewMetrics)

// Metrics exposes Prometheus observability primitives for the payment pipeline.
type Metrics struct {
	messagesConsumed *prometheus.CounterVec
	handlerDuration  *prometheus.HistogramVec
	handlerErrors    *prometheus.CounterVec
	pollBackoffs     prometheus.Counter
	paymentOutcomes  *prometheus.CounterVec
	eventsIngested   *prometheus.CounterVec
}

// NewMetrics registers and returns Prometheus metrics for telemetry.
func NewMetrics() *Metrics {
	messagesConsumed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payflow_messages_consumed_total",
		Help: "Counts consumed queue messages by topic.",
	}, []string{"topic"})

	handlerDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payflow_handler_duration_seconds",
		Help:    "Handler durations by topic and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic", "status"})

	handlerErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payflow_handler_errors_total",
		Help: "Counts handler errors by topic.",
	}, []string{"topic"})

	pollBackoffs := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payflow_poll_backoffs_total",
		Help: "Counts store-level poll failures that triggered backoff.",
	})

	paymentOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payflow_payment_outcomes_total",
		Help: "Payment outcomes by status.",
	}, []string{"status"})

	eventsIngested := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payflow_analytics_events_total",
		Help: "Analytics events by result (ingested or duplicate).",
	}, []string{"result"})

	prometheus.MustRegister(
		messagesConsumed,
		handlerDuration,
		handlerErrors,
		pollBackoffs,
		paymentOutcomes,
		eventsIngested,
	)

	return &Metrics{
		messagesConsumed: messagesConsumed,
		handlerDuration:  handlerDuration,
		handlerErrors:    handlerErrors,
		pollBackoffs:     pollBackoffs,
		paymentOutcomes:  paymentOutcomes,
		eventsIngested:   eventsIngested,
	}
}

// RecordHandler observes one handler invocation.
func (m *Metrics) RecordHandler(topic, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.messagesConsumed.WithLabelValues(topic).Inc()
	m.handlerDuration.WithLabelValues(topic, status).Observe(duration.Seconds())
	if status != "success" {
		m.handlerErrors.WithLabelValues(topic).Inc()
	}
}

// RecordPollBackoff counts a store-level poll failure.
func (m *Metrics) RecordPollBackoff() {
	if m == nil {
		return
	}
	m.pollBackoffs.Inc()
}

// RecordPaymentOutcome counts a terminal payment status.
func (m *Metrics) RecordPaymentOutcome(status string) {
	if m == nil {
		return
	}
	m.paymentOutcomes.WithLabelValues(status).Inc()
}

// RecordIngest counts an analytics ingest result.
func (m *Metrics) RecordIngest(result string) {
	if m == nil {
		return
	}
	m.eventsIngested.WithLabelValues(result).Inc()
}
