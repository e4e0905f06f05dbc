package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "solar_telemetry_"

	ResultValid    = "valid"
	ResultInvalid  = "invalid"
	ResultRejected = "rejected"
	ResultError    = "error"
)

var (
	registerOnce sync.Once

	payloadsTotal   *prometheus.CounterVec
	payloadLatency  *prometheus.HistogramVec
	rejectionsTotal *prometheus.CounterVec
	advisoriesTotal *prometheus.CounterVec
	anomaliesTotal  *prometheus.CounterVec
	publishFailures prometheus.Counter
)

// Init registers worker metrics with reg. Later calls are no-ops.
func Init(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		payloadsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "payloads_total",
				Help: "Total payloads handled by result",
			},
			[]string{"result"},
		)
		payloadLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "payload_processing_seconds",
				Help:    "Payload processing latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		rejectionsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rejections_total",
				Help: "Total payloads rejected at decode or validation by reason",
			},
			[]string{"reason"},
		)
		advisoriesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "advisory_flags_total",
				Help: "Total advisory flags raised on accepted payloads",
			},
			[]string{"flag"},
		)
		anomaliesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "anomalies_total",
				Help: "Total phase anomalies detected by kind",
			},
			[]string{"kind"},
		)
		publishFailures = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "event_publish_failures_total",
				Help: "Total accepted events that could not be published",
			},
		)

		reg.MustRegister(
			payloadsTotal,
			payloadLatency,
			rejectionsTotal,
			advisoriesTotal,
			anomaliesTotal,
			publishFailures,
		)
	})
}

// ObservePayload records payload processing duration and result.
func ObservePayload(result string, duration time.Duration) {
	if result == "" {
		result = ResultValid
	}
	if payloadsTotal != nil {
		payloadsTotal.WithLabelValues(result).Inc()
	}
	if payloadLatency != nil {
		payloadLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncRejected increments the rejection counter.
func IncRejected(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if rejectionsTotal != nil {
		rejectionsTotal.WithLabelValues(reason).Inc()
	}
}

// IncAdvisory increments the advisory flag counter.
func IncAdvisory(flag string) {
	if advisoriesTotal != nil {
		advisoriesTotal.WithLabelValues(flag).Inc()
	}
}

// IncAnomaly increments the anomaly counter.
func IncAnomaly(kind string) {
	if anomaliesTotal != nil {
		anomaliesTotal.WithLabelValues(kind).Inc()
	}
}

// IncPublishFailure increments the event publish failure counter.
func IncPublishFailure() {
	if publishFailures != nil {
		publishFailures.Inc()
	}
}
