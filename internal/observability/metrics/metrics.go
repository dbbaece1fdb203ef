// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "call_sheets_webhook"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// HTTP metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Delivery metrics
	Deliveries          *prometheus.CounterVec
	SignatureRejections *prometheus.CounterVec
	UnsignedDeliveries  prometheus.Counter
	DefaultedFields     *prometheus.CounterVec

	// Sheet metrics
	RowsAppended  prometheus.Counter
	WriteFailures *prometheus.CounterVec
	AppendLatency prometheus.Histogram

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance registered with the default registry.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"method", "route"}),

		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Total number of webhook deliveries by outcome",
		}, []string{"outcome"}),
		SignatureRejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signature_rejections_total",
			Help:      "Total number of deliveries rejected during signature verification",
		}, []string{"reason"}),
		UnsignedDeliveries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unsigned_deliveries_total",
			Help:      "Total number of deliveries that carried no signature header",
		}),
		DefaultedFields: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "defaulted_fields_total",
			Help:      "Total number of event fields replaced by their default value",
		}, []string{"field"}),

		RowsAppended: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_appended_total",
			Help:      "Total number of rows appended to the sheet",
		}),
		WriteFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_failures_total",
			Help:      "Total number of deliveries that did not produce a row",
		}, []string{"stage"}),
		AppendLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "append_latency_seconds",
			Help:      "Sheet append latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),

		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordHTTPRequest records a completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(durationSeconds)
}

// RecordDelivery records the outcome of a webhook delivery.
func (m *Metrics) RecordDelivery(outcome string) {
	m.Deliveries.WithLabelValues(outcome).Inc()
}

// RecordSignatureRejected records a delivery rejected during verification.
func (m *Metrics) RecordSignatureRejected(reason string) {
	m.SignatureRejections.WithLabelValues(reason).Inc()
}

// RecordUnsigned records a delivery without a signature header.
func (m *Metrics) RecordUnsigned() {
	m.UnsignedDeliveries.Inc()
}

// RecordDefaulted records the fields that fell back to defaults.
func (m *Metrics) RecordDefaulted(fields []string) {
	for _, f := range fields {
		m.DefaultedFields.WithLabelValues(f).Inc()
	}
}

// RecordAppend records a sheet append attempt.
func (m *Metrics) RecordAppend(err error, latencySeconds float64) {
	m.AppendLatency.Observe(latencySeconds)
	if err != nil {
		m.WriteFailures.WithLabelValues("append").Inc()
		return
	}
	m.RowsAppended.Inc()
}

// RecordParseFailure records a delivery whose body could not be parsed.
func (m *Metrics) RecordParseFailure() {
	m.WriteFailures.WithLabelValues("parse").Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}
