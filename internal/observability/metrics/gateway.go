package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics contains Prometheus metrics for backend requests.
type GatewayMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestErrors   *prometheus.CounterVec
}

// NewGatewayMetrics creates and registers gateway metrics.
func NewGatewayMetrics(registry *prometheus.Registry) (*GatewayMetrics, error) {
	m := &GatewayMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *GatewayMetrics) initMetrics() {
	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catchsync_gateway_requests_total",
			Help: "Total number of backend requests",
		},
		[]string{"operation", "status"}, // operation: create, update_label, list; status: success, error
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catchsync_gateway_request_duration_seconds",
			Help:    "Time taken for backend requests",
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12), // 10ms to ~20s
		},
		[]string{"operation"},
	)

	m.requestErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catchsync_gateway_request_errors_total",
			Help: "Total number of backend request errors",
		},
		[]string{"operation", "error_type"}, // error_type: network, http-status, method-not-allowed
	)
}

func (m *GatewayMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.requestsTotal, m.requestDuration, m.requestErrors}
}

// Describe implements the Collector interface
func (m *GatewayMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *GatewayMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

// RecordOperation implements Recorder.
func (m *GatewayMetrics) RecordOperation(operation, status string) {
	m.requestsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder.
func (m *GatewayMetrics) RecordDuration(operation string, seconds float64) {
	m.requestDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder.
func (m *GatewayMetrics) RecordError(operation, errorType string) {
	m.requestErrors.WithLabelValues(operation, errorType).Inc()
}

var _ Recorder = (*GatewayMetrics)(nil)
