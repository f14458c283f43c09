package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics contains Prometheus metrics for sync passes.
type SyncMetrics struct {
	passesTotal  *prometheus.CounterVec
	passDuration prometheus.Histogram
	recordsTotal *prometheus.CounterVec
	inProgress   prometheus.Gauge
	lastPending  prometheus.Gauge
}

// PassSummary is the per-pass tally recorded by RecordPass.
type PassSummary struct {
	Seconds        float64
	Attempted      int
	Created        int
	Reconciled     int
	Synced         int
	Failed         int
	SkippedMissing int
}

// NewSyncMetrics creates and registers sync metrics.
func NewSyncMetrics(registry *prometheus.Registry) (*SyncMetrics, error) {
	m := &SyncMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *SyncMetrics) initMetrics() {
	m.passesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catchsync_sync_passes_total",
			Help: "Total number of sync pass triggers",
		},
		[]string{"status"}, // status: completed, skipped
	)

	m.passDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catchsync_sync_pass_duration_seconds",
			Help:    "Time taken for a complete sync pass",
			Buckets: prometheus.ExponentialBuckets(BucketStart100ms, BucketFactor2, BucketCount10), // 100ms to ~50s
		},
	)

	m.recordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catchsync_sync_records_total",
			Help: "Total number of pending records processed by outcome",
		},
		[]string{"outcome"}, // outcome: created, reconciled, synced, failed, skipped_missing
	)

	m.inProgress = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "catchsync_sync_in_progress",
			Help: "1 while a sync pass is running",
		},
	)

	m.lastPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "catchsync_sync_last_pass_pending",
			Help: "Number of pending records seen by the last pass",
		},
	)
}

func (m *SyncMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.passesTotal, m.passDuration, m.recordsTotal, m.inProgress, m.lastPending}
}

// Describe implements the Collector interface
func (m *SyncMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *SyncMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

// SetInProgress flips the in-progress gauge. Safe on a nil receiver.
func (m *SyncMetrics) SetInProgress(running bool) {
	if m == nil {
		return
	}
	if running {
		m.inProgress.Set(1)
		return
	}
	m.inProgress.Set(0)
}

// RecordSkipped counts a trigger that found a pass already running.
func (m *SyncMetrics) RecordSkipped() {
	if m == nil {
		return
	}
	m.passesTotal.WithLabelValues("skipped").Inc()
}

// RecordPass records a finished pass.
func (m *SyncMetrics) RecordPass(s PassSummary) {
	if m == nil {
		return
	}
	m.passesTotal.WithLabelValues("completed").Inc()
	m.passDuration.Observe(s.Seconds)
	m.lastPending.Set(float64(s.Attempted))

	for outcome, n := range map[string]int{
		OutcomeCreated:        s.Created,
		OutcomeReconciled:     s.Reconciled,
		OutcomeSynced:         s.Synced,
		OutcomeFailed:         s.Failed,
		OutcomeSkippedMissing: s.SkippedMissing,
	} {
		if n > 0 {
			m.recordsTotal.WithLabelValues(outcome).Add(float64(n))
		}
	}
}
