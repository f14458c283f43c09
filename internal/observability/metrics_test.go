package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/catchsync/internal/observability/metrics"
)

func gather(t *testing.T, m *Metrics) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)

	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func counterWithLabel(f *dto.MetricFamily, name, value string) float64 {
	if f == nil {
		return 0
	}
	for _, m := range f.GetMetric() {
		for _, l := range m.GetLabel() {
			if l.GetName() == name && l.GetValue() == value {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestSyncMetricsRecordPass(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	m.Sync.SetInProgress(true)
	m.Sync.RecordSkipped()
	m.Sync.RecordPass(metrics.PassSummary{
		Seconds:        0.3,
		Attempted:      3,
		Created:        2,
		Reconciled:     1,
		Synced:         2,
		Failed:         1,
		SkippedMissing: 0,
	})
	m.Sync.SetInProgress(false)

	families := gather(t, m)

	passes := families["catchsync_sync_passes_total"]
	assert.InDelta(t, 1, counterWithLabel(passes, "status", "completed"), 0)
	assert.InDelta(t, 1, counterWithLabel(passes, "status", "skipped"), 0)

	records := families["catchsync_sync_records_total"]
	assert.InDelta(t, 2, counterWithLabel(records, "outcome", metrics.OutcomeCreated), 0)
	assert.InDelta(t, 1, counterWithLabel(records, "outcome", metrics.OutcomeFailed), 0)
	assert.InDelta(t, 0, counterWithLabel(records, "outcome", metrics.OutcomeSkippedMissing), 0)

	assert.InDelta(t, 3, families["catchsync_sync_last_pass_pending"].GetMetric()[0].GetGauge().GetValue(), 0)
	assert.InDelta(t, 0, families["catchsync_sync_in_progress"].GetMetric()[0].GetGauge().GetValue(), 0)
	assert.Equal(t, uint64(1), families["catchsync_sync_pass_duration_seconds"].GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestNilSyncMetricsAreSafe(t *testing.T) {
	var m *metrics.SyncMetrics
	assert.NotPanics(t, func() {
		m.SetInProgress(true)
		m.RecordSkipped()
		m.RecordPass(metrics.PassSummary{Created: 1})
	})
}

func TestGatewayMetricsRecorder(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	var rec metrics.Recorder = m.Gateway
	rec.RecordOperation(metrics.OpCreate, metrics.StatusSuccess)
	rec.RecordOperation(metrics.OpCreate, metrics.StatusError)
	rec.RecordError(metrics.OpCreate, "network")
	rec.RecordDuration(metrics.OpCreate, 0.05)

	families := gather(t, m)
	assert.InDelta(t, 1, counterWithLabel(families["catchsync_gateway_request_errors_total"], "error_type", "network"), 0)
	assert.Len(t, families["catchsync_gateway_requests_total"].GetMetric(), 2)
}

func TestMetricsHandler(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)
	m.Sync.RecordSkipped()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `catchsync_sync_passes_total{status="skipped"} 1`))
}

func TestNewMetricsIsolatedRegistries(t *testing.T) {
	// each call owns its registry, so repeated construction never collides
	for range 3 {
		_, err := NewMetrics()
		require.NoError(t, err)
	}
}
