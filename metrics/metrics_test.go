package metrics_test

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lunchmind/metrics"
)

func TestMetrics_Record(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.SetSessions(1, 2)
	m.SessionEvent("created")
	m.SessionEvent("created")
	m.ProbeOutcome("maps", "ok")
	m.CacheRequest("search", "hit")
	m.DistanceSource("routed")
	m.ObserveAcquire(20 * time.Millisecond)
	m.ObserveDiscover(time.Second)

	expected := `
# HELP lunchmind_pool_session_events_total Session lifecycle events (created, destroyed, overflow, create_failed).
# TYPE lunchmind_pool_session_events_total counter
lunchmind_pool_session_events_total{event="created"} 2
# HELP lunchmind_pool_sessions Pooled rendering sessions by state.
# TYPE lunchmind_pool_sessions gauge
lunchmind_pool_sessions{state="idle"} 1
lunchmind_pool_sessions{state="in_use"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"lunchmind_pool_session_events_total", "lunchmind_pool_sessions"))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
}

func TestMetrics_NilRecordsNothing(t *testing.T) {
	t.Parallel()
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.SetSessions(1, 1)
		m.SessionEvent("created")
		m.ProbeOutcome("maps", "ok")
		m.CacheRequest("search", "miss")
		m.DistanceSource("unknown")
		m.ObserveAcquire(time.Millisecond)
		m.ObserveDiscover(time.Millisecond)
	})
}
