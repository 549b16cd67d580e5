package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lunchmind"

// Metrics holds every collector the engine records into. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	sessions        *prometheus.GaugeVec
	sessionEvents   *prometheus.CounterVec
	acquireWait     prometheus.Histogram
	probeOutcomes   *prometheus.CounterVec
	cacheRequests   *prometheus.CounterVec
	distanceSources *prometheus.CounterVec
	discoverLatency prometheus.Histogram
}

// New registers the collectors on reg. Passing nil uses a private registry,
// which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		sessions: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "sessions",
			Help:      "Pooled rendering sessions by state.",
		}, []string{"state"}),
		sessionEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "session_events_total",
			Help:      "Session lifecycle events (created, destroyed, overflow, create_failed).",
		}, []string{"event"}),
		acquireWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "acquire_wait_seconds",
			Help:      "Time spent waiting in Acquire.",
			Buckets:   []float64{.001, .01, .05, .1, .25, .5, 1, 2, 5},
		}),
		probeOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "probe_outcomes_total",
			Help:      "Fan-out task outcomes by strategy.",
		}, []string{"strategy", "outcome"}),
		cacheRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Cache lookups by kind and result (hit, miss, expired, error).",
		}, []string{"kind", "result"}),
		distanceSources: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "geo",
			Name:      "distance_source_total",
			Help:      "Which fallback step produced each distance.",
		}, []string{"source"}),
		discoverLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "discover_duration_seconds",
			Help:      "End to end Discover latency.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}
}

func (m *Metrics) SetSessions(idle, inUse int) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues("idle").Set(float64(idle))
	m.sessions.WithLabelValues("in_use").Set(float64(inUse))
}

func (m *Metrics) SessionEvent(event string) {
	if m == nil {
		return
	}
	m.sessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) ObserveAcquire(d time.Duration) {
	if m == nil {
		return
	}
	m.acquireWait.Observe(d.Seconds())
}

func (m *Metrics) ProbeOutcome(strategy, outcome string) {
	if m == nil {
		return
	}
	m.probeOutcomes.WithLabelValues(strategy, outcome).Inc()
}

func (m *Metrics) CacheRequest(kind, result string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) DistanceSource(source string) {
	if m == nil {
		return
	}
	m.distanceSources.WithLabelValues(source).Inc()
}

func (m *Metrics) ObserveDiscover(d time.Duration) {
	if m == nil {
		return
	}
	m.discoverLatency.Observe(d.Seconds())
}
