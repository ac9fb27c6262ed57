// Package metrics holds the Prometheus collectors for the realtime router and
// the query pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector the service exports. A nil *Metrics is valid
// and records nothing, so components can run without instrumentation.
type Metrics struct {
	// ActiveConnections tracks open websocket connections.
	ActiveConnections prometheus.Gauge

	// Deliveries counts events enqueued to a connection.
	// Labels: kind (new_message|typing_indicator|user_status|llm_response|...)
	Deliveries *prometheus.CounterVec

	// Drops counts events discarded because a connection's outbound buffer was full.
	Drops prometheus.Counter

	// Evictions counts connections closed after too many consecutive drops.
	Evictions prometheus.Counter

	// QueryOutcomes counts terminal pipeline states.
	// Labels: status (succeeded|rejected|failed), reason
	QueryOutcomes *prometheus.CounterVec

	// QueryDuration measures end-to-end pipeline latency in seconds.
	// Buckets: 0.1s .. 60s
	QueryDuration prometheus.Histogram

	// AuditFailures counts audit entries that could not be queued or persisted.
	AuditFailures prometheus.Counter
}

// New registers all collectors with reg. Pass prometheus.DefaultRegisterer in
// production and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chat_ws_active_connections",
			Help: "Number of open websocket connections",
		}),
		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_fanout_deliveries_total",
			Help: "Events enqueued to connections",
		}, []string{"kind"}),
		Drops: factory.NewCounter(prometheus.CounterOpts{
			Name: "chat_fanout_drops_total",
			Help: "Events dropped for slow consumers",
		}),
		Evictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "chat_fanout_evictions_total",
			Help: "Connections evicted after exceeding the consecutive drop threshold",
		}),
		QueryOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_query_outcomes_total",
			Help: "Terminal query pipeline states",
		}, []string{"status", "reason"}),
		QueryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "chat_query_duration_seconds",
			Help:    "End-to-end query pipeline latency",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		AuditFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "chat_query_audit_failures_total",
			Help: "Audit entries lost",
		}),
	}
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ActiveConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ActiveConnections.Dec()
}

func (m *Metrics) Delivered(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.Deliveries.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) Dropped(n int) {
	if m == nil || n == 0 {
		return
	}
	m.Drops.Add(float64(n))
}

func (m *Metrics) Evicted() {
	if m == nil {
		return
	}
	m.Evictions.Inc()
}

func (m *Metrics) QueryFinished(status, reason string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.QueryOutcomes.WithLabelValues(status, reason).Inc()
	m.QueryDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) AuditFailed() {
	if m == nil {
		return
	}
	m.AuditFailures.Inc()
}
