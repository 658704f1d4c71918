// Package metrics defines the Prometheus instruments exported on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all custom Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Chat metrics
	Turns            *prometheus.CounterVec
	TurnLatency      prometheus.Histogram
	GenerationErrors prometheus.Counter
	ContactFields    *prometheus.CounterVec

	// Lead sink metrics
	LeadsSynced    prometheus.Counter
	LeadSyncErrors prometheus.Counter
	SessionsPruned prometheus.Counter

	// Transport metrics
	WebSocketConnections prometheus.Gauge
	RateLimited          prometheus.Counter

	// Knowledge metrics
	KnowledgeChunks prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New registers the metrics on reg. Pass a fresh prometheus.NewRegistry()
// in tests to avoid duplicate registration.
func New(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: gatherer,

		Turns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leadbot_chat_turns_total",
			Help: "Chat turns processed by orchestrator branch and intent",
		}, []string{"branch", "intent"}),

		// Generation dominates; buckets reach the default timeout.
		TurnLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "leadbot_chat_turn_duration_seconds",
			Help:    "Chat turn latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}),

		GenerationErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "leadbot_generation_errors_total",
			Help: "Generation or retrieval failures answered with the fallback apology",
		}),

		ContactFields: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leadbot_contact_fields_collected_total",
			Help: "Contact fields captured from visitor messages",
		}, []string{"field"}),

		LeadsSynced: f.NewCounter(prometheus.CounterOpts{
			Name: "leadbot_leads_synced_total",
			Help: "Lead rows written to the lead sink",
		}),

		LeadSyncErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "leadbot_lead_sync_errors_total",
			Help: "Failed lead sink writes",
		}),

		SessionsPruned: f.NewCounter(prometheus.CounterOpts{
			Name: "leadbot_sessions_pruned_total",
			Help: "Sessions removed by the retention sweep",
		}),

		WebSocketConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "leadbot_websocket_connections_active",
			Help: "Number of active chat WebSocket connections",
		}),

		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Name: "leadbot_rate_limited_requests_total",
			Help: "Requests rejected by the rate limiter",
		}),

		KnowledgeChunks: f.NewGauge(prometheus.GaugeOpts{
			Name: "leadbot_knowledge_chunks",
			Help: "Chunks currently held by the knowledge index",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveTurn records one processed turn.
func (m *Metrics) ObserveTurn(branch, intent string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(branch, intent).Inc()
	m.TurnLatency.Observe(elapsed.Seconds())
}

// GenerationFailed counts a turn answered with the apology.
func (m *Metrics) GenerationFailed() {
	if m == nil {
		return
	}
	m.GenerationErrors.Inc()
}

// ContactField counts a newly captured contact field.
func (m *Metrics) ContactField(field string) {
	if m == nil {
		return
	}
	m.ContactFields.WithLabelValues(field).Inc()
}

// LeadSync records the outcome of one lead sink write.
func (m *Metrics) LeadSync(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.LeadSyncErrors.Inc()
		return
	}
	m.LeadsSynced.Inc()
}

// Pruned counts sessions removed by retention.
func (m *Metrics) Pruned(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionsPruned.Add(float64(n))
}

// SocketOpened and SocketClosed track live WebSocket connections.
func (m *Metrics) SocketOpened() {
	if m == nil {
		return
	}
	m.WebSocketConnections.Inc()
}

func (m *Metrics) SocketClosed() {
	if m == nil {
		return
	}
	m.WebSocketConnections.Dec()
}

// Limited counts a rate-limited request.
func (m *Metrics) Limited() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}

// Chunks sets the knowledge index size.
func (m *Metrics) Chunks(n int) {
	if m == nil {
		return
	}
	m.KnowledgeChunks.Set(float64(n))
}
