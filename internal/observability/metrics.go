package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	SessionEvents          *prometheus.CounterVec
	ChatTurns              *prometheus.CounterVec
	ConversationRecoveries prometheus.Counter
	UpstreamErrors         *prometheus.CounterVec
	UpstreamLatency        prometheus.Histogram
	GenerationRuns         *prometheus.CounterVec
	GenerationDuration     prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		ChatTurns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_turns_total",
			Help:      "Chat turns by outcome.",
		}, []string{"outcome"}),
		ConversationRecoveries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_recoveries_total",
			Help:      "Turns recovered by retrying without an expired conversation id.",
		}),
		UpstreamErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Upstream chat API errors by kind.",
		}, []string{"kind"}),
		UpstreamLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_latency_ms",
			Help:      "Upstream chat turn latency in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}),
		GenerationRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_runs_total",
			Help:      "Generation runs by result.",
		}, []string{"result"}),
		GenerationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_ms",
			Help:      "End-to-end generation duration in milliseconds.",
			Buckets:   []float64{500, 1000, 2500, 5000, 10000, 30000, 60000},
		}),
	}
}

func (m *Metrics) ObserveUpstreamLatency(d time.Duration) {
	m.UpstreamLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveGenerationDuration(d time.Duration) {
	m.GenerationDuration.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
