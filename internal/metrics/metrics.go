// Package metrics exposes the agent's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the agent records into. One instance per
// process, registered on its own registry so tests can create throwaways.
type Metrics struct {
	registry *prometheus.Registry

	TriggersTotal        *prometheus.CounterVec
	RecommendationsTotal *prometheus.CounterVec
	RendersTotal         prometheus.Counter
	RenderErrorsTotal    prometheus.Counter
	PagesMounted         prometheus.Gauge
	PersistFailuresTotal prometheus.Counter
	BridgeEventsTotal    *prometheus.CounterVec
	RecommendDuration    prometheus.Histogram
	HTTPRequestsTotal    *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		TriggersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pm_agent_triggers_total",
			Help: "Interaction triggers that passed the dwell and rate policies.",
		}, []string{"kind"}),
		RecommendationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pm_agent_recommendations_total",
			Help: "Recommendation requests by outcome.",
		}, []string{"outcome"}),
		RendersTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "pm_agent_panel_renders_total",
			Help: "Overlay panel render evaluations.",
		}),
		RenderErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "pm_agent_panel_render_errors_total",
			Help: "Overlay panel renders that failed.",
		}),
		PagesMounted: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pm_agent_pages_mounted",
			Help: "Market pages with a live overlay mount.",
		}),
		PersistFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "pm_agent_persist_failures_total",
			Help: "Storage writes that failed or were dropped by quota.",
		}),
		BridgeEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pm_agent_bridge_events_total",
			Help: "Events received from page bridges.",
		}, []string{"kind"}),
		RecommendDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pm_agent_recommend_duration_seconds",
			Help:    "Wall time of recommendation round trips to the backend.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pm_agent_http_requests_total",
			Help: "Control API requests by method and status.",
		}, []string{"method", "status"}),
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
