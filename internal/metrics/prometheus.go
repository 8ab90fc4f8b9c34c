package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result label values on swarmfire_outcomes_total.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
)

// Exporter publishes outcomes as Prometheus metrics on a private registry.
type Exporter struct {
	registry *prometheus.Registry
	outcomes *prometheus.CounterVec
	duration *prometheus.HistogramVec
	agents   *prometheus.GaugeVec
}

// NewExporter creates an exporter with its own registry so that several runs
// in one process (and tests) do not collide on the default registerer.
func NewExporter() *Exporter {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Exporter{
		registry: reg,
		outcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swarmfire_outcomes_total",
				Help: "Total number of task outcomes by route and result",
			},
			[]string{"method", "route", "result"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swarmfire_request_duration_seconds",
				Help:    "Request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		agents: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "swarmfire_agents",
				Help: "Number of virtual user agents by lifecycle state",
			},
			[]string{"state"},
		),
	}
}

// Record implements Recorder.
func (e *Exporter) Record(o Outcome) {
	switch {
	case o.Skipped:
		e.outcomes.WithLabelValues(o.Method, o.Label, ResultSkipped).Inc()
		return
	case o.Success:
		e.outcomes.WithLabelValues(o.Method, o.Label, ResultSuccess).Inc()
	default:
		e.outcomes.WithLabelValues(o.Method, o.Label, ResultFailure).Inc()
	}
	e.duration.WithLabelValues(o.Method, o.Label).Observe(o.Latency.Seconds())
}

// SetAgents records the number of agents currently in state.
func (e *Exporter) SetAgents(state string, n int) {
	e.agents.WithLabelValues(state).Set(float64(n))
}

// Handler returns the HTTP handler serving the exporter's registry.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}
