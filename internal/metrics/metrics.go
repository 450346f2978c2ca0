// Package metrics exposes Prometheus collectors for a katana run.
//
// Each engine owns its own registry so concurrent engines (and tests) do
// not share counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for one run.
type Metrics struct {
	registry *prometheus.Registry

	UnitsSelected      *prometheus.CounterVec
	CasesEvaluated     *prometheus.CounterVec
	EvaluationFailures *prometheus.CounterVec
	SelectionFailures  prometheus.Counter
	DepthLimited       prometheus.Counter
	FlagsFound         prometheus.Counter
	EvaluationDuration *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		UnitsSelected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "katana",
			Name:      "units_selected_total",
			Help:      "Units instantiated and queued, by unit name.",
		}, []string{"unit"}),
		CasesEvaluated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "katana",
			Name:      "cases_evaluated_total",
			Help:      "Cases evaluated, by unit name.",
		}, []string{"unit"}),
		EvaluationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "katana",
			Name:      "evaluation_failures_total",
			Help:      "Evaluations or case enumerations that failed, by unit name.",
		}, []string{"unit"}),
		SelectionFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "katana",
			Name:      "selection_failures_total",
			Help:      "Recursion branches aborted by a selection error.",
		}),
		DepthLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "katana",
			Name:      "depth_limited_total",
			Help:      "Recursion attempts refused by the depth limit.",
		}),
		FlagsFound: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "katana",
			Name:      "flags_found_total",
			Help:      "Distinct flags found.",
		}),
		EvaluationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "katana",
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent in a single Evaluate call.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"unit"}),
	}
}

// RegisterQueue exposes queue gauges backed by the given functions.
func (m *Metrics) RegisterQueue(depth, unfinished func() int) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "katana",
			Name:      "queue_depth",
			Help:      "Work items waiting in the queue.",
		}, func() float64 { return float64(depth()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "katana",
			Name:      "queue_unfinished",
			Help:      "Work items queued or being evaluated.",
		}, func() float64 { return float64(unfinished()) }),
	)
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
