// Package metrics owns the Prometheus collectors of the evaluation engine and
// the telemetry poller.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "formulagrid"

// Evaluation outcomes used as the "outcome" label.
const (
	OutcomeOK        = "ok"
	OutcomeDeferred  = "deferred"
	OutcomeSyntax    = "syntax_error"
	OutcomeUndefined = "undefined"
	OutcomeAmbiguous = "ambiguous"
	OutcomeRange     = "range"
	OutcomeUnknown   = "unknown_error"
)

// Metrics groups every collector on a private registry, so several engines
// can live in one process without colliding on the global registry.
type Metrics struct {
	Registry *prometheus.Registry

	Evaluations        *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram
	DirtyMarks         prometheus.Counter
	LockTimeouts       prometheus.Counter
	DuplicateSymbols   prometheus.Counter
	ExternalEntries    prometheus.Gauge
	PollRuns           *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		Evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Formula evaluations by outcome.",
		}, []string{"outcome"}),
		EvaluationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent inside the formula evaluator.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
		}),
		DirtyMarks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dirty_marks_total",
			Help:      "Expressions marked dirty by propagation.",
		}),
		LockTimeouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_timeouts_total",
			Help:      "Operations abandoned because the evaluation lock was not acquired in time.",
		}),
		DuplicateSymbols: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_symbols_total",
			Help:      "Symbol registrations rejected as duplicates.",
		}),
		ExternalEntries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "external_entries",
			Help:      "Entries currently published in the external data namespace.",
		}),
		PollRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_runs_total",
			Help:      "Telemetry source reads by source and result.",
		}, []string{"source", "result"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
