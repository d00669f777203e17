// Package metrics holds the Prometheus collectors recorded by the engine.
//
// Collectors are created per Metrics instance against an injected
// registerer so that several engines (and tests) can coexist in one
// process. Every method is safe to call on a nil *Metrics, which records
// nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tsrewrite"

// Metrics groups the engine's collectors.
type Metrics struct {
	// parses counts successful parses.
	// Labels: language, status (ok, syntax_error)
	parses *prometheus.CounterVec

	// queryCompiles counts query compilations.
	// Labels: result (ok, or the error kind)
	queryCompiles *prometheus.CounterVec

	// queryCache counts compiled-query cache lookups.
	// Labels: result (hit, miss)
	queryCache *prometheus.CounterVec

	// matches counts matches yielded to callers after predicate filtering.
	matches prometheus.Counter

	// predicateRejections counts matches dropped by a predicate.
	// Labels: predicate
	predicateRejections *prometheus.CounterVec

	// transformPasses observes how many passes a transformation ran.
	// Labels: status (converged, non_convergent, error)
	transformPasses *prometheus.HistogramVec

	// transformEdits counts replacements applied across all passes.
	transformEdits prometheus.Counter
}

// New creates and registers the collectors with reg.
// A nil reg creates working collectors that are not registered anywhere.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		parses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parses_total",
			Help:      "Total source texts parsed",
		}, []string{"language", "status"}),

		queryCompiles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_compiles_total",
			Help:      "Total query compilations by result",
		}, []string{"result"}),

		queryCache: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query_cache",
			Name:      "lookups_total",
			Help:      "Compiled query cache lookups by result",
		}, []string{"result"}),

		matches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_total",
			Help:      "Total matches yielded after predicate filtering",
		}),

		predicateRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predicate_rejections_total",
			Help:      "Total candidate matches rejected by a predicate",
		}, []string{"predicate"}),

		transformPasses: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transform",
			Name:      "passes",
			Help:      "Number of passes run by a transformation",
			Buckets:   []float64{1, 2, 3, 5, 10, 25, 50, 100},
		}, []string{"status"}),

		transformEdits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transform",
			Name:      "edits_total",
			Help:      "Total replacements applied by transformations",
		}),
	}
}

// ParseCompleted records one parse. hasError is true when the tree
// contains error or missing nodes.
func (m *Metrics) ParseCompleted(language string, hasError bool) {
	if m == nil {
		return
	}
	status := "ok"
	if hasError {
		status = "syntax_error"
	}
	m.parses.WithLabelValues(language, status).Inc()
}

// QueryCompiled records a compilation result. result is "ok" or an error
// kind name.
func (m *Metrics) QueryCompiled(result string) {
	if m == nil {
		return
	}
	m.queryCompiles.WithLabelValues(result).Inc()
}

// QueryCacheLookup records a compiled-query cache hit or miss.
func (m *Metrics) QueryCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.queryCache.WithLabelValues("hit").Inc()
		return
	}
	m.queryCache.WithLabelValues("miss").Inc()
}

// MatchYielded records one match returned to a caller.
func (m *Metrics) MatchYielded() {
	if m == nil {
		return
	}
	m.matches.Inc()
}

// PredicateRejected records a match dropped by the named predicate.
func (m *Metrics) PredicateRejected(predicate string) {
	if m == nil {
		return
	}
	m.predicateRejections.WithLabelValues(predicate).Inc()
}

// TransformFinished records the outcome of one transformation run.
func (m *Metrics) TransformFinished(status string, passes, edits int) {
	if m == nil {
		return
	}
	m.transformPasses.WithLabelValues(status).Observe(float64(passes))
	m.transformEdits.Add(float64(edits))
}
