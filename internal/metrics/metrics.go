// Package metrics declares the Prometheus collectors Lattice exports on
// /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// StoreMutations counts committed knowledge-graph changes by kind.
	StoreMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lattice",
		Subsystem: "store",
		Name:      "mutations_total",
		Help:      "Committed store changes by kind.",
	}, []string{"kind"})

	// SuggestionRequests counts provider calls by call and outcome
	// (ok, error, superseded).
	SuggestionRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lattice",
		Subsystem: "suggest",
		Name:      "requests_total",
		Help:      "Suggestion provider calls by call and outcome.",
	}, []string{"call", "outcome"})

	// SuggestionLatency observes provider call latency in seconds.
	SuggestionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lattice",
		Subsystem: "suggest",
		Name:      "request_duration_seconds",
		Help:      "Suggestion provider call latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"call"})

	// Imports counts import attempts by source and outcome.
	Imports = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lattice",
		Subsystem: "import",
		Name:      "total",
		Help:      "Import attempts by source and outcome.",
	}, []string{"source", "outcome"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
