package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fedsearch"

// Search engine metrics.
var (
	EngineRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_requests_total",
			Help:      "Total number of search engine calls",
		},
		[]string{"driver", "op", "status"},
	)

	EngineRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_request_duration_seconds",
			Help:      "Search engine call duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"driver", "op"},
	)
)

// Federated query metrics.
var (
	FederatedSearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "federated_searches_total",
			Help:      "Federated searches by cache outcome",
		},
		[]string{"cache"}, // "hit" / "miss" / "bypass"
	)

	FederationIndexFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "federation_index_failures_total",
			Help:      "Per-index search failures excluded from a merged result",
		},
		[]string{"index"},
	)

	QueryCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_cache_total",
			Help:      "Query result cache lookups",
		},
		[]string{"tier", "result"}, // tier: "local" / "shared"; result: "hit" / "miss"
	)
)

// Indexing pipeline metrics.
var (
	IndexRecreationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_recreations_total",
			Help:      "Destructive index recreations caused by primary key drift",
		},
		[]string{"index"},
	)

	ReconcileConvergenceFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_convergence_failures_total",
			Help:      "Reconciliations whose settings poll hit the attempt ceiling",
		},
		[]string{"index"},
	)

	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Indexing jobs by kind and outcome",
		},
		[]string{"kind", "status"}, // status: "success" / "retry" / "failed"
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Indexing job processing time in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"kind"},
	)

	DocumentsWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_written_total",
			Help:      "Documents flushed to the search engine",
		},
		[]string{"index"},
	)

	TransformFieldFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_field_failures_total",
			Help:      "Computed field evaluations that failed and were nulled",
		},
		[]string{"source_type", "field"},
	)
)

var registerOnce sync.Once

// Register registers the domain metrics with the default registry. Safe to call repeatedly.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			EngineRequestsTotal,
			EngineRequestDuration,
			FederatedSearchesTotal,
			FederationIndexFailuresTotal,
			QueryCacheTotal,
			IndexRecreationsTotal,
			ReconcileConvergenceFailuresTotal,
			JobsTotal,
			JobDuration,
			DocumentsWrittenTotal,
			TransformFieldFailuresTotal,
		)
	})
}

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
