// Package metrics provides Prometheus metrics collection for sitepulse.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for sitepulse.
type Collector struct {
	// Ingestion metrics
	EventsIngested prometheus.Counter
	IngestFailures *prometheus.CounterVec
	RateLimitHits  prometheus.Counter
	FlushBatchSize prometheus.Histogram

	// Query metrics
	QueryDuration *prometheus.HistogramVec
	QueryFailures prometheus.Counter

	// Retention metrics
	RetentionDeleted *prometheus.CounterVec
	RetentionRuns    prometheus.Counter
}

// New creates a new metrics collector with all metrics registered on reg
// (nil uses the default registerer).
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		EventsIngested: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sitepulse",
			Name:      "events_ingested_total",
			Help:      "Total page-view events accepted for recording",
		}),
		IngestFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitepulse",
			Name:      "ingest_failures_total",
			Help:      "Ingestion failures by stage (validation, storage, geo)",
		}, []string{"stage"}),
		RateLimitHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sitepulse",
			Name:      "rate_limit_hits_total",
			Help:      "Ingestion requests rejected by the rate limiter",
		}),
		FlushBatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sitepulse",
			Name:      "flush_batch_size",
			Help:      "Events per recorder flush",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),
		QueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sitepulse",
			Name:      "query_duration_seconds",
			Help:      "Analytics query duration by strategy",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"strategy"}),
		QueryFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sitepulse",
			Name:      "query_failures_total",
			Help:      "Analytics queries degraded to a zero-valued result",
		}),
		RetentionDeleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitepulse",
			Name:      "retention_deleted_total",
			Help:      "Rows removed by retention sweeps, by entity",
		}, []string{"entity"}),
		RetentionRuns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sitepulse",
			Name:      "retention_runs_total",
			Help:      "Retention sweeps executed",
		}),
	}
}
