// Package metrics provides the Prometheus collectors for shelf.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shelf"

var (
	ScanOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_outcomes_total",
			Help:      "Scanner operation outcomes by operation and status",
		},
		[]string{"operation", "status"},
	)

	InferenceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "duration_seconds",
			Help:      "Model call latency by stage",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 15},
		},
		[]string{"stage"},
	)

	CatalogBooks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "books",
			Help:      "Number of books in the global catalog",
		},
	)

	CatalogRebuilds = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "index_rebuilds_total",
			Help:      "Vector index rebuilds after a catalog and index mismatch",
		},
	)

	OwnershipCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ownership",
			Name:      "cache_lookups_total",
			Help:      "Ownership cache lookups by result",
		},
		[]string{"result"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Book events handed to the publisher by result",
		},
		[]string{"result"},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	BreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "transitions_total",
			Help:      "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)
)

// RecordOutcome counts one scanner operation outcome.
func RecordOutcome(operation, status string) {
	ScanOutcomes.WithLabelValues(operation, status).Inc()
}

// ObserveInference records the latency of a model call started at start.
func ObserveInference(stage string, start time.Time) {
	InferenceDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// CacheResult counts an ownership cache hit or miss.
func CacheResult(hit bool) {
	if hit {
		OwnershipCache.WithLabelValues("hit").Inc()
		return
	}
	OwnershipCache.WithLabelValues("miss").Inc()
}

// EventResult counts a publish attempt.
func EventResult(err error) {
	if err != nil {
		EventsPublished.WithLabelValues("error").Inc()
		return
	}
	EventsPublished.WithLabelValues("ok").Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
