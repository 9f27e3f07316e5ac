package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion
	IngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linker_ingest_total",
			Help: "Linker reports processed, by result",
		},
		[]string{"result"},
	)

	ExclusionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linker_exclusions_total",
			Help: "Webpages excluded from the index, by reason",
		},
		[]string{"reason"},
	)

	// Maintenance
	SweepChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linker_sweep_changes_total",
			Help: "Records changed by maintenance sweeps",
		},
		[]string{"sweep", "kind"},
	)

	// Serving
	ResolveDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "linker_resolve_duration_seconds",
			Help:    "Time to resolve webpages for a citation",
			Buckets: prometheus.DefBuckets,
		},
	)

	ResolveSoftFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "linker_resolve_soft_failures_total",
			Help: "Citation queries answered with an empty result after a store rejection",
		},
	)

	// Registry
	RegistryLoads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "linker_registry_loads_total",
			Help: "Site registry cache populations",
		},
	)
)
