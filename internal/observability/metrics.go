// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	// Ingestion metrics
	FilesIngested  *prometheus.CounterVec // by status
	RowsIngested   prometheus.Counter
	IngestDuration prometheus.Histogram

	// Standardization metrics
	RowsStandardized  prometheus.Counter
	RowsRejected      *prometheus.CounterVec // by reason
	MappingConfigMiss prometheus.Counter

	// Identity metrics
	OrgsCreated       prometheus.Counter
	ExactMatches      prometheus.Counter
	FuzzyMatches      prometheus.Counter
	TypePromotions    prometheus.Counter
	UnresolvedDropped prometheus.Counter

	// Ledger metrics
	FactsCreated prometheus.Counter
	FactsSkipped *prometheus.CounterVec // by reason (invalid, duplicate)

	// Mirror metrics
	MirrorMatched  prometheus.Counter
	MirrorSkipped  *prometheus.CounterVec // no_candidates, low_score, ambiguous
	MirrorDuration prometheus.Histogram

	// Analytics metrics
	ProfilesBuilt   *prometheus.CounterVec // buyer, exporter
	CorridorsBuilt  prometheus.Counter
	LanesBuilt      prometheus.Counter
	OpinionsWritten *prometheus.CounterVec // by level

	// Pipeline metrics
	PipelineRunsTotal *prometheus.CounterVec // stage, status
	StageDuration     *prometheus.HistogramVec

	// Database metrics
	DBQueryErrors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "tradeledger"
	}

	return &Metrics{
		FilesIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "files_total",
			Help:      "Total number of files processed by ingestion, by terminal status",
		}, []string{"status"}),
		RowsIngested: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "rows_total",
			Help:      "Total number of raw rows bulk-loaded",
		}),
		IngestDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "file_duration_seconds",
			Help:      "Per-file ingestion duration",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),

		RowsStandardized: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "standardize",
			Name:      "rows_total",
			Help:      "Total number of standardized rows inserted",
		}),
		RowsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "standardize",
			Name:      "rows_rejected_total",
			Help:      "Total number of raw rows rejected by mapping, by reason",
		}, []string{"reason"}),
		MappingConfigMiss: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "standardize",
			Name:      "config_missing_total",
			Help:      "Total number of files failed for a missing mapping config",
		}),

		OrgsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "orgs_created_total",
			Help:      "Total number of organizations created",
		}),
		ExactMatches: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "exact_matches_total",
			Help:      "Total number of exact name matches",
		}),
		FuzzyMatches: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "fuzzy_matches_total",
			Help:      "Total number of trigram fuzzy matches",
		}),
		TypePromotions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "type_promotions_total",
			Help:      "Total number of BUYER/SUPPLIER to MIXED promotions",
		}),
		UnresolvedDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "unresolved_dropped_total",
			Help:      "Total number of candidates dropped (empty after normalization)",
		}),

		FactsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "facts_created_total",
			Help:      "Total number of ledger facts created",
		}),
		FactsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "facts_skipped_total",
			Help:      "Total number of standardized rows not promoted, by reason",
		}, []string{"reason"}),

		MirrorMatched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mirror",
			Name:      "matched_total",
			Help:      "Total number of accepted mirror matches",
		}),
		MirrorSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mirror",
			Name:      "skipped_total",
			Help:      "Total number of exports left unmatched, by reason",
		}, []string{"reason"}),
		MirrorDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mirror",
			Name:      "export_duration_seconds",
			Help:      "Per-export candidate search and scoring duration",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),

		ProfilesBuilt: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analytics",
			Name:      "profiles_built_total",
			Help:      "Total number of profiles recomputed, by kind",
		}, []string{"kind"}),
		CorridorsBuilt: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analytics",
			Name:      "corridors_built_total",
			Help:      "Total number of price corridors recomputed",
		}),
		LanesBuilt: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analytics",
			Name:      "lanes_built_total",
			Help:      "Total number of lane stats recomputed",
		}),
		OpinionsWritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "opinions_total",
			Help:      "Total number of risk opinions upserted, by level",
		}, []string{"level"}),

		PipelineRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs, by stage and terminal status",
		}, []string{"stage", "status"}),
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Stage run duration",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
		}, []string{"stage"}),

		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_errors_total",
			Help:      "Total number of database errors, by store",
		}, []string{"store"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
