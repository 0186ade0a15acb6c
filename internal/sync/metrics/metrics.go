package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsProcessed tracks processed records per resource and outcome
	RecordsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncer_records_processed_total",
			Help: "Total number of records processed",
		},
		[]string{"resource", "outcome"},
	)

	// SyncErrorsTotal tracks classified errors per category and severity
	SyncErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncer_errors_total",
			Help: "Total number of classified sync errors",
		},
		[]string{"category", "severity"},
	)

	// BatchDuration tracks batch processing latency per resource
	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "syncer_batch_duration_seconds",
			Help:    "Batch processing latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"resource"},
	)

	// RetryAttempts tracks retry attempts per operation
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncer_retry_attempts_total",
			Help: "Total number of retry attempts",
		},
		[]string{"operation"},
	)

	// CircuitBreakerState tracks breaker state per operation (0 closed, 1 open, 2 half-open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "syncer_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"operation"},
	)

	// ActiveSessions tracks sessions currently in a non-terminal state
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "syncer_active_sessions",
			Help: "Number of sessions in pending, running or paused state",
		},
	)

	// IntegrityScore tracks the latest verification score
	IntegrityScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "syncer_integrity_score",
			Help: "Latest integrity verification score (0-100)",
		},
	)

	// DBConnectionPoolUsage tracks database pool utilization
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "syncer_db_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
