package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AttemptsTotal tracks individual operation attempts per key and outcome.
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_attempts_total",
			Help: "Total number of operation attempts",
		},
		[]string{"key", "outcome"},
	)

	// RetriesTotal tracks scheduled retries per key and error kind.
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_retries_total",
			Help: "Total number of retries scheduled",
		},
		[]string{"key", "kind"},
	)

	// RetryDelay tracks the backoff delays applied before retries.
	RetryDelay = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "resilience_retry_delay_seconds",
			Help:    "Backoff delay applied before a retry",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"key"},
	)

	// ExecutionDuration tracks wall time of whole executions (all attempts).
	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "resilience_execution_duration_seconds",
			Help:    "Total execution time including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"key", "outcome"},
	)

	// CircuitState exposes the current circuit state per key
	// (0=closed, 1=open, 2=half-open).
	CircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "resilience_circuit_state",
			Help: "Circuit state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"key"},
	)

	// CircuitTransitionsTotal tracks state machine transitions per key.
	CircuitTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_circuit_transitions_total",
			Help: "Total number of circuit state transitions",
		},
		[]string{"key", "to"},
	)

	// CircuitRejectionsTotal tracks calls rejected by an open circuit.
	CircuitRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_circuit_rejections_total",
			Help: "Total number of calls rejected by an open circuit",
		},
		[]string{"key"},
	)

	// InflightRetries tracks retries currently holding the retry budget.
	InflightRetries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "resilience_inflight_retries",
			Help: "Number of retries currently in flight",
		},
	)

	// BudgetExhaustedTotal tracks retries abandoned because the budget was full.
	BudgetExhaustedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_budget_exhausted_total",
			Help: "Total number of retries abandoned due to budget exhaustion",
		},
		[]string{"key"},
	)
)
