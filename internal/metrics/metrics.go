package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ledgerops/bridgewatch/internal/core/domain"
)

var (
	// ProbesTotal tracks probe passes per target and outcome
	ProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridgewatch_probes_total",
			Help: "Total number of probe passes",
		},
		[]string{"target", "result"},
	)

	// ProbeDuration tracks full probe pass latency
	ProbeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridgewatch_probe_duration_seconds",
			Help:    "Probe pass duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"target"},
	)

	// TierFailures tracks failed probe tiers per target and failure kind
	TierFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridgewatch_probe_tier_failures_total",
			Help: "Total number of failed probe tiers",
		},
		[]string{"target", "tier", "kind"},
	)

	// DataAge tracks seconds since the bridge last wrote a record
	DataAge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bridgewatch_data_age_seconds",
			Help: "Seconds since the most recent sync write",
		},
		[]string{"target"},
	)

	// SyncCoverage tracks the fresh account ratio
	SyncCoverage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bridgewatch_sync_coverage_ratio",
			Help: "Fraction of accounts synced within the freshness window",
		},
		[]string{"target"},
	)

	// TargetState tracks the state machine position per target
	TargetState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bridgewatch_target_state",
			Help: "Watchdog state per target (0=healthy 1=degraded 2=healing 3=critical)",
		},
		[]string{"target"},
	)

	// ConsecutiveFailures tracks the current failure streak per target
	ConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bridgewatch_consecutive_failures",
			Help: "Current consecutive probe failure count",
		},
		[]string{"target"},
	)

	// HealingAttempts tracks remediation trigger invocations
	HealingAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridgewatch_healing_attempts_total",
			Help: "Total number of remediation triggers fired",
		},
		[]string{"target"},
	)

	// AlertsTotal tracks operator notifications per severity and outcome
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridgewatch_alerts_total",
			Help: "Total number of alerts by dispatch outcome",
		},
		[]string{"target", "severity", "outcome"},
	)

	// StoreErrors tracks status store failures per operation
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridgewatch_status_store_errors_total",
			Help: "Total number of status store read/write failures",
		},
		[]string{"op"},
	)

	// DBConnectionPoolUsage tracks connection pool utilization percent
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bridgewatch_db_connection_pool_usage",
			Help: "Database connection pool usage percentage",
		},
	)
)

// StateCode maps a watchdog state to its gauge value.
func StateCode(s domain.State) float64 {
	switch s {
	case domain.StateHealthy:
		return 0
	case domain.StateDegraded:
		return 1
	case domain.StateHealing:
		return 2
	case domain.StateCritical:
		return 3
	default:
		return -1
	}
}
