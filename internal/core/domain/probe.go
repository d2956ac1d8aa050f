package domain

import "time"

// ProbeTier identifies one of the layered health checks.
type ProbeTier string

const (
	TierEndpoint  ProbeTier = "endpoint"
	TierFreshness ProbeTier = "freshness"
	TierCoverage  ProbeTier = "coverage"
)

// FailureKind classifies why a probe tier failed.
type FailureKind string

const (
	FailureTimeout    FailureKind = "timeout"
	FailureConnection FailureKind = "connection"
	FailureStatus     FailureKind = "status"
	FailureStale      FailureKind = "stale"
	FailureCoverage   FailureKind = "coverage"
	FailureQuery      FailureKind = "query"
)

// TierFailure records a single failed probe tier.
type TierFailure struct {
	Tier   ProbeTier   `json:"tier"`
	Kind   FailureKind `json:"kind"`
	Detail string      `json:"detail"`
}

// ProbeResult is the outcome of one full probe pass. Results are transient:
// they feed the state machine and metrics but are never persisted.
type ProbeResult struct {
	TargetID          string        `json:"target_id"`
	ProbedAt          time.Time     `json:"probed_at"`
	Duration          time.Duration `json:"duration"`
	Healthy           bool          `json:"healthy"`
	EndpointReachable bool          `json:"endpoint_reachable"`
	DataChecked       bool          `json:"data_checked"`
	LastSyncedAt      time.Time     `json:"last_synced_at"`
	DataAge           time.Duration `json:"data_age"`
	FreshAccounts     int           `json:"fresh_accounts"`
	TotalAccounts     int           `json:"total_accounts"`
	FreshRatio        float64       `json:"fresh_ratio"`
	Failures          []TierFailure `json:"failures,omitempty"`
}

// FailureFor returns the recorded failure for a tier, if any.
func (r *ProbeResult) FailureFor(tier ProbeTier) (TierFailure, bool) {
	for _, f := range r.Failures {
		if f.Tier == tier {
			return f, true
		}
	}
	return TierFailure{}, false
}
