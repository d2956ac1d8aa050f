package domain

import "time"

// Severity grades operator notifications.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityCritical Severity = "critical"
)

// Alert is an operator notification about a bridge state change.
type Alert struct {
	ID                  string    `json:"id"`
	TargetID            string    `json:"target_id"`
	Severity            Severity  `json:"severity"`
	State               State     `json:"state"`
	Message             string    `json:"message"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	EmittedAt           time.Time `json:"emitted_at"`
}
