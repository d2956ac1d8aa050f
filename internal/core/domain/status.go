package domain

import "time"

// State is the watchdog's current assessment of a monitored bridge.
type State string

const (
	StateHealthy  State = "healthy"
	StateDegraded State = "degraded"
	StateHealing  State = "healing"
	StateCritical State = "critical"
)

// WatchdogStatus is the persisted monitoring record for a single bridge
// target. Exactly one record exists per target; the watchdog loop is its
// only writer.
type WatchdogStatus struct {
	TargetID             string                 `json:"target_id"`
	State                State                  `json:"state"`
	ConsecutiveFailures  int                    `json:"consecutive_failures"`
	HealingAttemptsTotal int64                  `json:"healing_attempts_total"`
	LastProbeAt          time.Time              `json:"last_probe_at"`
	LastHealthyAt        time.Time              `json:"last_healthy_at"`
	LastHealingAttemptAt time.Time              `json:"last_healing_attempt_at"`
	LastAlertAt          map[Severity]time.Time `json:"last_alert_at"`
	UpdatedAt            time.Time              `json:"updated_at"`
}

// NewWatchdogStatus returns the initial record for a target: healthy until
// a probe says otherwise.
func NewWatchdogStatus(targetID string) *WatchdogStatus {
	return &WatchdogStatus{
		TargetID:    targetID,
		State:       StateHealthy,
		LastAlertAt: make(map[Severity]time.Time),
	}
}

// LastAlert returns when the last alert of the given severity was dispatched.
func (s *WatchdogStatus) LastAlert(sev Severity) (time.Time, bool) {
	t, ok := s.LastAlertAt[sev]
	return t, ok
}

// MarkAlerted records an alert dispatch time for a severity.
func (s *WatchdogStatus) MarkAlerted(sev Severity, at time.Time) {
	if s.LastAlertAt == nil {
		s.LastAlertAt = make(map[Severity]time.Time)
	}
	s.LastAlertAt[sev] = at
}

// Clone returns a deep copy safe to hand to concurrent readers.
func (s *WatchdogStatus) Clone() *WatchdogStatus {
	cp := *s
	cp.LastAlertAt = make(map[Severity]time.Time, len(s.LastAlertAt))
	for sev, at := range s.LastAlertAt {
		cp.LastAlertAt[sev] = at
	}
	return &cp
}
