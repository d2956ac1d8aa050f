package watchdog

import (
	"errors"
	"time"

	"github.com/ledgerops/bridgewatch/internal/core/domain"
)

// State is an alias for domain.State for internal use.
type State = domain.State

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// ValidTransitions defines allowed state transitions.
// Key is the current state, value is the list of valid next states.
var ValidTransitions = map[State][]State{
	domain.StateHealthy:  {domain.StateDegraded, domain.StateHealing},
	domain.StateDegraded: {domain.StateHealthy, domain.StateHealing},
	domain.StateHealing:  {domain.StateHealthy, domain.StateCritical},
	domain.StateCritical: {domain.StateHealthy, domain.StateHealing},
}

// CanTransition checks if a transition from one state to another is valid.
func CanTransition(from, to State) bool {
	validTargets, ok := ValidTransitions[from]
	if !ok {
		return false
	}

	for _, target := range validTargets {
		if target == to {
			return true
		}
	}
	return false
}

// Transition represents a state change with metadata.
type Transition struct {
	From      State
	To        State
	Reason    string
	Timestamp time.Time
}

// NewTransition creates a new transition record.
func NewTransition(from, to State, reason string) Transition {
	return Transition{
		From:      from,
		To:        to,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// IsValid returns true if this transition is allowed by the state machine.
func (t Transition) IsValid() bool {
	return CanTransition(t.From, t.To)
}

// StateDescription returns a human-readable description of a state.
func StateDescription(s State) string {
	switch s {
	case domain.StateHealthy:
		return "Healthy - all probe tiers passing"
	case domain.StateDegraded:
		return "Degraded - consecutive failures below the remediation threshold"
	case domain.StateHealing:
		return "Healing - remediation triggered, waiting for the bridge to settle"
	case domain.StateCritical:
		return "Critical - remediation failed or unavailable, operator attention needed"
	default:
		return "Unknown state"
	}
}
