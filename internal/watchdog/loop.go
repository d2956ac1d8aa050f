// Package watchdog runs the per-target monitoring loop: probe, classify,
// remediate, alert. One Loop owns one target's status record.
package watchdog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ledgerops/bridgewatch/internal/core/domain"
	"github.com/ledgerops/bridgewatch/internal/infra/storage"
	"github.com/ledgerops/bridgewatch/internal/metrics"
	"github.com/ledgerops/bridgewatch/internal/remediate"
)

// Prober produces a probe verdict for the loop's target.
type Prober interface {
	Probe(ctx context.Context) *domain.ProbeResult
}

// Remediator fires the automation trigger and verifies the result.
type Remediator interface {
	Remediate(ctx context.Context, status *domain.WatchdogStatus, reason string) (remediate.Outcome, error)
}

// AlertGate dispatches operator notifications subject to cooldowns.
type AlertGate interface {
	MaybeNotify(ctx context.Context, sev domain.Severity, message string, status *domain.WatchdogStatus) bool
}

// Config holds per-target loop settings.
type Config struct {
	TargetID         string
	ProbeInterval    time.Duration
	FailureThreshold int
	HealingCooldown  time.Duration
}

// Snapshot is the loop's last published view of its target, safe for
// concurrent readers.
type Snapshot struct {
	Status    *domain.WatchdogStatus `json:"status"`
	LastProbe *domain.ProbeResult    `json:"last_probe,omitempty"`
	Running   bool                   `json:"running"`
}

// Loop is the watchdog cycle for a single target. Cycles are serialized:
// the scheduled ticker, forced probes and forced remediation all share one
// mutex, so the status record has exactly one writer.
type Loop struct {
	cfg        Config
	prober     Prober
	remediator Remediator
	gate       AlertGate
	statuses   storage.StatusRepository
	logger     *slog.Logger
	now        func() time.Time

	running  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once

	cycleMu sync.Mutex

	mu         sync.RWMutex
	snapshot   *domain.WatchdogStatus
	lastResult *domain.ProbeResult
}

// New creates a loop. Pass nil logger to use the default logger.
func New(cfg Config, prober Prober, remediator Remediator, gate AlertGate, statuses storage.StatusRepository, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		cfg:        cfg,
		prober:     prober,
		remediator: remediator,
		gate:       gate,
		statuses:   statuses,
		logger:     logger.With("target", cfg.TargetID),
		now:        time.Now,
		stop:       make(chan struct{}),
	}
}

// Start begins the probe loop. It blocks until the context is cancelled or
// Stop is called.
func (l *Loop) Start(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return fmt.Errorf("watchdog loop already running for %s", l.cfg.TargetID)
	}
	defer l.running.Store(false)

	l.logger.Info("watchdog loop started",
		"interval", l.cfg.ProbeInterval,
		"failure_threshold", l.cfg.FailureThreshold,
	)

	// First verdict immediately rather than one interval in.
	l.RunCycle(ctx)

	ticker := time.NewTicker(l.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.stop:
			return nil
		case <-ticker.C:
			l.RunCycle(ctx)
		}
	}
}

// Stop signals the loop to exit. Safe to call more than once.
func (l *Loop) Stop() error {
	l.stopOnce.Do(func() { close(l.stop) })
	return nil
}

// Status returns the last published snapshot without waiting on a running
// cycle.
func (l *Loop) Status() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snap := Snapshot{Running: l.running.Load()}
	if l.snapshot != nil {
		snap.Status = l.snapshot.Clone()
	} else {
		snap.Status = domain.NewWatchdogStatus(l.cfg.TargetID)
	}
	snap.LastProbe = l.lastResult
	return snap
}

// RunCycle executes one full probe cycle. Used by the scheduler and by the
// admin API's forced probe.
func (l *Loop) RunCycle(ctx context.Context) {
	l.cycleMu.Lock()
	defer l.cycleMu.Unlock()
	l.runCycle(ctx)
}

// ForceRemediate runs a remediation attempt outside the probe schedule. The
// healing cooldown still applies; a declined attempt leaves state and alert
// bookkeeping untouched.
func (l *Loop) ForceRemediate(ctx context.Context, reason string) (remediate.Outcome, error) {
	l.cycleMu.Lock()
	defer l.cycleMu.Unlock()

	status := l.loadStatus(ctx)
	if !l.healingReady(status) {
		l.logger.Info("manual remediation declined, healing cooldown active",
			"last_attempt", status.LastHealingAttemptAt,
		)
		return remediate.Outcome{Skipped: true}, nil
	}

	out, err := l.heal(ctx, status, reason)

	status.UpdatedAt = l.now()
	l.persist(ctx, status)
	l.publish(status, out.Recheck)
	return out, err
}

func (l *Loop) runCycle(ctx context.Context) {
	status := l.loadStatus(ctx)
	res := l.prober.Probe(ctx)
	status.LastProbeAt = res.ProbedAt

	if res.Healthy {
		l.observeHealthy(ctx, status, res)
	} else if recheck := l.observeFailure(ctx, status, res); recheck != nil {
		res = recheck
		status.LastProbeAt = res.ProbedAt
	}

	status.UpdatedAt = l.now()
	l.persist(ctx, status)
	l.publish(status, res)
}

// loadStatus fetches the target's record, falling back to the in-memory
// snapshot when the store misbehaves so a flaky backend cannot reset the
// failure count.
func (l *Loop) loadStatus(ctx context.Context) *domain.WatchdogStatus {
	status, err := l.statuses.Get(ctx, l.cfg.TargetID)
	if err == nil {
		return status
	}
	if errors.Is(err, storage.ErrStatusNotFound) {
		return domain.NewWatchdogStatus(l.cfg.TargetID)
	}

	l.logger.Error("failed to load watchdog status", "error", err)
	metrics.StoreErrors.WithLabelValues("get").Inc()

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.snapshot != nil {
		return l.snapshot.Clone()
	}
	return domain.NewWatchdogStatus(l.cfg.TargetID)
}

func (l *Loop) observeHealthy(ctx context.Context, status *domain.WatchdogStatus, res *domain.ProbeResult) {
	prev := status.State
	status.ConsecutiveFailures = 0
	status.LastHealthyAt = res.ProbedAt

	if prev == domain.StateHealthy {
		return
	}

	l.transition(status, domain.StateHealthy, "probe passed")
	if prev == domain.StateCritical || prev == domain.StateHealing {
		l.gate.MaybeNotify(ctx, domain.SeverityInfo, "bridge recovered", status)
	}
}

// observeFailure advances the failure bookkeeping and, when warranted, runs
// remediation. Returns the post-remediation probe result, if one was taken.
func (l *Loop) observeFailure(ctx context.Context, status *domain.WatchdogStatus, res *domain.ProbeResult) *domain.ProbeResult {
	status.ConsecutiveFailures++
	summary := failureSummary(res)
	l.logger.Warn("probe failed",
		"consecutive_failures", status.ConsecutiveFailures,
		"state", status.State,
		"detail", summary,
	)

	switch status.State {
	case domain.StateCritical, domain.StateHealing:
		// A persisted HEALING state here means a previous attempt never
		// completed (crash mid-settle); treat it as failed.
		if status.State == domain.StateHealing {
			l.transition(status, domain.StateCritical, "healing attempt did not complete")
		}
		if l.healingReady(status) {
			out, _ := l.heal(ctx, status, fmt.Sprintf("still failing in critical state: %s", summary))
			return out.Recheck
		}
		l.gate.MaybeNotify(ctx, domain.SeverityCritical,
			fmt.Sprintf("bridge remains critical: %s", summary), status)
	default:
		if status.ConsecutiveFailures >= l.cfg.FailureThreshold {
			reason := fmt.Sprintf("%d consecutive probe failures: %s", status.ConsecutiveFailures, summary)
			out, _ := l.heal(ctx, status, reason)
			return out.Recheck
		}
		if status.State != domain.StateDegraded {
			l.transition(status, domain.StateDegraded, summary)
		}
	}
	return nil
}

// heal transitions to HEALING, runs the remediator and folds the outcome back
// into the state machine. The error return is for manual callers; scheduled
// cycles have already had it reflected in state and alerts.
func (l *Loop) heal(ctx context.Context, status *domain.WatchdogStatus, reason string) (remediate.Outcome, error) {
	prev := status.State
	if prev != domain.StateHealing {
		l.transition(status, domain.StateHealing, reason)
	}
	// Persist so the HEALING state is visible to readers during the settle
	// wait.
	l.persist(ctx, status)

	out, err := l.remediator.Remediate(ctx, status, reason)
	switch {
	case err != nil:
		l.logger.Error("remediation failed", "error", err)
		l.transition(status, domain.StateCritical, "remediation failed")
		l.gate.MaybeNotify(ctx, domain.SeverityCritical,
			fmt.Sprintf("remediation failed: %v", err), status)
	case out.Skipped:
		l.transition(status, domain.StateCritical, "remediation declined, healing cooldown active")
		l.gate.MaybeNotify(ctx, domain.SeverityCritical,
			"bridge unhealthy and remediation is cooling down", status)
	case out.Verified:
		status.ConsecutiveFailures = 0
		status.LastHealthyAt = out.Recheck.ProbedAt
		l.transition(status, domain.StateHealthy, "remediation verified")
		if prev != domain.StateHealthy {
			l.gate.MaybeNotify(ctx, domain.SeverityInfo,
				"bridge recovered after automated remediation", status)
		}
	default:
		detail := "recheck still failing"
		if out.Recheck != nil {
			detail = failureSummary(out.Recheck)
		}
		l.transition(status, domain.StateCritical, "remediation did not verify")
		l.gate.MaybeNotify(ctx, domain.SeverityCritical,
			fmt.Sprintf("remediation did not restore the bridge: %s", detail), status)
	}
	return out, err
}

func (l *Loop) healingReady(status *domain.WatchdogStatus) bool {
	if status.LastHealingAttemptAt.IsZero() {
		return true
	}
	return l.now().Sub(status.LastHealingAttemptAt) >= l.cfg.HealingCooldown
}

// transition applies a state change after validating it against the legal
// edge table. A refused transition indicates a loop bug; the old state is
// kept.
func (l *Loop) transition(status *domain.WatchdogStatus, to State, reason string) {
	t := NewTransition(status.State, to, reason)
	if !t.IsValid() {
		l.logger.Error("invalid state transition refused",
			"from", t.From, "to", t.To, "reason", reason)
		return
	}
	status.State = to
	l.logger.Info("state transition", "from", t.From, "to", t.To, "reason", reason)
}

func (l *Loop) persist(ctx context.Context, status *domain.WatchdogStatus) {
	if err := l.statuses.Save(ctx, status); err != nil {
		l.logger.Error("failed to persist watchdog status", "error", err)
		metrics.StoreErrors.WithLabelValues("save").Inc()
	}
}

// publish refreshes gauges and the read snapshot at the end of a cycle.
func (l *Loop) publish(status *domain.WatchdogStatus, res *domain.ProbeResult) {
	metrics.TargetState.WithLabelValues(l.cfg.TargetID).Set(metrics.StateCode(status.State))
	metrics.ConsecutiveFailures.WithLabelValues(l.cfg.TargetID).Set(float64(status.ConsecutiveFailures))

	l.mu.Lock()
	l.snapshot = status.Clone()
	if res != nil {
		l.lastResult = res
	}
	l.mu.Unlock()
}

func failureSummary(res *domain.ProbeResult) string {
	if len(res.Failures) == 0 {
		return "probe failed"
	}
	parts := make([]string, 0, len(res.Failures))
	for _, f := range res.Failures {
		parts = append(parts, fmt.Sprintf("%s %s", f.Tier, f.Detail))
	}
	return strings.Join(parts, "; ")
}
