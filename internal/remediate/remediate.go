// Package remediate drives the external automation that restarts an
// unhealthy bridge, then verifies the outcome after a settle window.
package remediate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ledgerops/bridgewatch/internal/core/domain"
	"github.com/ledgerops/bridgewatch/internal/infra/storage"
	"github.com/ledgerops/bridgewatch/internal/metrics"
)

// Prober re-checks the bridge after remediation settles.
type Prober interface {
	Probe(ctx context.Context) *domain.ProbeResult
}

// Config holds per-target remediation settings.
type Config struct {
	TargetID        string
	HealingCooldown time.Duration
	SettleDelay     time.Duration
}

// Outcome describes what one remediation attempt did.
type Outcome struct {
	Skipped   bool                `json:"skipped"`   // healing cooldown active, nothing fired
	Triggered bool                `json:"triggered"` // the automation accepted the trigger
	Verified  bool                `json:"verified"`  // the post-settle probe passed
	Recheck   *domain.ProbeResult `json:"recheck,omitempty"`
}

// Remediator fires the automation trigger for one target and verifies the
// result.
type Remediator struct {
	cfg      Config
	trigger  Trigger
	prober   Prober
	statuses storage.StatusRepository
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a remediator. Pass nil logger to use the default logger.
func New(cfg Config, trigger Trigger, prober Prober, statuses storage.StatusRepository, logger *slog.Logger) *Remediator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Remediator{
		cfg:      cfg,
		trigger:  trigger,
		prober:   prober,
		statuses: statuses,
		logger:   logger.With("target", cfg.TargetID),
		now:      time.Now,
	}
}

// Remediate runs one attempt against the given status record, mutating its
// healing bookkeeping. A cooldown decline returns a skipped outcome, not an
// error; a rejected trigger returns a *TriggerError.
//
// The attempt stamp is persisted before the settle wait so that a crash
// mid-settle cannot double-fire the trigger on restart.
func (r *Remediator) Remediate(ctx context.Context, status *domain.WatchdogStatus, reason string) (Outcome, error) {
	now := r.now()

	if !status.LastHealingAttemptAt.IsZero() {
		if since := now.Sub(status.LastHealingAttemptAt); since < r.cfg.HealingCooldown {
			r.logger.Info("remediation declined, healing cooldown active",
				"last_attempt", status.LastHealingAttemptAt,
				"retry_in", (r.cfg.HealingCooldown - since).Round(time.Second),
			)
			return Outcome{Skipped: true}, nil
		}
	}

	status.LastHealingAttemptAt = now
	status.HealingAttemptsTotal++
	metrics.HealingAttempts.WithLabelValues(status.TargetID).Inc()

	if err := r.statuses.Save(ctx, status); err != nil {
		r.logger.Error("failed to persist healing attempt", "error", err)
		metrics.StoreErrors.WithLabelValues("save").Inc()
	}

	if err := r.trigger.Fire(ctx, status.TargetID, reason); err != nil {
		return Outcome{}, fmt.Errorf("remediation trigger: %w", err)
	}
	r.logger.Info("remediation triggered",
		"reason", reason,
		"attempt", status.HealingAttemptsTotal,
		"settle_delay", r.cfg.SettleDelay,
	)

	select {
	case <-ctx.Done():
		return Outcome{Triggered: true}, ctx.Err()
	case <-time.After(r.cfg.SettleDelay):
	}

	recheck := r.prober.Probe(ctx)
	out := Outcome{Triggered: true, Verified: recheck.Healthy, Recheck: recheck}
	if out.Verified {
		r.logger.Info("remediation verified, bridge healthy again")
	} else {
		r.logger.Warn("remediation did not verify", "failing_tiers", len(recheck.Failures))
	}
	return out, nil
}
