// Package alert gates operator notifications behind per-severity cooldowns.
package alert

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerops/bridgewatch/internal/core/domain"
	"github.com/ledgerops/bridgewatch/internal/metrics"
)

// Notifier delivers alerts to the operator channel.
type Notifier interface {
	Notify(ctx context.Context, alert *domain.Alert) error
}

// Config holds per-severity cooldowns.
type Config struct {
	InfoCooldown     time.Duration
	CriticalCooldown time.Duration
}

// Gate rate-limits notifications per target and severity. Cooldown
// bookkeeping lives in the status record, so a restart cannot re-alert
// before the window has passed.
type Gate struct {
	cfg      Config
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a gate. Pass nil logger to use the default logger.
func New(cfg Config, notifier Notifier, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		cfg:      cfg,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// MaybeNotify dispatches an alert unless the severity's cooldown is still
// running. On dispatch it stamps the status record's alert bookkeeping; the
// caller persists the record. Returns whether a notification went out.
func (g *Gate) MaybeNotify(ctx context.Context, sev domain.Severity, message string, status *domain.WatchdogStatus) bool {
	now := g.now()
	cooldown := g.cooldownFor(sev)

	if last, ok := status.LastAlert(sev); ok && now.Sub(last) < cooldown {
		g.logger.Info("alert suppressed by cooldown",
			"target", status.TargetID,
			"severity", sev,
			"retry_in", (cooldown - now.Sub(last)).Round(time.Second),
		)
		metrics.AlertsTotal.WithLabelValues(status.TargetID, string(sev), "suppressed").Inc()
		return false
	}

	a := &domain.Alert{
		ID:                  uuid.New().String(),
		TargetID:            status.TargetID,
		Severity:            sev,
		State:               status.State,
		Message:             message,
		ConsecutiveFailures: status.ConsecutiveFailures,
		EmittedAt:           now,
	}

	// The cooldown starts on the attempt, so a flapping delivery channel
	// cannot amplify alert volume.
	status.MarkAlerted(sev, now)

	if err := g.notifier.Notify(ctx, a); err != nil {
		g.logger.Error("alert dispatch failed",
			"target", status.TargetID,
			"severity", sev,
			"error", err,
		)
		metrics.AlertsTotal.WithLabelValues(status.TargetID, string(sev), "failed").Inc()
		return false
	}

	g.logger.Info("alert dispatched",
		"target", status.TargetID,
		"severity", sev,
		"state", status.State,
		"message", message,
	)
	metrics.AlertsTotal.WithLabelValues(status.TargetID, string(sev), "sent").Inc()
	return true
}

func (g *Gate) cooldownFor(sev domain.Severity) time.Duration {
	if sev == domain.SeverityCritical {
		return g.cfg.CriticalCooldown
	}
	return g.cfg.InfoCooldown
}
