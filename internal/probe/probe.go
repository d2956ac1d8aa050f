// Package probe implements the layered health probe for a bridge target:
// endpoint reachability, data freshness, and sync coverage.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ledgerops/bridgewatch/internal/core/domain"
	"github.com/ledgerops/bridgewatch/internal/metrics"
	"github.com/ledgerops/bridgewatch/internal/infra/storage"
)

// Config holds per-target probe settings.
type Config struct {
	TargetID           string
	Timeout            time.Duration // per-tier bound
	FreshnessThreshold time.Duration
	MinCoverage        float64
}

// Prober runs the full probe pass for one target.
type Prober struct {
	cfg      Config
	endpoint EndpointChecker
	reader   storage.SyncReader
	logger   *slog.Logger
}

// New builds a prober. reader may be nil, in which case the data tiers are
// skipped and endpoint reachability alone gates health.
func New(cfg Config, endpoint EndpointChecker, reader storage.SyncReader, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		cfg:      cfg,
		endpoint: endpoint,
		reader:   reader,
		logger:   logger.With("target", cfg.TargetID),
	}
}

// Probe runs all tiers and reports the combined outcome. Tier failures are
// recorded in the result, never returned: an unreachable bridge is a finding,
// not an error.
func (p *Prober) Probe(ctx context.Context) *domain.ProbeResult {
	start := time.Now()
	res := &domain.ProbeResult{
		TargetID: p.cfg.TargetID,
		ProbedAt: start,
	}

	p.checkEndpoint(ctx, res)
	if p.reader != nil {
		res.DataChecked = true
		p.checkFreshness(ctx, res)
		p.checkCoverage(ctx, res)
	}

	res.Duration = time.Since(start)
	res.Healthy = len(res.Failures) == 0

	p.record(res)
	return res
}

// Close releases the endpoint checker's resources.
func (p *Prober) Close() error {
	return p.endpoint.Close()
}

func (p *Prober) checkEndpoint(ctx context.Context, res *domain.ProbeResult) {
	tierCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	err := p.endpoint.Check(tierCtx)
	if err == nil {
		res.EndpointReachable = true
		return
	}

	kind := domain.FailureConnection
	var checkErr *CheckError
	if errors.As(err, &checkErr) {
		kind = checkErr.Kind
	}
	// A status failure means the endpoint answered but reported itself down.
	if kind == domain.FailureStatus {
		res.EndpointReachable = true
	}

	p.fail(res, domain.TierEndpoint, kind, err.Error())
}

func (p *Prober) checkFreshness(ctx context.Context, res *domain.ProbeResult) {
	tierCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	last, err := p.reader.LastSyncedAt(tierCtx, p.cfg.TargetID)
	if err != nil {
		p.fail(res, domain.TierFreshness, readerFailureKind(err), fmt.Sprintf("last sync lookup: %v", err))
		return
	}
	if last.IsZero() {
		p.fail(res, domain.TierFreshness, domain.FailureStale, "no sync records found")
		return
	}

	res.LastSyncedAt = last
	res.DataAge = time.Since(last)
	if res.DataAge > p.cfg.FreshnessThreshold {
		p.fail(res, domain.TierFreshness, domain.FailureStale,
			fmt.Sprintf("last sync %s ago exceeds threshold %s",
				res.DataAge.Round(time.Second), p.cfg.FreshnessThreshold))
	}
}

func (p *Prober) checkCoverage(ctx context.Context, res *domain.ProbeResult) {
	tierCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	cutoff := time.Now().Add(-p.cfg.FreshnessThreshold)
	fresh, total, err := p.reader.SyncCoverage(tierCtx, p.cfg.TargetID, cutoff)
	if err != nil {
		p.fail(res, domain.TierCoverage, readerFailureKind(err), fmt.Sprintf("coverage query: %v", err))
		return
	}

	res.FreshAccounts = fresh
	res.TotalAccounts = total
	if total == 0 {
		// An empty book cannot be under-covered.
		res.FreshRatio = 1
		return
	}

	res.FreshRatio = float64(fresh) / float64(total)
	if res.FreshRatio < p.cfg.MinCoverage {
		p.fail(res, domain.TierCoverage, domain.FailureCoverage,
			fmt.Sprintf("%d/%d accounts fresh (%.1f%% < %.1f%%)",
				fresh, total, res.FreshRatio*100, p.cfg.MinCoverage*100))
	}
}

func (p *Prober) fail(res *domain.ProbeResult, tier domain.ProbeTier, kind domain.FailureKind, detail string) {
	res.Failures = append(res.Failures, domain.TierFailure{Tier: tier, Kind: kind, Detail: detail})
	p.logger.Debug("probe tier failed", "tier", tier, "kind", kind, "detail", detail)
}

func (p *Prober) record(res *domain.ProbeResult) {
	result := "healthy"
	if !res.Healthy {
		result = "unhealthy"
	}
	metrics.ProbesTotal.WithLabelValues(p.cfg.TargetID, result).Inc()
	metrics.ProbeDuration.WithLabelValues(p.cfg.TargetID).Observe(res.Duration.Seconds())
	for _, f := range res.Failures {
		metrics.TierFailures.WithLabelValues(p.cfg.TargetID, string(f.Tier), string(f.Kind)).Inc()
	}
	if !res.LastSyncedAt.IsZero() {
		metrics.DataAge.WithLabelValues(p.cfg.TargetID).Set(res.DataAge.Seconds())
	}
	if res.DataChecked {
		metrics.SyncCoverage.WithLabelValues(p.cfg.TargetID).Set(res.FreshRatio)
	}
}

// readerFailureKind classifies a sync store read error.
func readerFailureKind(err error) domain.FailureKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.FailureTimeout
	}
	return domain.FailureQuery
}
