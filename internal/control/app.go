// Package control wires configuration into a running watchdog: storage
// selection, per-target loops and the admin server.
package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ledgerops/bridgewatch/internal/alert"
	"github.com/ledgerops/bridgewatch/internal/core/config"
	"github.com/ledgerops/bridgewatch/internal/core/domain"
	redisclient "github.com/ledgerops/bridgewatch/internal/infra/redis"
	"github.com/ledgerops/bridgewatch/internal/infra/storage"
	"github.com/ledgerops/bridgewatch/internal/infra/storage/memory"
	"github.com/ledgerops/bridgewatch/internal/infra/storage/postgres"
	"github.com/ledgerops/bridgewatch/internal/probe"
	"github.com/ledgerops/bridgewatch/internal/remediate"
	"github.com/ledgerops/bridgewatch/internal/server"
	"github.com/ledgerops/bridgewatch/internal/watchdog"
)

// App is the main application struct that manages the watchdog lifecycle.
type App struct {
	cfg         config.AppConfig
	loops       map[string]*watchdog.Loop
	probers     map[string]*probe.Prober
	adminServer *server.Server
	db          *postgres.DB
	redisClient *redisclient.Client
	log         *slog.Logger
}

// NewApp creates an App with all dependencies initialized.
func NewApp(cfg config.AppConfig) (*App, error) {
	logger := slog.Default()

	// 1. Initialize storage. Postgres, when configured, doubles as the
	// window onto the bridge's sync output; Redis, when configured, takes
	// over the watchdog's own records.
	var statuses storage.StatusRepository
	var syncReader storage.SyncReader
	var db *postgres.DB
	var redisClient *redisclient.Client

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(); err != nil {
			return nil, err
		}
		statuses = postgres.NewStatusRepo(db)
		syncReader = postgres.NewSyncRepo(db)
		logger.Info("using postgresql storage")
	}

	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		statuses = redisclient.NewStatusRepo(redisClient)
		logger.Info("using redis status store")
	}

	if statuses == nil {
		statuses = memory.NewStatusRepo(memory.NewMemoryStorage())
		logger.Info("using memory status store")
	}
	if syncReader == nil {
		logger.Warn("no database configured, freshness and coverage tiers disabled")
	}

	// 2. Alert pipeline, shared across targets.
	var notifier alert.Notifier
	if cfg.Alerts.WebhookURL != "" {
		notifier = alert.NewWebhookNotifier(cfg.Alerts.WebhookURL, logger)
	} else {
		logger.Warn("no alert webhook configured, notifications go to the log")
		notifier = &logNotifier{log: logger}
	}
	gate := alert.New(alert.Config{
		InfoCooldown:     cfg.Alerts.InfoCooldown,
		CriticalCooldown: cfg.Alerts.CriticalCooldown,
	}, notifier, logger)

	// 3. Per-target probe, remediation and loop wiring.
	loops := make(map[string]*watchdog.Loop)
	probers := make(map[string]*probe.Prober)
	handles := make(map[string]server.LoopHandle)

	for _, t := range cfg.Targets {
		checker, err := probe.NewChecker(t.HealthTransport, t.HealthURL, t.GRPCService, t.ProbeTimeout)
		if err != nil {
			return nil, fmt.Errorf("target %s: %w", t.ID, err)
		}

		prober := probe.New(probe.Config{
			TargetID:           t.ID,
			Timeout:            t.ProbeTimeout,
			FreshnessThreshold: t.FreshnessThreshold,
			MinCoverage:        t.MinCoverage,
		}, checker, syncReader, logger)
		probers[t.ID] = prober

		if t.Remediation.URL == "" {
			logger.Warn("target has no remediation url, healing attempts will fail",
				"target", t.ID)
		}
		trigger := remediate.NewHTTPTrigger(t.Remediation.URL, t.Remediation.Action, t.Remediation.AuthToken)
		remediator := remediate.New(remediate.Config{
			TargetID:        t.ID,
			HealingCooldown: t.HealingCooldown,
			SettleDelay:     t.SettleDelay,
		}, trigger, prober, statuses, logger)

		loop := watchdog.New(watchdog.Config{
			TargetID:         t.ID,
			ProbeInterval:    t.ProbeInterval,
			FailureThreshold: t.FailureThreshold,
			HealingCooldown:  t.HealingCooldown,
		}, prober, remediator, gate, statuses, logger)

		loops[t.ID] = loop
		handles[t.ID] = loop
	}

	// 4. Admin server.
	adminServer := server.New(cfg.Server.Port, handles, logger)

	return &App{
		cfg:         cfg,
		loops:       loops,
		probers:     probers,
		adminServer: adminServer,
		db:          db,
		redisClient: redisClient,
		log:         logger,
	}, nil
}

// Start starts the admin server and all watchdog loops.
func (a *App) Start(ctx context.Context) error {
	go func() {
		if err := a.adminServer.Start(); err != nil {
			a.log.Error("admin server failed", "error", err)
		}
	}()

	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}

	for id, loop := range a.loops {
		a.log.Info("starting watchdog loop", "target", id)
		go func(id string, l *watchdog.Loop) {
			if err := l.Start(ctx); err != nil {
				a.log.Error("watchdog loop failed", "target", id, "error", err)
			}
		}(id, loop)
	}
	return nil
}

// Stop stops the loops, releases probe transports and shuts down storage and
// the admin server.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping bridgewatch...")

	for _, loop := range a.loops {
		_ = loop.Stop()
	}
	for id, p := range a.probers {
		if err := p.Close(); err != nil {
			a.log.Warn("failed to close prober", "target", id, "error", err)
		}
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("failed to close redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("failed to close db", "error", err)
		}
	}

	return a.adminServer.Stop(ctx)
}

// Loop returns the watchdog loop for a target id.
func (a *App) Loop(id string) (*watchdog.Loop, bool) {
	l, ok := a.loops[id]
	return l, ok
}

// logNotifier is the fallback alert channel when no webhook is configured.
type logNotifier struct {
	log *slog.Logger
}

func (n *logNotifier) Notify(ctx context.Context, a *domain.Alert) error {
	args := []any{
		"target", a.TargetID,
		"severity", a.Severity,
		"state", a.State,
		"consecutive_failures", a.ConsecutiveFailures,
	}
	if a.Severity == domain.SeverityCritical {
		n.log.Error(a.Message, args...)
	} else {
		n.log.Info(a.Message, args...)
	}
	return nil
}
