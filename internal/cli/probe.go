package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/ledgerops/bridgewatch/internal/core/config"
	"github.com/ledgerops/bridgewatch/internal/infra/storage"
	"github.com/ledgerops/bridgewatch/internal/infra/storage/postgres"
	"github.com/ledgerops/bridgewatch/internal/probe"
	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe [target_id]",
	Short: "Run a one-shot diagnostic probe against a target",
	Long: `Runs all probe tiers once and prints the findings without touching the
status store. Exits non-zero when the target is unhealthy.`,
	Args: cobra.ExactArgs(1),
	Run:  runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	target, ok := cfg.Target(args[0])
	if !ok {
		fmt.Printf("Unknown target %q. Configured targets:\n", args[0])
		for _, t := range cfg.Targets {
			fmt.Printf("  %s\n", t.ID)
		}
		os.Exit(1)
	}

	ctx := context.Background()

	checker, err := probe.NewChecker(target.HealthTransport, target.HealthURL, target.GRPCService, target.ProbeTimeout)
	if err != nil {
		slog.Error("Failed to build health checker", "error", err)
		os.Exit(1)
	}

	var reader storage.SyncReader
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() {
			_ = db.Close()
		}()
		reader = postgres.NewSyncRepo(db)
	}

	prober := probe.New(probe.Config{
		TargetID:           target.ID,
		Timeout:            target.ProbeTimeout,
		FreshnessThreshold: target.FreshnessThreshold,
		MinCoverage:        target.MinCoverage,
	}, checker, reader, slog.Default())
	defer func() {
		_ = prober.Close()
	}()

	res := prober.Probe(ctx)

	fmt.Printf("Target:    %s\n", res.TargetID)
	fmt.Printf("Duration:  %s\n", res.Duration.Round(time.Millisecond))
	if res.EndpointReachable {
		fmt.Println("Endpoint:  reachable")
	} else {
		fmt.Println("Endpoint:  unreachable")
	}
	if res.DataChecked {
		if res.LastSyncedAt.IsZero() {
			fmt.Println("Freshness: no sync records")
		} else {
			fmt.Printf("Freshness: last sync %s ago (threshold %s)\n",
				res.DataAge.Round(time.Second), target.FreshnessThreshold)
		}
		fmt.Printf("Coverage:  %d/%d accounts fresh (%.1f%%, minimum %.1f%%)\n",
			res.FreshAccounts, res.TotalAccounts, res.FreshRatio*100, target.MinCoverage*100)
	} else {
		fmt.Println("Data:      not checked (no database configured)")
	}
	for _, f := range res.Failures {
		fmt.Printf("Failure:   [%s] %s: %s\n", f.Tier, f.Kind, f.Detail)
	}

	if res.Healthy {
		fmt.Println("Verdict:   healthy")
		return
	}
	fmt.Println("Verdict:   unhealthy")
	os.Exit(1)
}
