package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/ledgerops/bridgewatch/internal/core/config"
	redisclient "github.com/ledgerops/bridgewatch/internal/infra/redis"
	"github.com/ledgerops/bridgewatch/internal/infra/storage"
	"github.com/ledgerops/bridgewatch/internal/infra/storage/postgres"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored status of all watched targets",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	statuses, cleanup, err := openStatusStore(ctx, cfg)
	if err != nil {
		slog.Error("Failed to open status store", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	records, err := statuses.List(ctx)
	if err != nil {
		slog.Error("Failed to list statuses", "error", err)
		os.Exit(1)
	}

	if len(records) == 0 {
		fmt.Println("No status records yet. Is the watchdog running against this store?")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "TARGET\tSTATE\tFAILURES\tHEALINGS\tLAST PROBE\tLAST HEALTHY")
	for _, s := range records {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
			s.TargetID, s.State, s.ConsecutiveFailures, s.HealingAttemptsTotal,
			formatStamp(s.LastProbeAt), formatStamp(s.LastHealthyAt))
	}
	_ = w.Flush()
}

// openStatusStore connects to wherever the daemon writes status records. Redis
// wins over Postgres when both are configured, matching the daemon's cascade.
func openStatusStore(ctx context.Context, cfg *config.AppConfig) (storage.StatusRepository, func(), error) {
	if cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return redisclient.NewStatusRepo(client), func() { _ = client.Close() }, nil
	}
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewStatusRepo(db), func() { _ = db.Close() }, nil
	}
	return nil, nil, fmt.Errorf("no redis or database configured, status lives only inside the daemon")
}

func formatStamp(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
