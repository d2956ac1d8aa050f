package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/ledgerops/bridgewatch/internal/core/config"
	"github.com/spf13/cobra"
)

var (
	remediateReason string
	remediateAddr   string
)

var remediateCmd = &cobra.Command{
	Use:   "remediate [target_id]",
	Short: "Ask a running watchdog to remediate a target now",
	Long: `Posts a forced remediation request to the daemon's admin API. The daemon
applies the same cooldown and verification rules as the automatic path.`,
	Args: cobra.ExactArgs(1),
	Run:  runRemediate,
}

func init() {
	remediateCmd.Flags().StringVar(&remediateReason, "reason", "", "reason recorded with the remediation request")
	remediateCmd.Flags().StringVar(&remediateAddr, "addr", "", "admin API address (default http://localhost:<server.port>)")
	rootCmd.AddCommand(remediateCmd)
}

type remediateResponse struct {
	Data struct {
		Skipped   bool `json:"skipped"`
		Triggered bool `json:"triggered"`
		Verified  bool `json:"verified"`
	} `json:"data"`
	Error string `json:"error"`
}

func runRemediate(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	addr := remediateAddr
	if addr == "" {
		addr = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	url := fmt.Sprintf("%s/api/targets/%s/remediate", addr, args[0])

	body, _ := json.Marshal(map[string]string{"reason": remediateReason})

	// The daemon holds this request open through the settle delay and the
	// verification probe, so the call is slow on purpose.
	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		slog.Error("Failed to reach the admin API, is the watchdog running?", "addr", addr, "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var parsed remediateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		slog.Error("Failed to decode admin API response", "status", resp.StatusCode, "error", err)
		os.Exit(1)
	}

	if resp.StatusCode != http.StatusOK {
		fmt.Printf("Remediation request failed (%d): %s\n", resp.StatusCode, parsed.Error)
		os.Exit(1)
	}

	switch {
	case parsed.Data.Skipped:
		fmt.Println("Remediation declined: healing cooldown is still active.")
		os.Exit(1)
	case parsed.Data.Verified:
		fmt.Println("Remediation triggered and verified, the bridge is healthy.")
	case parsed.Data.Triggered:
		fmt.Println("Remediation triggered but the bridge has not recovered yet.")
		os.Exit(1)
	default:
		fmt.Println("Remediation made no progress, check the daemon logs.")
		os.Exit(1)
	}
}
