package config

import (
	"fmt"
	"time"

	redisclient "github.com/ledgerops/bridgewatch/internal/infra/redis"
	"github.com/ledgerops/bridgewatch/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Targets  []TargetConfig     `yaml:"targets"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
	Alerts   AlertConfig        `yaml:"alerts"`
}

// ServerConfig holds admin HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// AlertConfig holds operator notification settings.
type AlertConfig struct {
	WebhookURL       string        `yaml:"webhook_url"`
	InfoCooldown     time.Duration `yaml:"info_cooldown"`
	CriticalCooldown time.Duration `yaml:"critical_cooldown"`
}

// TargetConfig holds settings for one monitored bridge process.
type TargetConfig struct {
	ID                 string            `yaml:"id"`
	HealthURL          string            `yaml:"health_url"`
	HealthTransport    string            `yaml:"health_transport"` // http, grpc
	GRPCService        string            `yaml:"grpc_service"`     // grpc health service name, "" = overall
	ProbeInterval      time.Duration     `yaml:"probe_interval"`
	ProbeTimeout       time.Duration     `yaml:"probe_timeout"`
	FailureThreshold   int               `yaml:"failure_threshold"`
	FreshnessThreshold time.Duration     `yaml:"freshness_threshold"`
	MinCoverage        float64           `yaml:"min_coverage"`
	HealingCooldown    time.Duration     `yaml:"healing_cooldown"`
	SettleDelay        time.Duration     `yaml:"settle_delay"`
	Remediation        RemediationConfig `yaml:"remediation"`
}

// RemediationConfig holds settings for the external automation trigger.
type RemediationConfig struct {
	URL       string `yaml:"url"`
	Action    string `yaml:"action"`
	AuthToken string `yaml:"auth_token"`
}

// Target returns the config for a target id.
func (c *AppConfig) Target(id string) (*TargetConfig, bool) {
	for i := range c.Targets {
		if c.Targets[i].ID == id {
			return &c.Targets[i], true
		}
	}
	return nil, false
}

// Validate checks the configuration for operator mistakes.
func (c *AppConfig) Validate() error {
	if len(c.Targets) == 0 {
		return fmt.Errorf("no targets configured")
	}

	seen := make(map[string]bool)
	for i := range c.Targets {
		t := &c.Targets[i]
		if t.ID == "" {
			return fmt.Errorf("target %d: id is required", i)
		}
		if seen[t.ID] {
			return fmt.Errorf("target %s: duplicate id", t.ID)
		}
		seen[t.ID] = true

		if t.HealthURL == "" {
			return fmt.Errorf("target %s: health_url is required", t.ID)
		}
		switch t.HealthTransport {
		case "http", "grpc":
		default:
			return fmt.Errorf("target %s: unknown health_transport %q", t.ID, t.HealthTransport)
		}
		if t.MinCoverage < 0 || t.MinCoverage > 1 {
			return fmt.Errorf("target %s: min_coverage must be between 0 and 1", t.ID)
		}
	}
	return nil
}
