package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8090
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Alerts.InfoCooldown == 0 {
		c.Alerts.InfoCooldown = 30 * time.Minute
	}
	if c.Alerts.CriticalCooldown == 0 {
		c.Alerts.CriticalCooldown = 30 * time.Minute
	}

	for i := range c.Targets {
		t := &c.Targets[i]
		if t.HealthTransport == "" {
			t.HealthTransport = "http"
		}
		if t.ProbeInterval == 0 {
			t.ProbeInterval = 60 * time.Second
		}
		if t.ProbeTimeout == 0 {
			t.ProbeTimeout = 5 * time.Second
		}
		if t.FailureThreshold == 0 {
			t.FailureThreshold = 3
		}
		if t.FreshnessThreshold == 0 {
			t.FreshnessThreshold = 15 * time.Minute
		}
		if t.MinCoverage == 0 {
			t.MinCoverage = 0.5
		}
		if t.HealingCooldown == 0 {
			t.HealingCooldown = 5 * time.Minute
		}
		if t.SettleDelay == 0 {
			t.SettleDelay = 30 * time.Second
		}
	}
}
