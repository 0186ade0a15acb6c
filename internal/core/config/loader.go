package config

import (
	"fmt"
	"os"

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

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "postgres"
	}
	if cfg.PubSub.Channel == "" {
		cfg.PubSub.Channel = "sync:progress"
	}
	if cfg.Verify.AlertThresholdPercentage == 0 {
		cfg.Verify.AlertThresholdPercentage = 5.0
	}

	for i := range cfg.Syncs {
		if cfg.Syncs[i].Sync.Processing.BatchSize == 0 {
			cfg.Syncs[i].Sync.Processing.BatchSize = 100
		}
	}

	return &cfg, nil
}

// Resources lists every target resource named across the configured
// syncs and verification specs. Storage backends register these up
// front so unknown resources fail fast.
func (c *AppConfig) Resources() []string {
	seen := make(map[string]bool)
	var out []string

	add := func(resource string) {
		if resource != "" && !seen[resource] {
			seen[resource] = true
			out = append(out, resource)
		}
	}

	for _, s := range c.Syncs {
		add(s.Sync.TargetResource)
	}
	for resource := range c.Verify.Resources {
		add(resource)
	}
	return out
}
