package config

import (
	redisclient "github.com/vietddude/syncer/internal/infra/redis"
	"github.com/vietddude/syncer/internal/infra/storage/postgres"
	"github.com/vietddude/syncer/internal/sync/engine"
	"github.com/vietddude/syncer/internal/sync/integrity"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Syncs    []SyncConfig       `yaml:"syncs"`
	Redis    redisclient.Config `yaml:"redis"`
	PubSub   PubSubConfig       `yaml:"pubsub"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
	Storage  StorageConfig      `yaml:"storage"`
	Verify   VerificationConfig `yaml:"verification"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Backend string `yaml:"backend"` // postgres, memory
}

// PubSubConfig describes the progress notification sink.
type PubSubConfig struct {
	Enabled bool   `yaml:"enabled"`
	Channel string `yaml:"channel"`
}

// SyncConfig holds the settings for one configured sync pipeline.
type SyncConfig struct {
	Name string        `yaml:"name"`
	Sync engine.Config `yaml:",inline"`
}

// VerificationConfig holds the integrity verification setup.
type VerificationConfig struct {
	Resources map[string]integrity.ResourceSpec `yaml:"resources"`

	// MonitorIntervalSeconds between background checks. 0 disables
	// continuous monitoring.
	MonitorIntervalSeconds int `yaml:"monitor_interval_seconds"`

	// AlertThresholdPercentage above which drift alerts fire.
	AlertThresholdPercentage float64 `yaml:"alert_threshold_percentage"`
}
