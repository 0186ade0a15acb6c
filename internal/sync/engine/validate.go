package engine

import (
	"fmt"

	"github.com/vietddude/syncer/internal/core/domain"
	"github.com/vietddude/syncer/internal/sync/processor"
)

// InitError is returned when sync configuration validation or adapter
// initialization fails. No session exists and no records were touched.
type InitError struct {
	Stage  string // validation | adapter_init | connection
	Detail string
	Cause  error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("sync initialization failed at %s: %s", e.Stage, e.Detail)
}

func (e *InitError) Unwrap() error { return e.Cause }

// ProcessingConfig tunes the batch loop.
type ProcessingConfig struct {
	// BatchSize is how many records are grouped per batch. Required, > 0.
	BatchSize int `yaml:"batch_size"`

	// Limit caps how many records this run processes. 0 means no cap.
	Limit int `yaml:"limit"`

	// EnableErrorRecovery routes record writes through the retry engine.
	EnableErrorRecovery bool `yaml:"enable_error_recovery"`

	// EnableIntegrityMonitoring starts a background verification loop
	// for the session.
	EnableIntegrityMonitoring bool `yaml:"enable_integrity_monitoring"`

	// EnableCircuitBreaker selects the critical_operations retry policy
	// for record writes.
	EnableCircuitBreaker bool `yaml:"enable_circuit_breaker"`

	// MaxRecoveryAttempts overrides the retry policy's attempt count
	// when > 0.
	MaxRecoveryAttempts int `yaml:"max_recovery_attempts"`
}

// Config is the full description of one sync run.
type Config struct {
	SourceAdapter string         `yaml:"source_adapter"`
	SourceConfig  map[string]any `yaml:"source_config"`

	TargetResource string           `yaml:"target_resource"`
	TargetConfig   processor.Config `yaml:"target_config"`

	Processing ProcessingConfig `yaml:"processing_config"`

	SyncType domain.SyncType `yaml:"sync_type"`

	// Actor is threaded through to target create/update calls for
	// permission enforcement. The engine does not interpret it.
	Actor string `yaml:"actor"`
}

// Validate checks the config before any side effect happens.
func (c *Config) Validate() error {
	if c.SourceAdapter == "" {
		return &InitError{Stage: "validation", Detail: "source_adapter is required"}
	}
	if c.TargetResource == "" {
		return &InitError{Stage: "validation", Detail: "target_resource is required"}
	}
	if !domain.ResourcePattern.MatchString(c.TargetResource) {
		return &InitError{Stage: "validation", Detail: fmt.Sprintf("invalid target_resource %q", c.TargetResource)}
	}
	if c.TargetConfig.UniqueField == "" {
		return &InitError{Stage: "validation", Detail: "target_config.unique_field is required"}
	}
	if c.Processing.BatchSize <= 0 {
		return &InitError{Stage: "validation", Detail: "processing_config.batch_size must be > 0"}
	}
	if c.Processing.Limit < 0 {
		return &InitError{Stage: "validation", Detail: "processing_config.limit must be >= 0"}
	}
	if c.SyncType == "" {
		return &InitError{Stage: "validation", Detail: "sync_type is required"}
	}
	return nil
}

// Options adjusts a single Execute call.
type Options struct {
	// DryRun validates config and initializes the adapter but processes
	// zero records and creates no session.
	DryRun bool
}
