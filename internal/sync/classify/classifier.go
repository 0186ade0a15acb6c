// Package classify maps sync errors into structured classifications
// that drive retry, escalation and notification decisions.
package classify

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/vietddude/syncer/internal/core/domain"
)

// Category buckets errors by how the engine should react to them.
type Category string

const (
	CategoryNetwork     Category = "sync_network_error"
	CategoryData        Category = "sync_data_error"
	CategoryValidation  Category = "sync_validation_error"
	CategoryPerformance Category = "sync_performance_error"
	CategoryApplication Category = "application_error"
)

// Severity drives notification escalation.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityCritical Severity = "critical"
)

// Channel identifies a notification destination.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSlack Channel = "slack"
	ChannelPager Channel = "pager"
	ChannelLog   Channel = "log"
)

// BackoffSpec describes the retry strategy suggested for an error.
type BackoffSpec struct {
	Strategy    string        `json:"strategy"` // exponential_backoff | linear_backoff | fibonacci
	MaxAttempts int           `json:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay"`
	MaxDelay    time.Duration `json:"max_delay"`
	Jitter      bool          `json:"jitter"`
}

// Context describes the operation during which an error occurred.
type Context struct {
	Operation       string
	Resource        string
	SessionID       string
	AffectedRecords int
}

// Classification is the structured result of classifying one error.
type Classification struct {
	Category        Category     `json:"category"`
	Subcategory     string       `json:"subcategory"`
	Severity        Severity     `json:"severity"`
	Recoverable     bool         `json:"recoverable"`
	RetryEligible   bool         `json:"retry_eligible"`
	RetryStrategy   *BackoffSpec `json:"retry_strategy,omitempty"`
	Channels        []Channel    `json:"notification_channels"`
	Fingerprint     string       `json:"error_fingerprint"`
	RecoveryActions []string     `json:"recovery_actions"`
}

// Classify applies the decision table to an error. Unrecognized errors
// fall through to a conservative application-error classification:
// no retry, log and escalate.
func Classify(err error, ctx Context) Classification {
	var c Classification

	se, _ := domain.AsSyncError(err)
	switch e := se.(type) {
	case *domain.NetworkError:
		c = Classification{
			Category:      CategoryNetwork,
			Subcategory:   "connection_failed",
			Severity:      SeverityMedium,
			Recoverable:   true,
			RetryEligible: true,
			RetryStrategy: &BackoffSpec{
				Strategy:    "exponential_backoff",
				MaxAttempts: 3,
				BaseDelay:   time.Second,
				MaxDelay:    30 * time.Second,
				Jitter:      true,
			},
			RecoveryActions: []string{
				"verify source API connectivity",
				"check for ongoing source outages",
				"retry with exponential backoff",
			},
		}
		if e.Timeout {
			c.Subcategory = "source_timeout"
		}

	case *domain.ConstraintError:
		c = Classification{
			Category:      CategoryData,
			Subcategory:   "constraint_violation",
			Severity:      SeverityCritical,
			Recoverable:   false,
			RetryEligible: false,
			RecoveryActions: []string{
				"inspect the offending record in the source system",
				"resolve the conflicting target record",
				"re-run the sync after correcting the data",
			},
		}
		switch e.Kind {
		case "unique":
			c.Subcategory = "unique_violation"
		case "foreign_key":
			c.Subcategory = "foreign_key_violation"
		}

	case *domain.ValidationError:
		c = Classification{
			Category:      CategoryValidation,
			Subcategory:   "invalid_input",
			Severity:      SeverityMedium,
			Recoverable:   false,
			RetryEligible: false, // retrying will not fix bad input
			RecoveryActions: []string{
				"correct the invalid field in the source record",
				"review the field mapping configuration",
			},
		}

	case *domain.RateLimitError:
		c = Classification{
			Category:      CategoryPerformance,
			Subcategory:   "rate_limited",
			Severity:      SeverityLow,
			Recoverable:   true,
			RetryEligible: true,
			RetryStrategy: &BackoffSpec{
				Strategy:    "linear_backoff",
				MaxAttempts: 5,
				BaseDelay:   5 * time.Second,
				MaxDelay:    5 * time.Second,
			},
			RecoveryActions: []string{
				"reduce batch size or request rate",
				"wait for the rate-limit window to reset",
			},
		}

	case *domain.SlowOperationError:
		c = Classification{
			Category:      CategoryPerformance,
			Subcategory:   "slow_operation",
			Severity:      SeverityLow,
			Recoverable:   true,
			RetryEligible: false,
			RecoveryActions: []string{
				"profile the operation",
				"consider adding caching or reducing page size",
			},
		}

	default:
		c = Classification{
			Category:      CategoryApplication,
			Subcategory:   "unclassified",
			Severity:      SeverityMedium,
			Recoverable:   false,
			RetryEligible: false,
			RecoveryActions: []string{
				"inspect logs for the underlying cause",
				"escalate if the error recurs",
			},
		}
	}

	c.Channels = channelsFor(c.Severity)
	c.Fingerprint = Fingerprint(c.Category, c.Subcategory, ctx.Operation)
	return c
}

// channelsFor escalates notification targets with severity.
func channelsFor(s Severity) []Channel {
	switch s {
	case SeverityCritical:
		return []Channel{ChannelEmail, ChannelSlack, ChannelPager}
	case SeverityMedium:
		return []Channel{ChannelSlack}
	default:
		return []Channel{ChannelLog}
	}
}

// Fingerprint returns a stable 16-hex-char hash over category,
// subcategory and operation. It is timestamp-independent so repeated
// identical failures deduplicate to the same fingerprint.
func Fingerprint(category Category, subcategory, operation string) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%s", category, subcategory, operation))
	return hex.EncodeToString(sum[:])[:16]
}
