package domain

import "time"

// VerificationMode selects how much work an integrity check does.
type VerificationMode string

const (
	VerifyCountOnly VerificationMode = "count_only"
	VerifySample    VerificationMode = "sample"
	VerifyFull      VerificationMode = "full"
)

// IntegrityStatus is the tiered qualitative rating of a verification run.
type IntegrityStatus string

const (
	IntegrityExcellent  IntegrityStatus = "excellent"
	IntegrityGood       IntegrityStatus = "good"
	IntegrityAcceptable IntegrityStatus = "acceptable"
	IntegrityConcerning IntegrityStatus = "concerning"
	IntegrityCritical   IntegrityStatus = "critical"
)

// CountDiscrepancy reports a per-resource count mismatch between
// the source system and the target store.
type CountDiscrepancy struct {
	Resource    string `json:"resource_type"`
	TargetCount int    `json:"target_count"`
	SourceCount int    `json:"source_count"`
	Delta       int    `json:"delta"`
}

// FieldMismatch reports a single field differing between a matched
// source/target record pair.
type FieldMismatch struct {
	RecordID string `json:"record_id"`
	Field    string `json:"field"`
	Expected any    `json:"expected"`
	Actual   any    `json:"actual"`
}

// ResourceResult is the per-resource breakdown inside a report.
type ResourceResult struct {
	Resource   string          `json:"resource_type"`
	Compared   int             `json:"compared"`
	Consistent int             `json:"consistent"`
	Status     IntegrityStatus `json:"status"`
}

// IntegrityReport is the result of one verification run.
type IntegrityReport struct {
	RunID            string             `json:"run_id"`
	Mode             VerificationMode   `json:"verification_type"`
	OverallStatus    IntegrityStatus    `json:"overall_status"`
	DetailedResults  []ResourceResult   `json:"detailed_results"`
	CountDiscrepancy []CountDiscrepancy `json:"count_discrepancies"`
	MissingRecords   []string           `json:"missing_records"`
	FieldMismatches  []FieldMismatch    `json:"field_mismatches"`
	IntegrityScore   float64            `json:"integrity_score"`
	Recommendations  []string           `json:"recommendations"`
	GeneratedAt      time.Time          `json:"generated_at"`
	OptionsUsed      map[string]any     `json:"options_used,omitempty"`
}

// IssueCount returns the total number of discrepancies in the report.
func (r *IntegrityReport) IssueCount() int {
	return len(r.CountDiscrepancy) + len(r.MissingRecords) + len(r.FieldMismatches)
}

// VerificationRun is the persisted summary of one verification run,
// kept for trend analysis.
type VerificationRun struct {
	ID          string           `json:"id"`
	Mode        VerificationMode `json:"mode"`
	Score       float64          `json:"score"`
	Status      IntegrityStatus  `json:"status"`
	IssueCount  int              `json:"issue_count"`
	Resources   []ResourceResult `json:"resources"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// StatusForScore maps a 0-100 score to its qualitative tier.
func StatusForScore(score float64) IntegrityStatus {
	switch {
	case score >= 95:
		return IntegrityExcellent
	case score >= 85:
		return IntegrityGood
	case score >= 70:
		return IntegrityAcceptable
	case score >= 50:
		return IntegrityConcerning
	default:
		return IntegrityCritical
	}
}
