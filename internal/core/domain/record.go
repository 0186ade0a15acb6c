package domain

// SourceRecord is a raw record as produced by a source adapter.
type SourceRecord struct {
	// ExternalID is the record's identifier in the source system.
	ExternalID string `json:"external_id"`

	// Fields holds the raw source field values keyed by source field name.
	Fields map[string]any `json:"fields"`
}

// OutcomeKind says what the target processor did with a record.
type OutcomeKind string

const (
	OutcomeCreated  OutcomeKind = "created"
	OutcomeUpdated  OutcomeKind = "updated"
	OutcomeExisting OutcomeKind = "existing"
)

// TargetRecord is a record as stored in the target resource.
type TargetRecord struct {
	ID         string         `json:"id"`
	Resource   string         `json:"resource"`
	Attributes map[string]any `json:"attributes"`
}

// Outcome is the per-record result of target processing.
type Outcome struct {
	Kind   OutcomeKind   `json:"kind"`
	Record *TargetRecord `json:"record,omitempty"`
	Err    error         `json:"-"`
}
