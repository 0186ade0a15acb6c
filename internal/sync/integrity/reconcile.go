package integrity

import (
	"context"
	"fmt"
	"strings"

	"github.com/vietddude/syncer/internal/core/domain"
	"github.com/vietddude/syncer/internal/sync/processor"
)

// ReconcileOptions tunes a reconciliation pass.
type ReconcileOptions struct {
	// DryRun reports the fix plan without touching the target store.
	DryRun bool

	// Actor is threaded through to target create/update calls.
	Actor string
}

// ReconcileSummary reports what a reconciliation pass did (or would do).
type ReconcileSummary struct {
	TotalIssues    int      `json:"total_issues"`
	Resolved       int      `json:"resolved"`
	ResolutionRate float64  `json:"resolution_rate"`
	Actions        []string `json:"actions"`
}

// Reconcile walks a report's discrepancies and either plans or applies
// fixes through the target processor's create/update path. The
// resolution rate is 1.0 for an empty report.
func (v *Verifier) Reconcile(ctx context.Context, report *domain.IntegrityReport, opts ReconcileOptions) (*ReconcileSummary, error) {
	summary := &ReconcileSummary{TotalIssues: report.IssueCount()}
	if summary.TotalIssues == 0 {
		summary.ResolutionRate = 1.0
		return summary, nil
	}

	for _, disc := range report.CountDiscrepancy {
		// Count-level drift needs a resync, not a record-level patch.
		summary.Actions = append(summary.Actions, fmt.Sprintf(
			"resync %s: source has %d records, target has %d",
			disc.Resource, disc.SourceCount, disc.TargetCount))
	}

	for _, missing := range report.MissingRecords {
		resolved, action, err := v.reconcileMissing(ctx, missing, opts)
		if err != nil {
			return nil, err
		}
		summary.Actions = append(summary.Actions, action)
		if resolved {
			summary.Resolved++
		}
	}

	for _, mismatch := range report.FieldMismatches {
		resolved, action, err := v.reconcileMismatch(ctx, report, mismatch, opts)
		if err != nil {
			return nil, err
		}
		summary.Actions = append(summary.Actions, action)
		if resolved {
			summary.Resolved++
		}
	}

	summary.ResolutionRate = float64(summary.Resolved) / float64(summary.TotalIssues)
	v.logger.Info("reconciliation finished",
		"total_issues", summary.TotalIssues,
		"resolved", summary.Resolved,
		"resolution_rate", summary.ResolutionRate,
		"dry_run", opts.DryRun,
	)
	return summary, nil
}

// reconcileMissing re-creates a record missing in the target from its
// source copy. Records missing in the source cannot be fixed from here.
func (v *Verifier) reconcileMissing(ctx context.Context, entry string, opts ReconcileOptions) (bool, string, error) {
	resource, key, missingInTarget := parseMissingEntry(entry)
	if !missingInTarget {
		return false, fmt.Sprintf("flag %s/%s for source-side review", resource, key), nil
	}

	if opts.DryRun {
		return false, fmt.Sprintf("would create %s/%s from source", resource, key), nil
	}

	spec, ok := v.specs[resource]
	if !ok {
		return false, "", fmt.Errorf("no verification spec for resource %s", resource)
	}
	adapter, err := v.adapters.Get(spec.Adapter)
	if err != nil {
		return false, "", err
	}
	if err := adapter.Init(ctx, spec.SourceConfig); err != nil {
		return false, "", err
	}

	index, err := indexSource(ctx, adapter, spec)
	if err != nil {
		return false, "", err
	}
	src, ok := index[key]
	if !ok {
		return false, fmt.Sprintf("source no longer has %s/%s, skipping", resource, key), nil
	}

	proc, err := processor.New(v.store, resource, processor.Config{
		UniqueField:  spec.UniqueField,
		FieldMapping: spec.FieldMapping,
	})
	if err != nil {
		return false, "", err
	}

	outcome := proc.ProcessRecord(ctx, src, opts.Actor)
	if outcome.Err != nil {
		return false, fmt.Sprintf("failed to restore %s/%s: %v", resource, key, outcome.Err), nil
	}
	return true, fmt.Sprintf("created %s/%s from source", resource, key), nil
}

// reconcileMismatch overwrites a diverged field with the source value.
func (v *Verifier) reconcileMismatch(
	ctx context.Context,
	report *domain.IntegrityReport,
	mismatch domain.FieldMismatch,
	opts ReconcileOptions,
) (bool, string, error) {
	if opts.DryRun {
		return false, fmt.Sprintf(
			"would set %s=%v on record %s (currently %v)",
			mismatch.Field, mismatch.Expected, mismatch.RecordID, mismatch.Actual), nil
	}

	record, resource := v.findRecordByID(ctx, report, mismatch.RecordID)
	if record == nil {
		return false, fmt.Sprintf("record %s vanished before reconciliation", mismatch.RecordID), nil
	}

	_, err := v.store.Update(ctx, record, map[string]any{mismatch.Field: mismatch.Expected}, opts.Actor)
	if err != nil {
		return false, fmt.Sprintf("failed to patch %s/%s: %v", resource, mismatch.RecordID, err), nil
	}
	return true, fmt.Sprintf("patched %s on record %s", mismatch.Field, mismatch.RecordID), nil
}

// findRecordByID scans the report's resources for the record. Reports
// carry record IDs, not resources, so this walks each verified resource.
func (v *Verifier) findRecordByID(ctx context.Context, report *domain.IntegrityReport, id string) (*domain.TargetRecord, string) {
	for _, res := range report.DetailedResults {
		offset := 0
		const pageSize = 500
		for {
			page, err := v.store.List(ctx, res.Resource, pageSize, offset)
			if err != nil || len(page) == 0 {
				break
			}
			offset += len(page)
			for _, rec := range page {
				if rec.ID == id {
					return rec, res.Resource
				}
			}
		}
	}
	return nil, ""
}

// parseMissingEntry splits "resource/key missing in target|source".
func parseMissingEntry(entry string) (resource, key string, missingInTarget bool) {
	missingInTarget = strings.HasSuffix(entry, "missing in target")
	head := strings.SplitN(entry, " ", 2)[0]
	if i := strings.LastIndex(head, "/"); i >= 0 {
		return head[:i], head[i+1:], missingInTarget
	}
	return head, "", missingInTarget
}
