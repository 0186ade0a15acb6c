package integrity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/syncer/internal/core/domain"
	"github.com/vietddude/syncer/internal/infra/storage"
	"github.com/vietddude/syncer/internal/sync/metrics"
	"github.com/vietddude/syncer/internal/sync/source"
)

// ErrInvalidMode is returned for verification modes outside
// count_only, sample and full.
var ErrInvalidMode = errors.New("invalid verification mode")

// ResourceSpec tells the verifier how to compare one target resource
// against its source.
type ResourceSpec struct {
	// Adapter names the source adapter records come from.
	Adapter string `yaml:"adapter"`

	// SourceConfig configures the adapter for this resource.
	SourceConfig map[string]any `yaml:"source_config"`

	// UniqueField is the target attribute matched against source
	// external IDs.
	UniqueField string `yaml:"unique_field"`

	// FieldMapping maps source field names to target attribute names,
	// scoping which fields are compared.
	FieldMapping map[string]string `yaml:"field_mapping"`
}

// Options tunes a verification run.
type Options struct {
	// Resources restricts the run to these resource identifiers.
	// Empty means every configured resource.
	Resources []string

	// SampleSize bounds how many target records a sample run draws
	// per resource. Defaults to 100.
	SampleSize int
}

// Verifier compares record counts and field values between source
// systems and the target store.
type Verifier struct {
	adapters *source.Registry
	store    storage.TargetStore
	runs     storage.VerificationRunRepository
	specs    map[string]ResourceSpec
	logger   *slog.Logger
	now      func() time.Time
}

// NewVerifier creates a verifier over the configured resource specs.
// runs may be nil when trend persistence is not wanted.
func NewVerifier(
	adapters *source.Registry,
	store storage.TargetStore,
	runs storage.VerificationRunRepository,
	specs map[string]ResourceSpec,
	logger *slog.Logger,
) *Verifier {
	return &Verifier{
		adapters: adapters,
		store:    store,
		runs:     runs,
		specs:    specs,
		logger:   logger,
		now:      time.Now,
	}
}

// Verify runs one integrity check in the given mode and persists its
// summary for trend analysis.
func (v *Verifier) Verify(ctx context.Context, mode domain.VerificationMode, opts Options) (*domain.IntegrityReport, error) {
	switch mode {
	case domain.VerifyCountOnly, domain.VerifySample, domain.VerifyFull:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	resources := opts.Resources
	if len(resources) == 0 {
		for name := range v.specs {
			resources = append(resources, name)
		}
	}

	report := &domain.IntegrityReport{
		RunID:       uuid.NewString(),
		Mode:        mode,
		GeneratedAt: v.now(),
		OptionsUsed: map[string]any{"sample_size": opts.SampleSize},
	}

	compared, consistent := 0, 0
	for _, resource := range resources {
		spec, ok := v.specs[resource]
		if !ok {
			return nil, fmt.Errorf("no verification spec for resource %s", resource)
		}

		res, err := v.verifyResource(ctx, mode, resource, spec, opts, report)
		if err != nil {
			return nil, err
		}
		compared += res.Compared
		consistent += res.Consistent
		report.DetailedResults = append(report.DetailedResults, res)
	}

	// No comparisons at all is an empty but valid result.
	report.IntegrityScore = 100
	if compared > 0 {
		report.IntegrityScore = 100 * float64(consistent) / float64(compared)
	}
	report.OverallStatus = domain.StatusForScore(report.IntegrityScore)
	report.Recommendations = recommendationsFor(report)

	metrics.IntegrityScore.Set(report.IntegrityScore)
	v.logger.Info("integrity verification finished",
		"run_id", report.RunID,
		"mode", string(mode),
		"score", report.IntegrityScore,
		"status", string(report.OverallStatus),
		"issues", report.IssueCount(),
	)

	if v.runs != nil {
		run := &domain.VerificationRun{
			ID:          report.RunID,
			Mode:        mode,
			Score:       report.IntegrityScore,
			Status:      report.OverallStatus,
			IssueCount:  report.IssueCount(),
			Resources:   report.DetailedResults,
			GeneratedAt: report.GeneratedAt,
		}
		if err := v.runs.Save(ctx, run); err != nil {
			v.logger.Warn("failed to persist verification run", "run_id", report.RunID, "error", err)
		}
	}
	return report, nil
}

func (v *Verifier) verifyResource(
	ctx context.Context,
	mode domain.VerificationMode,
	resource string,
	spec ResourceSpec,
	opts Options,
	report *domain.IntegrityReport,
) (domain.ResourceResult, error) {
	adapter, err := v.adapters.Get(spec.Adapter)
	if err != nil {
		return domain.ResourceResult{}, err
	}
	if err := adapter.Init(ctx, spec.SourceConfig); err != nil {
		return domain.ResourceResult{}, fmt.Errorf("adapter init for %s: %w", resource, err)
	}

	switch mode {
	case domain.VerifyCountOnly:
		return v.verifyCounts(ctx, resource, adapter, report)
	case domain.VerifySample:
		return v.verifySample(ctx, resource, spec, adapter, opts, report)
	default:
		return v.verifyFull(ctx, resource, spec, adapter, report)
	}
}

// verifyCounts compares aggregate counts. One comparison per resource.
func (v *Verifier) verifyCounts(
	ctx context.Context,
	resource string,
	adapter source.Adapter,
	report *domain.IntegrityReport,
) (domain.ResourceResult, error) {
	targetCount, err := v.store.Count(ctx, resource)
	if err != nil {
		return domain.ResourceResult{}, err
	}

	sourceCount, known, err := adapter.TotalCount(ctx)
	if err != nil {
		return domain.ResourceResult{}, fmt.Errorf("source count for %s: %w", resource, err)
	}

	res := domain.ResourceResult{Resource: resource, Compared: 1, Consistent: 1}
	if known && sourceCount != targetCount {
		res.Consistent = 0
		report.CountDiscrepancy = append(report.CountDiscrepancy, domain.CountDiscrepancy{
			Resource:    resource,
			TargetCount: targetCount,
			SourceCount: sourceCount,
			Delta:       sourceCount - targetCount,
		})
	}
	res.Status = resourceStatus(res)
	return res, nil
}

// verifySample spot-checks a bounded number of target records against
// the source.
func (v *Verifier) verifySample(
	ctx context.Context,
	resource string,
	spec ResourceSpec,
	adapter source.Adapter,
	opts Options,
	report *domain.IntegrityReport,
) (domain.ResourceResult, error) {
	size := opts.SampleSize
	if size <= 0 {
		size = 100
	}

	sample, err := v.store.Sample(ctx, resource, size)
	if err != nil {
		return domain.ResourceResult{}, err
	}

	index, err := indexSource(ctx, adapter, spec)
	if err != nil {
		return domain.ResourceResult{}, err
	}

	res := domain.ResourceResult{Resource: resource}
	for _, rec := range sample {
		res.Compared++
		key := fmt.Sprint(rec.Attributes[spec.UniqueField])
		expected, ok := index[key]
		if !ok {
			report.MissingRecords = append(report.MissingRecords,
				fmt.Sprintf("%s/%s missing in source", resource, key))
			continue
		}
		if mismatches := compareFields(rec, expected, spec.FieldMapping); len(mismatches) > 0 {
			report.FieldMismatches = append(report.FieldMismatches, mismatches...)
			continue
		}
		res.Consistent++
	}
	res.Status = resourceStatus(res)
	return res, nil
}

// verifyFull enumerates both sides, finding records missing on either
// side and field-level mismatches on matched pairs.
func (v *Verifier) verifyFull(
	ctx context.Context,
	resource string,
	spec ResourceSpec,
	adapter source.Adapter,
	report *domain.IntegrityReport,
) (domain.ResourceResult, error) {
	index, err := indexSource(ctx, adapter, spec)
	if err != nil {
		return domain.ResourceResult{}, err
	}

	res := domain.ResourceResult{Resource: resource}
	seen := make(map[string]bool, len(index))

	offset := 0
	const pageSize = 500
	for {
		page, err := v.store.List(ctx, resource, pageSize, offset)
		if err != nil {
			return domain.ResourceResult{}, err
		}
		if len(page) == 0 {
			break
		}
		offset += len(page)

		for _, rec := range page {
			res.Compared++
			key := fmt.Sprint(rec.Attributes[spec.UniqueField])
			seen[key] = true

			expected, ok := index[key]
			if !ok {
				report.MissingRecords = append(report.MissingRecords,
					fmt.Sprintf("%s/%s missing in source", resource, key))
				continue
			}
			if mismatches := compareFields(rec, expected, spec.FieldMapping); len(mismatches) > 0 {
				report.FieldMismatches = append(report.FieldMismatches, mismatches...)
				continue
			}
			res.Consistent++
		}
	}

	for key := range index {
		if !seen[key] {
			res.Compared++
			report.MissingRecords = append(report.MissingRecords,
				fmt.Sprintf("%s/%s missing in target", resource, key))
		}
	}

	res.Status = resourceStatus(res)
	return res, nil
}

// indexSource drains the adapter into a map keyed by external ID.
func indexSource(ctx context.Context, adapter source.Adapter, spec ResourceSpec) (map[string]*domain.SourceRecord, error) {
	it, err := adapter.Stream(ctx)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	index := make(map[string]*domain.SourceRecord)
	for {
		rec, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			return index, nil
		}
		if err != nil {
			return nil, err
		}
		index[rec.ExternalID] = rec
	}
}

// compareFields checks every mapped field of a matched pair.
func compareFields(target *domain.TargetRecord, src *domain.SourceRecord, mapping map[string]string) []domain.FieldMismatch {
	var mismatches []domain.FieldMismatch
	for srcField, dstField := range mapping {
		expected, ok := src.Fields[srcField]
		if !ok {
			continue
		}
		actual := target.Attributes[dstField]
		if fmt.Sprint(expected) != fmt.Sprint(actual) {
			mismatches = append(mismatches, domain.FieldMismatch{
				RecordID: target.ID,
				Field:    dstField,
				Expected: expected,
				Actual:   actual,
			})
		}
	}
	return mismatches
}

func resourceStatus(res domain.ResourceResult) domain.IntegrityStatus {
	if res.Compared == 0 {
		return domain.IntegrityExcellent
	}
	return domain.StatusForScore(100 * float64(res.Consistent) / float64(res.Compared))
}

func recommendationsFor(report *domain.IntegrityReport) []string {
	var recs []string
	if len(report.CountDiscrepancy) > 0 {
		recs = append(recs, "run a full sync for resources with count discrepancies")
	}
	if len(report.MissingRecords) > 0 {
		recs = append(recs, "reconcile missing records before the next scheduled sync")
	}
	if len(report.FieldMismatches) > 0 {
		recs = append(recs, "review field mappings; matched records disagree on mapped fields")
	}
	if report.OverallStatus == domain.IntegrityCritical {
		recs = append(recs, "pause dependent consumers until integrity recovers")
	}
	return recs
}
