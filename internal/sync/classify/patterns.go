package classify

import (
	"fmt"
	"sort"
	"time"
)

// Event is one historical classified error, as recorded by the engine.
type Event struct {
	Classification Classification
	Operation      string
	Timestamp      time.Time
}

// PatternReport summarizes recurring failures across a window of events.
type PatternReport struct {
	CountsByCategory  map[Category]int `json:"counts_by_category"`
	CountsByOperation map[string]int   `json:"counts_by_operation"`
	Problematic       []string         `json:"problematic_operations"`
	Recommendations   []string         `json:"recommendations"`
}

// ProblematicThreshold is the per-operation error count above which an
// operation is flagged in pattern reports.
const ProblematicThreshold = 5

// AnalyzePatterns aggregates a list of past classified errors into
// per-category and per-operation counts, flags operations exceeding the
// frequency threshold, and derives infrastructure recommendations.
func AnalyzePatterns(history []Event) PatternReport {
	report := PatternReport{
		CountsByCategory:  make(map[Category]int),
		CountsByOperation: make(map[string]int),
	}

	timeoutOps := make(map[string]int)
	for _, ev := range history {
		report.CountsByCategory[ev.Classification.Category]++
		report.CountsByOperation[ev.Operation]++
		if ev.Classification.Subcategory == "source_timeout" {
			timeoutOps[ev.Operation]++
		}
	}

	for op, count := range report.CountsByOperation {
		if count > ProblematicThreshold {
			report.Problematic = append(report.Problematic, op)
		}
	}
	sort.Strings(report.Problematic)

	report.Recommendations = recommend(report, timeoutOps)
	return report
}

func recommend(report PatternReport, timeoutOps map[string]int) []string {
	var recs []string

	for op, count := range timeoutOps {
		if count >= 3 {
			recs = append(recs, fmt.Sprintf(
				"add caching or reduce page size for repeated timeouts on %s", op))
		}
	}
	if report.CountsByCategory[CategoryData] > 0 {
		recs = append(recs,
			"review source data quality: constraint violations require manual resolution")
	}
	if report.CountsByCategory[CategoryNetwork] > ProblematicThreshold {
		recs = append(recs,
			"consider enabling the circuit breaker for source operations")
	}
	if report.CountsByCategory[CategoryPerformance] > ProblematicThreshold {
		recs = append(recs,
			"lower the configured rate limit or batch size to stay within source quotas")
	}

	sort.Strings(recs)
	return recs
}
