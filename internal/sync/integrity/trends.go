package integrity

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vietddude/syncer/internal/core/domain"
)

// TrendPoint is one verification run in a trend series.
type TrendPoint struct {
	At         time.Time `json:"at"`
	Score      float64   `json:"score"`
	IssueCount int       `json:"issue_count"`
}

// TrendReport aggregates historical verification runs.
type TrendReport struct {
	WindowHours     int          `json:"window_hours"`
	Runs            int          `json:"runs"`
	Series          []TrendPoint `json:"series"`
	AverageScore    float64      `json:"average_score"`
	WorstResources  []string     `json:"worst_resources"`
	DataConsistency float64      `json:"data_consistency"` // 0.0-1.0
	SyncReliability float64      `json:"sync_reliability"` // 0.0-1.0
}

// AnalyzeTrends aggregates verification runs inside the window into
// time-series data and qualitative health indicators. The default
// window is one week (168 hours).
func (v *Verifier) AnalyzeTrends(ctx context.Context, windowHours int) (*TrendReport, error) {
	if windowHours <= 0 {
		windowHours = 168
	}
	if v.runs == nil {
		return nil, fmt.Errorf("no verification run history configured")
	}

	since := v.now().Add(-time.Duration(windowHours) * time.Hour)
	runs, err := v.runs.ListSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load verification history: %w", err)
	}

	report := &TrendReport{WindowHours: windowHours, Runs: len(runs)}
	if len(runs) == 0 {
		report.DataConsistency = 1.0
		report.SyncReliability = 1.0
		return report, nil
	}

	var scoreSum float64
	healthyRuns := 0
	resourceScores := make(map[string][]float64)

	for _, run := range runs {
		report.Series = append(report.Series, TrendPoint{
			At:         run.GeneratedAt,
			Score:      run.Score,
			IssueCount: run.IssueCount,
		})
		scoreSum += run.Score

		switch run.Status {
		case domain.IntegrityExcellent, domain.IntegrityGood, domain.IntegrityAcceptable:
			healthyRuns++
		}

		for _, res := range run.Resources {
			score := 100.0
			if res.Compared > 0 {
				score = 100 * float64(res.Consistent) / float64(res.Compared)
			}
			resourceScores[res.Resource] = append(resourceScores[res.Resource], score)
		}
	}

	report.AverageScore = scoreSum / float64(len(runs))
	report.DataConsistency = report.AverageScore / 100
	report.SyncReliability = float64(healthyRuns) / float64(len(runs))
	report.WorstResources = worstResources(resourceScores, 3)
	return report, nil
}

// worstResources ranks resources by average score, lowest first.
func worstResources(scores map[string][]float64, n int) []string {
	type avg struct {
		resource string
		score    float64
	}

	avgs := make([]avg, 0, len(scores))
	for resource, vals := range scores {
		var sum float64
		for _, s := range vals {
			sum += s
		}
		avgs = append(avgs, avg{resource, sum / float64(len(vals))})
	}

	sort.Slice(avgs, func(i, j int) bool {
		if avgs[i].score != avgs[j].score {
			return avgs[i].score < avgs[j].score
		}
		return avgs[i].resource < avgs[j].resource
	})

	out := make([]string, 0, n)
	for _, a := range avgs {
		if len(out) == n {
			break
		}
		if a.score < 100 {
			out = append(out, a.resource)
		}
	}
	return out
}
