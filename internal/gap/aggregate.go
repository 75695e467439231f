package gap

import (
	"fmt"
	"sort"
	"time"

	"github.com/scholarai/gapfinder/pkg/models"
)

// Aggregate folds per-gap outcomes into the final analysis result. Pure
// function over already-collected state: deterministic for a fixed set of
// outcomes, restores generation order regardless of pipeline completion
// order, and never touches an external dependency.
func Aggregate(analysis *models.Analysis, gaps []*models.Gap, completedAt time.Time) models.AnalysisResult {
	ordered := make([]models.Gap, len(gaps))
	for i, g := range gaps {
		ordered[i] = *g
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].OrderIndex < ordered[j].OrderIndex
	})

	total := len(ordered)
	valid, errored := 0, 0
	for _, g := range ordered {
		if models.GapReportable(g.Status) {
			valid++
		}
		if g.Status == models.GapStatusError {
			errored++
		}
	}

	status := models.AnalysisStatusCompleted
	switch {
	case total == 0 || errored == total:
		status = models.AnalysisStatusFailed
	case errored > 0:
		status = models.AnalysisStatusPartialFailure
	}

	completedAt = completedAt.UTC()
	return models.AnalysisResult{
		AnalysisID:    analysis.ID,
		RequestID:     analysis.RequestID,
		CorrelationID: analysis.CorrelationID,
		Status:        status,
		Message:       composeMessage(status, total, valid, errored),
		TotalGaps:     total,
		ValidGaps:     valid,
		Gaps:          ordered,
		CompletedAt:   &completedAt,
	}
}

func composeMessage(status string, total, valid, errored int) string {
	switch status {
	case models.AnalysisStatusFailed:
		if total == 0 {
			return "Analysis failed: no gap candidates could be generated"
		}
		return fmt.Sprintf("Analysis failed: all %d gap pipelines errored", total)
	case models.AnalysisStatusPartialFailure:
		return fmt.Sprintf("Successfully identified %d valid research gaps; %d of %d gap pipelines errored",
			valid, errored, total)
	default:
		return fmt.Sprintf("Successfully identified %d valid research gaps", valid)
	}
}
