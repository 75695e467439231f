package models

import (
	"time"

	"github.com/google/uuid"
)

// Validation depth presets controlling how many search results each
// provider contributes during gap validation.
const (
	ValidationDepthShallow  = "shallow"
	ValidationDepthStandard = "standard"
	ValidationDepthThorough = "thorough"
)

// AnalysisConfig carries the caller-supplied knobs for one analysis.
// Immutable once the request is accepted.
type AnalysisConfig struct {
	MaxGaps         int    `json:"max_gaps"`
	ValidationDepth string `json:"validation_depth"`
}

// ResultsPerProvider maps the validation depth to a per-provider result cap.
func (c AnalysisConfig) ResultsPerProvider() int {
	switch c.ValidationDepth {
	case ValidationDepthShallow:
		return 3
	case ValidationDepthThorough:
		return 10
	default:
		return 5
	}
}

// AnalysisRequest identifies one paper/extraction pair to analyze. Arrives
// over HTTP or the gap.analysis.request queue; both carry the same JSON shape.
type AnalysisRequest struct {
	PaperID       uuid.UUID      `json:"paper_id"`
	ExtractionID  uuid.UUID      `json:"extraction_id"`
	CorrelationID string         `json:"correlation_id"`
	RequestID     string         `json:"request_id"`
	Config        AnalysisConfig `json:"config"`
}

// AnalysisResult is the terminal, caller-visible outcome of one analysis.
// Gaps appear in generation order. Produced only by the aggregator; never
// mutated afterwards.
type AnalysisResult struct {
	AnalysisID    uuid.UUID  `json:"analysis_id"`
	RequestID     string     `json:"request_id"`
	CorrelationID string     `json:"correlation_id"`
	Status        string     `json:"status"`
	Message       string     `json:"message"`
	TotalGaps     int        `json:"total_gaps"`
	ValidGaps     int        `json:"valid_gaps"`
	Gaps          []Gap      `json:"gaps"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}
