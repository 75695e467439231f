// Package models contains shared data models used across the gapfinder codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Analysis lifecycle states. An analysis moves PENDING -> PROCESSING and
// terminates in exactly one of COMPLETED, PARTIAL_FAILURE, or FAILED.
const (
	AnalysisStatusPending        = "PENDING"
	AnalysisStatusProcessing     = "PROCESSING"
	AnalysisStatusCompleted      = "COMPLETED"
	AnalysisStatusPartialFailure = "PARTIAL_FAILURE"
	AnalysisStatusFailed         = "FAILED"
)

// Analysis is one run of the gap pipeline for a single paper/extraction pair.
// The API returns the analysis id on POST /api/v1/analyses; the client polls
// GET /api/v1/analyses/{id} until the status is terminal.
type Analysis struct {
	ID            uuid.UUID  `db:"id"             json:"id"`
	PaperID       uuid.UUID  `db:"paper_id"       json:"paper_id"`
	ExtractionID  uuid.UUID  `db:"extraction_id"  json:"extraction_id"`
	CorrelationID string     `db:"correlation_id" json:"correlation_id"`
	RequestID     string     `db:"request_id"     json:"request_id"`
	Status        string     `db:"status"         json:"status"`
	TotalGaps     int        `db:"total_gaps"     json:"total_gaps"`
	ValidGaps     int        `db:"valid_gaps"     json:"valid_gaps"`
	ErrorMessage  *string    `db:"error_message"  json:"error_message,omitempty"`
	Config        AnalysisConfig `db:"config"     json:"config"`
	StartedAt     *time.Time `db:"started_at"     json:"started_at,omitempty"`
	CompletedAt   *time.Time `db:"completed_at"   json:"completed_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at"     json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"     json:"updated_at"`
}

// analysisTransitions enumerates the legal analysis status transitions.
var analysisTransitions = map[string][]string{
	AnalysisStatusPending:    {AnalysisStatusProcessing, AnalysisStatusFailed},
	AnalysisStatusProcessing: {AnalysisStatusCompleted, AnalysisStatusPartialFailure, AnalysisStatusFailed},
}

// ValidAnalysisTransition reports whether moving an analysis from one status
// to another is legal. Terminal statuses have no outgoing transitions.
func ValidAnalysisTransition(from, to string) bool {
	for _, next := range analysisTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AnalysisTerminal reports whether the given status is terminal.
func AnalysisTerminal(status string) bool {
	switch status {
	case AnalysisStatusCompleted, AnalysisStatusPartialFailure, AnalysisStatusFailed:
		return true
	}
	return false
}
