package models

import (
	"time"

	"github.com/google/uuid"
)

// Gap validation states. Every gap starts in GENERATED; the orchestrator
// moves it through VALIDATING into exactly one of VALID, INVALID, or ERROR,
// and a VALID gap may additionally reach EXPANDED.
const (
	GapStatusGenerated  = "GENERATED"
	GapStatusValidating = "VALIDATING"
	GapStatusValid      = "VALID"
	GapStatusInvalid    = "INVALID"
	GapStatusExpanded   = "EXPANDED"
	GapStatusError      = "ERROR"
)

// Evidence relations assigned by the validation analysis.
const (
	EvidenceSupporting  = "supporting"
	EvidenceConflicting = "conflicting"
	EvidenceNeutral     = "neutral"
)

// Gap is one candidate research gap owned by exactly one Analysis.
// OrderIndex records generation order, which the final result preserves
// regardless of the order pipelines complete in.
type Gap struct {
	ID         uuid.UUID `db:"id"          json:"id"`
	AnalysisID uuid.UUID `db:"analysis_id" json:"analysis_id"`
	OrderIndex int       `db:"order_index" json:"order_index"`

	Name        string `db:"name"        json:"name"`
	Description string `db:"description" json:"description"`
	Category    string `db:"category"    json:"category"`
	Reasoning   string `db:"reasoning"   json:"reasoning,omitempty"`

	Status     string  `db:"status"     json:"status"`
	Confidence float64 `db:"confidence" json:"confidence"`

	ValidationQuery     *string `db:"validation_query"     json:"validation_query,omitempty"`
	ValidationReasoning *string `db:"validation_reasoning" json:"validation_reasoning,omitempty"`
	PapersAnalyzed      int     `db:"papers_analyzed"      json:"papers_analyzed"`
	ErrorReason         *string `db:"error_reason"         json:"error_reason,omitempty"`

	// Expansion fields; nil until the gap reaches EXPANDED.
	PotentialImpact           *string `db:"potential_impact"           json:"potential_impact,omitempty"`
	ResearchHints             *string `db:"research_hints"             json:"research_hints,omitempty"`
	ImplementationSuggestions *string `db:"implementation_suggestions" json:"implementation_suggestions,omitempty"`
	RisksAndChallenges        *string `db:"risks_and_challenges"       json:"risks_and_challenges,omitempty"`
	RequiredResources         *string `db:"required_resources"         json:"required_resources,omitempty"`
	EstimatedDifficulty       *string `db:"estimated_difficulty"       json:"estimated_difficulty,omitempty"`
	EstimatedTimeline         *string `db:"estimated_timeline"         json:"estimated_timeline,omitempty"`
	ExpansionWarning          *string `db:"expansion_warning"          json:"expansion_warning,omitempty"`

	Evidence []EvidenceAnchor `db:"evidence" json:"evidence"`
	Topics   []Topic          `db:"topics"   json:"topics"`

	CreatedAt   time.Time  `db:"created_at"   json:"created_at"`
	ValidatedAt *time.Time `db:"validated_at" json:"validated_at,omitempty"`
}

// EvidenceAnchor is one search-result paper consulted during validation.
type EvidenceAnchor struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Source   string `json:"source"`
	Relation string `json:"relation"`
}

// Topic is a suggested research direction attached to an expanded gap.
type Topic struct {
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	ResearchQuestions []string `json:"research_questions"`
	Methodology       string   `json:"methodology,omitempty"`
	ExpectedOutcome   string   `json:"expected_outcome,omitempty"`
	RelevanceScore    float64  `json:"relevance_score"`
}

var gapTransitions = map[string][]string{
	GapStatusGenerated:  {GapStatusValidating},
	GapStatusValidating: {GapStatusValid, GapStatusInvalid, GapStatusError},
	GapStatusValid:      {GapStatusExpanded},
}

// ValidGapTransition reports whether moving a gap from one status to another
// is legal. INVALID, EXPANDED, and ERROR are terminal.
func ValidGapTransition(from, to string) bool {
	for _, next := range gapTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// GapReportable reports whether the gap counts toward valid_gaps.
func GapReportable(status string) bool {
	return status == GapStatusValid || status == GapStatusExpanded
}

// GapTerminal reports whether the gap has finished its pipeline. A VALID gap
// is terminal when expansion failed softly and left it unexpanded.
func GapTerminal(status string) bool {
	switch status {
	case GapStatusValid, GapStatusInvalid, GapStatusExpanded, GapStatusError:
		return true
	}
	return false
}

// ClampScore clamps an AI-reported score to [0, 1]. Out-of-range model
// output is clamped, never rejected.
func ClampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
