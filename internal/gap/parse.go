package gap

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/scholarai/gapfinder/pkg/models"
)

// generatedGap is the wire shape of one gap in the generation response.
type generatedGap struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Reasoning   string `json:"reasoning"`
	Evidence    string `json:"evidence"`
}

// validationVerdict is the wire shape of the validation response.
type validationVerdict struct {
	IsValid           bool    `json:"is_valid"`
	Confidence        float64 `json:"confidence"`
	Reasoning         string  `json:"reasoning"`
	SupportingPapers  []int   `json:"supporting_papers"`
	ConflictingPapers []int   `json:"conflicting_papers"`
}

// expansionPayload is the wire shape of the expansion response.
type expansionPayload struct {
	PotentialImpact           string          `json:"potential_impact"`
	ResearchHints             string          `json:"research_hints"`
	ImplementationSuggestions string          `json:"implementation_suggestions"`
	RisksAndChallenges        string          `json:"risks_and_challenges"`
	RequiredResources         string          `json:"required_resources"`
	EstimatedDifficulty       string          `json:"estimated_difficulty"`
	EstimatedTimeline         string          `json:"estimated_timeline"`
	SuggestedTopics           []expandedTopic `json:"suggested_topics"`
}

type expandedTopic struct {
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	ResearchQuestions []string `json:"research_questions"`
	Methodology       string   `json:"methodology"`
	ExpectedOutcome   string   `json:"expected_outcome"`
	RelevanceScore    float64  `json:"relevance_score"`
}

// parseGeneratedGaps decodes the generation response into gap candidates,
// dropping entries without a name or description and normalizing categories.
func parseGeneratedGaps(raw string) ([]generatedGap, error) {
	text, err := extractJSON(raw, '[')
	if err != nil {
		return nil, err
	}

	var decoded []generatedGap
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		return nil, fmt.Errorf("%w: decoding gap array: %v", models.ErrInvalidResponse, err)
	}

	var gaps []generatedGap
	for _, g := range decoded {
		if strings.TrimSpace(g.Name) == "" || strings.TrimSpace(g.Description) == "" {
			continue
		}
		g.Category = strings.ToLower(strings.TrimSpace(g.Category))
		if !gapCategories[g.Category] {
			g.Category = "empirical"
		}
		gaps = append(gaps, g)
	}
	return gaps, nil
}

func parseValidationVerdict(raw string) (validationVerdict, error) {
	var v validationVerdict
	text, err := extractJSON(raw, '{')
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return v, fmt.Errorf("%w: decoding validation verdict: %v", models.ErrInvalidResponse, err)
	}
	return v, nil
}

func parseExpansion(raw string) (expansionPayload, error) {
	var p expansionPayload
	text, err := extractJSON(raw, '{')
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return p, fmt.Errorf("%w: decoding expansion: %v", models.ErrInvalidResponse, err)
	}
	return p, nil
}

// extractJSON pulls the first JSON value opening with the given delimiter
// out of model output. Models routinely wrap JSON in markdown fences or
// surround it with prose.
func extractJSON(raw string, open byte) (string, error) {
	s := strings.TrimSpace(raw)

	// Strip a markdown code fence if present.
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	closing := byte('}')
	if open == '[' {
		closing = ']'
	}

	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, closing)
	if start < 0 || end < start {
		return "", fmt.Errorf("%w: no JSON %q...%q found in output", models.ErrInvalidResponse, open, closing)
	}
	return s[start : end+1], nil
}

// parseQuery normalizes the model's search query output, stripping quotes
// and collapsing it to at most four plain terms.
func parseQuery(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, "`\"'")
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	words := strings.Fields(s)
	if len(words) > 4 {
		words = words[:4]
	}
	return strings.Join(words, " ")
}

// truncateString truncates s to maxBytes without splitting UTF-8 runes.
func truncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
