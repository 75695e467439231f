package gap

import (
	"testing"

	"github.com/scholarai/gapfinder/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON_PlainObject(t *testing.T) {
	out, err := extractJSON(`{"a": 1}`, '{')
	require.NoError(t, err)
	assert.Equal(t, `{"a": 1}`, out)
}

func TestExtractJSON_MarkdownFence(t *testing.T) {
	raw := "```json\n{\"is_valid\": true}\n```"
	out, err := extractJSON(raw, '{')
	require.NoError(t, err)
	assert.Equal(t, `{"is_valid": true}`, out)
}

func TestExtractJSON_SurroundingProse(t *testing.T) {
	raw := "Here is the result you asked for:\n[{\"name\": \"x\"}]\nLet me know if you need more."
	out, err := extractJSON(raw, '[')
	require.NoError(t, err)
	assert.Equal(t, `[{"name": "x"}]`, out)
}

func TestExtractJSON_NoJSON(t *testing.T) {
	_, err := extractJSON("I could not find any gaps.", '[')
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidResponse)
	// The message names the delimiters that were expected.
	assert.Contains(t, err.Error(), `'['`)
	assert.Contains(t, err.Error(), `']'`)
}

func TestParseGeneratedGaps(t *testing.T) {
	raw := "```json\n" + `[
		{"name": "Gap A", "description": "Missing A.", "category": "Methodological", "reasoning": "r1"},
		{"name": "", "description": "No name, dropped."},
		{"name": "Gap B", "description": "Missing B.", "category": "made-up-category"}
	]` + "\n```"

	gaps, err := parseGeneratedGaps(raw)
	require.NoError(t, err)
	require.Len(t, gaps, 2)
	assert.Equal(t, "methodological", gaps[0].Category)
	assert.Equal(t, "empirical", gaps[1].Category)
}

func TestParseGeneratedGaps_Malformed(t *testing.T) {
	_, err := parseGeneratedGaps(`[{"name": "unterminated"`)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidResponse)
}

func TestParseValidationVerdict(t *testing.T) {
	raw := `Sure! {"is_valid": true, "confidence": 0.85, "reasoning": "open", "supporting_papers": [1, 3], "conflicting_papers": []}`
	v, err := parseValidationVerdict(raw)
	require.NoError(t, err)
	assert.True(t, v.IsValid)
	assert.InDelta(t, 0.85, v.Confidence, 1e-9)
	assert.Equal(t, []int{1, 3}, v.SupportingPapers)
}

func TestParseExpansion(t *testing.T) {
	raw := `{
		"potential_impact": "big",
		"estimated_difficulty": "high",
		"suggested_topics": [
			{"title": "T1", "research_questions": ["q1"], "relevance_score": 0.9},
			{"title": "T2", "relevance_score": 1.7},
			{"title": "T3", "relevance_score": -0.2}
		]
	}`
	p, err := parseExpansion(raw)
	require.NoError(t, err)
	assert.Equal(t, "big", p.PotentialImpact)
	assert.Len(t, p.SuggestedTopics, 3)
}

func TestParseQuery(t *testing.T) {
	assert.Equal(t, "graph neural networks", parseQuery("  \"graph neural networks\"  "))
	assert.Equal(t, "a b c d", parseQuery("a b c d e f"))
	assert.Equal(t, "first line", parseQuery("first line\nsecond line"))
	assert.Equal(t, "", parseQuery("   "))
}

func TestTruncateString_RespectsRuneBoundaries(t *testing.T) {
	s := "héllo"
	out := truncateString(s, 2) // cutting inside the two-byte é
	assert.Equal(t, "h", out)
	assert.Equal(t, s, truncateString(s, 100))
}
