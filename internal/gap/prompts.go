package gap

import (
	"fmt"
	"strings"

	"github.com/scholarai/gapfinder/internal/search"
	"github.com/scholarai/gapfinder/pkg/models"
)

// Gap categories the generation prompt constrains the model to.
var gapCategories = map[string]bool{
	"theoretical":       true,
	"methodological":    true,
	"empirical":         true,
	"application":       true,
	"interdisciplinary": true,
}

const maxPromptSectionBytes = 2000

// generationPrompt asks the model to identify research gaps in a paper.
// The response must be a JSON array so parseGeneratedGaps can decode it.
func generationPrompt(paper *models.PaperContent, maxGaps int) string {
	var b strings.Builder

	fmt.Fprintf(&b, `You are an expert research analyst. Analyze the following academic paper and identify between 3 and %d specific research gaps: open problems the paper exposes but does not solve.

Title: %s

Abstract: %s
`, maxGaps, paper.Title, paper.Abstract)

	for _, sec := range paper.Sections {
		text := strings.Join(sec.Paragraphs, "\n")
		fmt.Fprintf(&b, "\nSection: %s\n%s\n", sec.Title, truncateString(text, maxPromptSectionBytes))
	}
	if paper.Conclusion != "" {
		fmt.Fprintf(&b, "\nConclusion: %s\n", truncateString(paper.Conclusion, maxPromptSectionBytes))
	}
	for _, fig := range paper.Figures {
		fmt.Fprintf(&b, "\nFigure %s: %s\n", fig.Label, truncateString(fig.Caption, 300))
	}
	for _, tbl := range paper.Tables {
		fmt.Fprintf(&b, "\nTable %s: %s\n", tbl.Label, truncateString(tbl.Caption, 300))
	}

	b.WriteString(`
For each gap provide:
- "name": a short descriptive name (max 10 words)
- "description": what is missing or unexplored (2-3 sentences)
- "category": one of "theoretical", "methodological", "empirical", "application", "interdisciplinary"
- "reasoning": why this is a genuine gap, citing the paper's own limitations
- "evidence": a quote or paraphrase from the paper supporting the gap

Respond with ONLY a JSON array of gap objects, no other text.`)

	return b.String()
}

// queryPrompt asks the model to turn a gap into a literature search query.
func queryPrompt(g *models.Gap) string {
	return fmt.Sprintf(`Construct a literature search query to find papers related to this research gap.

Gap name: %s
Gap description: %s

Respond with ONLY the query: 2 to 4 plain keywords separated by spaces. No quotes, no boolean operators, no other text.`, g.Name, g.Description)
}

// validationPrompt asks the model to judge a gap against the papers a
// literature search returned.
func validationPrompt(g *models.Gap, results []search.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, `You are validating whether a proposed research gap is genuinely unaddressed in the literature.

Gap name: %s
Gap description: %s
Gap reasoning: %s

Existing papers found by a literature search:
`, g.Name, g.Description, g.Reasoning)

	for i, r := range results {
		fmt.Fprintf(&b, "\n[%d] %s\n%s\n", i+1, r.Title, truncateString(r.Abstract, 500))
	}

	b.WriteString(`
Judge whether the gap remains open given these papers. Respond with ONLY a JSON object:
{
  "is_valid": true or false,
  "confidence": a number between 0.0 and 1.0,
  "reasoning": why the gap is or is not still open,
  "supporting_papers": [indices of papers that confirm the gap is unaddressed],
  "conflicting_papers": [indices of papers that already address the gap]
}`)

	return b.String()
}

// expansionPrompt asks the model to enrich a validated gap with actionable
// research directions.
func expansionPrompt(g *models.Gap) string {
	return fmt.Sprintf(`You are an expert research strategist. Expand the following validated research gap into actionable guidance.

Gap name: %s
Gap description: %s
Validation reasoning: %s

Respond with ONLY a JSON object:
{
  "potential_impact": expected impact of closing this gap,
  "research_hints": concrete starting points for a researcher,
  "implementation_suggestions": methods, datasets, or tools to use,
  "risks_and_challenges": what could go wrong,
  "required_resources": equipment, data, or expertise needed,
  "estimated_difficulty": "low", "medium", or "high",
  "estimated_timeline": rough duration estimate,
  "suggested_topics": an array of AT LEAST 3 objects, each with:
    "title", "description", "research_questions" (array of strings),
    "methodology", "expected_outcome", "relevance_score" (0.0 to 1.0)
}`, g.Name, g.Description, deref(g.ValidationReasoning))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
