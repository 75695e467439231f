package gap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/scholarai/gapfinder/internal/ratelimit"
	"github.com/scholarai/gapfinder/internal/retry"
	"github.com/scholarai/gapfinder/internal/search"
	"github.com/scholarai/gapfinder/pkg/models"
)

// Searcher is the slice of the search service the validator needs.
type Searcher interface {
	SearchWithFallback(ctx context.Context, query string, limit int) ([]search.Result, error)
}

// Validator checks a gap candidate against the existing literature: one AI
// call to build a search query, a fan-out literature search, and one AI call
// to judge the gap against what the search found.
type Validator struct {
	provider models.AIProvider
	searcher Searcher
	limiter  *ratelimit.Registry
	policy   retry.Policy
	logger   *slog.Logger
}

func NewValidator(provider models.AIProvider, searcher Searcher, limiter *ratelimit.Registry, logger *slog.Logger) *Validator {
	return &Validator{
		provider: provider,
		searcher: searcher,
		limiter:  limiter,
		policy:   retry.DefaultPolicy,
		logger:   logger,
	}
}

// Validate moves the gap from GENERATED through VALIDATING into VALID,
// INVALID, or ERROR, mutating it in place. A failure in any step lands the
// gap in ERROR with the reason recorded; it never propagates to siblings.
func (v *Validator) Validate(ctx context.Context, g *models.Gap, resultsPerProvider int) {
	g.Status = models.GapStatusValidating

	query, err := v.buildQuery(ctx, g)
	if err != nil {
		v.markError(g, fmt.Errorf("building search query: %w", err))
		return
	}
	g.ValidationQuery = &query

	results, err := v.searcher.SearchWithFallback(ctx, query, resultsPerProvider)
	if err != nil {
		v.markError(g, fmt.Errorf("searching literature: %w", err))
		return
	}
	if len(results) == 0 {
		// No evidence either way; an unverifiable gap is an error, not a
		// low-confidence valid one.
		v.markError(g, fmt.Errorf("no search results for query %q", query))
		return
	}
	g.PapersAnalyzed = len(results)

	verdict, err := v.judge(ctx, g, results)
	if err != nil {
		v.markError(g, fmt.Errorf("judging gap: %w", err))
		return
	}

	now := time.Now().UTC()
	g.ValidatedAt = &now
	g.Confidence = models.ClampScore(verdict.Confidence)
	g.ValidationReasoning = &verdict.Reasoning
	g.Evidence = buildEvidence(results, verdict)

	if verdict.IsValid {
		g.Status = models.GapStatusValid
	} else {
		g.Status = models.GapStatusInvalid
	}

	v.logger.Info("validated gap",
		"gap_id", g.ID, "status", g.Status, "confidence", g.Confidence,
		"papers_analyzed", g.PapersAnalyzed)
}

func (v *Validator) buildQuery(ctx context.Context, g *models.Gap) (string, error) {
	raw, err := retry.Do(ctx, v.policy, func(ctx context.Context) (string, error) {
		if err := v.limiter.Wait(ctx, aiLimiterKey); err != nil {
			return "", err
		}
		return v.provider.Generate(ctx, queryPrompt(g))
	})
	if err != nil {
		return "", err
	}

	query := parseQuery(raw)
	if query == "" {
		return "", fmt.Errorf("%w: empty search query", models.ErrInvalidResponse)
	}
	return query, nil
}

func (v *Validator) judge(ctx context.Context, g *models.Gap, results []search.Result) (validationVerdict, error) {
	raw, err := retry.Do(ctx, v.policy, func(ctx context.Context) (string, error) {
		if err := v.limiter.Wait(ctx, aiLimiterKey); err != nil {
			return "", err
		}
		return v.provider.Generate(ctx, validationPrompt(g, results))
	})
	if err != nil {
		return validationVerdict{}, err
	}
	return parseValidationVerdict(raw)
}

func (v *Validator) markError(g *models.Gap, err error) {
	g.Status = models.GapStatusError
	reason := err.Error()
	g.ErrorReason = &reason
	v.logger.Warn("gap validation failed", "gap_id", g.ID, "error", err)
}

// buildEvidence maps the verdict's 1-based paper indices back onto the
// search results. Out-of-range indices from the model are dropped; papers
// cited neither way are recorded as neutral.
func buildEvidence(results []search.Result, verdict validationVerdict) []models.EvidenceAnchor {
	relations := make(map[int]string, len(results))
	for _, idx := range verdict.SupportingPapers {
		relations[idx-1] = models.EvidenceSupporting
	}
	for _, idx := range verdict.ConflictingPapers {
		relations[idx-1] = models.EvidenceConflicting
	}

	anchors := make([]models.EvidenceAnchor, 0, len(results))
	for i, r := range results {
		relation, ok := relations[i]
		if !ok {
			relation = models.EvidenceNeutral
		}
		anchors = append(anchors, models.EvidenceAnchor{
			Title:    r.Title,
			URL:      r.URL,
			Source:   r.Source,
			Relation: relation,
		})
	}
	return anchors
}
