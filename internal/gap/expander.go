package gap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/scholarai/gapfinder/internal/ratelimit"
	"github.com/scholarai/gapfinder/internal/retry"
	"github.com/scholarai/gapfinder/pkg/models"
)

// Expander enriches a VALID gap with research directions. Expansion is best
// effort: on failure the gap keeps its VALID status and a warning instead of
// dropping into ERROR, because a validated gap without hints is still a
// useful result.
type Expander struct {
	provider models.AIProvider
	limiter  *ratelimit.Registry
	policy   retry.Policy
	logger   *slog.Logger
}

func NewExpander(provider models.AIProvider, limiter *ratelimit.Registry, logger *slog.Logger) *Expander {
	return &Expander{
		provider: provider,
		limiter:  limiter,
		policy:   retry.DefaultPolicy,
		logger:   logger,
	}
}

// Expand attempts to move a VALID gap to EXPANDED, mutating it in place.
func (e *Expander) Expand(ctx context.Context, g *models.Gap) {
	if g.Status != models.GapStatusValid {
		return
	}

	payload, err := e.fetch(ctx, g)
	if err != nil {
		warning := fmt.Sprintf("expansion failed: %v", err)
		g.ExpansionWarning = &warning
		e.logger.Warn("gap expansion failed", "gap_id", g.ID, "error", err)
		return
	}

	g.PotentialImpact = &payload.PotentialImpact
	g.ResearchHints = &payload.ResearchHints
	g.ImplementationSuggestions = &payload.ImplementationSuggestions
	g.RisksAndChallenges = &payload.RisksAndChallenges
	g.RequiredResources = &payload.RequiredResources
	g.EstimatedDifficulty = &payload.EstimatedDifficulty
	g.EstimatedTimeline = &payload.EstimatedTimeline

	g.Topics = make([]models.Topic, 0, len(payload.SuggestedTopics))
	for _, t := range payload.SuggestedTopics {
		g.Topics = append(g.Topics, models.Topic{
			Title:             t.Title,
			Description:       t.Description,
			ResearchQuestions: t.ResearchQuestions,
			Methodology:       t.Methodology,
			ExpectedOutcome:   t.ExpectedOutcome,
			RelevanceScore:    models.ClampScore(t.RelevanceScore),
		})
	}

	g.Status = models.GapStatusExpanded
	e.logger.Info("expanded gap", "gap_id", g.ID, "topics", len(g.Topics))
}

func (e *Expander) fetch(ctx context.Context, g *models.Gap) (expansionPayload, error) {
	raw, err := retry.Do(ctx, e.policy, func(ctx context.Context) (string, error) {
		if err := e.limiter.Wait(ctx, aiLimiterKey); err != nil {
			return "", err
		}
		return e.provider.Generate(ctx, expansionPrompt(g))
	})
	if err != nil {
		return expansionPayload{}, err
	}

	payload, err := parseExpansion(raw)
	if err != nil {
		return expansionPayload{}, err
	}
	if len(payload.SuggestedTopics) < 3 {
		return expansionPayload{}, fmt.Errorf("%w: expected at least 3 suggested topics, got %d",
			models.ErrInvalidResponse, len(payload.SuggestedTopics))
	}
	return payload, nil
}
