// Package gap implements the research-gap pipeline: candidate generation,
// literature-backed validation, expansion of valid gaps, and deterministic
// aggregation, coordinated by the Orchestrator under bounded concurrency.
package gap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/scholarai/gapfinder/internal/ratelimit"
	"github.com/scholarai/gapfinder/internal/retry"
	"github.com/scholarai/gapfinder/pkg/models"
)

// aiLimiterKey is the rate-limit bucket shared by every AI call in the
// pipeline, regardless of which stage makes it.
const aiLimiterKey = "ai"

// Generator produces gap candidates from paper content with a single AI call.
type Generator struct {
	provider models.AIProvider
	limiter  *ratelimit.Registry
	policy   retry.Policy
	logger   *slog.Logger
}

func NewGenerator(provider models.AIProvider, limiter *ratelimit.Registry, logger *slog.Logger) *Generator {
	return &Generator{
		provider: provider,
		limiter:  limiter,
		policy:   retry.DefaultPolicy,
		logger:   logger,
	}
}

// Generate asks the model for gap candidates and returns them as GENERATED
// gaps in model output order, capped at maxGaps. A failure here leaves the
// analysis with zero candidates; the orchestrator turns that into FAILED.
func (g *Generator) Generate(ctx context.Context, analysisID uuid.UUID, paper *models.PaperContent, maxGaps int) ([]*models.Gap, error) {
	prompt := generationPrompt(paper, maxGaps)

	raw, err := retry.Do(ctx, g.policy, func(ctx context.Context) (string, error) {
		if err := g.limiter.Wait(ctx, aiLimiterKey); err != nil {
			return "", err
		}
		return g.provider.Generate(ctx, prompt)
	})
	if err != nil {
		return nil, fmt.Errorf("generating gaps: %w", err)
	}

	candidates, err := parseGeneratedGaps(raw)
	if err != nil {
		return nil, err
	}
	if len(candidates) > maxGaps {
		candidates = candidates[:maxGaps]
	}

	now := time.Now().UTC()
	gaps := make([]*models.Gap, 0, len(candidates))
	for i, c := range candidates {
		gaps = append(gaps, &models.Gap{
			ID:          uuid.New(),
			AnalysisID:  analysisID,
			OrderIndex:  i,
			Name:        c.Name,
			Description: c.Description,
			Category:    c.Category,
			Reasoning:   c.Reasoning,
			Status:      models.GapStatusGenerated,
			CreatedAt:   now,
		})
	}

	g.logger.Info("generated gap candidates",
		"analysis_id", analysisID, "count", len(gaps), "provider", g.provider.Name())
	return gaps, nil
}
