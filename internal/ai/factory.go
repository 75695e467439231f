// Package ai selects and decorates the concrete models.AIProvider
// implementation used by the gap pipeline.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/scholarai/gapfinder/internal/ai/gemini"
	"github.com/scholarai/gapfinder/internal/ai/mock"
	"github.com/scholarai/gapfinder/internal/config"
	"github.com/scholarai/gapfinder/pkg/models"
)

// NewProvider constructs the appropriate AI provider based on config.
// Called once at server startup. Every Generate call on the returned
// provider is bounded by cfg.InferenceTimeout.
func NewProvider(ctx context.Context, cfg config.AIConfig) (models.AIProvider, error) {
	var p models.AIProvider
	switch cfg.Provider {
	case "gemini":
		gp, err := gemini.NewProvider(ctx, cfg.Gemini)
		if err != nil {
			return nil, err
		}
		p = gp
	case "mock":
		p = mock.NewProvider()
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of gemini, mock", cfg.Provider)
	}
	return WithTimeout(p, cfg.InferenceTimeout), nil
}

// WithTimeout bounds every Generate call on p to d. Zero or negative d
// returns p unchanged.
func WithTimeout(p models.AIProvider, d time.Duration) models.AIProvider {
	if d <= 0 {
		return p
	}
	return &timeoutProvider{inner: p, timeout: d}
}

type timeoutProvider struct {
	inner   models.AIProvider
	timeout time.Duration
}

func (t *timeoutProvider) Name() string { return t.inner.Name() }

func (t *timeoutProvider) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	out, err := t.inner.Generate(ctx, prompt)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) &&
		!errors.Is(err, models.ErrInferenceTimeout) {
		return "", fmt.Errorf("%w: %v", models.ErrInferenceTimeout, err)
	}
	return out, err
}
