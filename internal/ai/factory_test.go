package ai_test

import (
	"context"
	"testing"
	"time"

	"github.com/scholarai/gapfinder/internal/ai"
	"github.com/scholarai/gapfinder/internal/ai/mock"
	"github.com/scholarai/gapfinder/internal/config"
	"github.com/scholarai/gapfinder/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider_Mock(t *testing.T) {
	p, err := ai.NewProvider(context.Background(), config.AIConfig{Provider: "mock"})
	require.NoError(t, err)
	assert.Equal(t, "mock", p.Name())
}

func TestNewProvider_Unknown(t *testing.T) {
	_, err := ai.NewProvider(context.Background(), config.AIConfig{Provider: "bard"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bard")
}

func TestNewProvider_AppliesInferenceTimeout(t *testing.T) {
	p, err := ai.NewProvider(context.Background(), config.AIConfig{
		Provider:         "mock",
		InferenceTimeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, "mock", p.Name())

	out, err := p.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "{}", out)
}

func TestWithTimeout_BoundsSlowGenerate(t *testing.T) {
	p := ai.WithTimeout(mock.NewTimeoutProvider(), 20*time.Millisecond)

	start := time.Now()
	_, err := p.Generate(context.Background(), "prompt")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInferenceTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestWithTimeout_ZeroLeavesProviderUnwrapped(t *testing.T) {
	inner := mock.NewProvider()
	assert.Same(t, inner, ai.WithTimeout(inner, 0))
}

func TestWithTimeout_PassesThroughProviderErrors(t *testing.T) {
	p := ai.WithTimeout(mock.NewFailingProvider(models.ErrUnauthorized), time.Second)

	_, err := p.Generate(context.Background(), "prompt")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.NotErrorIs(t, err, models.ErrInferenceTimeout)
}
