// Package gemini implements the models.AIProvider interface against the Google
// Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/scholarai/gapfinder/internal/config"
	"github.com/scholarai/gapfinder/internal/retry"
	"github.com/scholarai/gapfinder/pkg/models"
)

// Provider calls the Gemini generateContent endpoint through the official
// genai client.
type Provider struct {
	client *genai.Client
	model  string
}

func NewProvider(ctx context.Context, cfg config.GeminiConfig) (*Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Provider{client: client, model: cfg.Model}, nil
}

func (p *Provider) Name() string { return "gemini" }

// Generate sends the prompt and returns the concatenated text of the first
// candidate. API errors are classified into the models sentinel errors, with
// retryable ones marked transient.
func (p *Provider) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.3),
	})
	if err != nil {
		return "", classifyError(err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: empty candidate text", models.ErrInvalidResponse)
	}
	return text, nil
}

// classifyError maps genai client errors onto the models sentinel errors so
// callers can match with errors.Is without importing the SDK.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", models.ErrInferenceTimeout, err)
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return retry.MarkTransient(fmt.Errorf("%w: %v", models.ErrRateLimited, err))
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return fmt.Errorf("%w: %v", models.ErrUnauthorized, err)
		case apiErr.Code >= 500:
			return retry.MarkTransient(fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err))
		}
		return fmt.Errorf("gemini request failed: %w", err)
	}

	// Network-level failures without an HTTP status are retryable.
	return retry.MarkTransient(fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err))
}

// Compile-time check that Provider implements models.AIProvider.
var _ models.AIProvider = (*Provider)(nil)
