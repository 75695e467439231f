package models

import (
	"context"
	"errors"
)

// AIProvider is a text-generation backend. Never call a concrete provider
// directly — always inject this interface. Implementations must be safe for
// concurrent use; the gap pipeline calls Generate from many goroutines.
type AIProvider interface {
	// Name returns the provider identifier (e.g., "gemini", "mock").
	Name() string

	// Generate sends a prompt and returns the raw model output.
	Generate(ctx context.Context, prompt string) (string, error)
}

// Sentinel errors providers classify their failures into, so callers can
// match with errors.Is without importing any provider SDK.
var (
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	ErrRateLimited         = errors.New("ai provider rate limited")
	ErrInferenceTimeout    = errors.New("ai inference timeout")
	ErrInvalidResponse     = errors.New("ai provider returned invalid response")
	ErrUnauthorized        = errors.New("ai provider rejected credentials")
)
