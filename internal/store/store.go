package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/scholarai/gapfinder/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error

	// UpsertAnalysis inserts a new analysis or, when one with the same
	// correlation ID already exists, resets it to PENDING and returns the
	// stored row. Resubmission with the same correlation ID restarts the
	// analysis instead of duplicating it.
	UpsertAnalysis(ctx context.Context, analysis *models.Analysis) (*models.Analysis, error)
	GetAnalysis(ctx context.Context, id uuid.UUID) (*models.Analysis, error)
	GetAnalysisByCorrelationID(ctx context.Context, correlationID string) (*models.Analysis, error)
	UpdateAnalysisStatus(ctx context.Context, id uuid.UUID, status string, opts ...AnalysisUpdateOption) error
	ListAnalyses(ctx context.Context, filter AnalysisFilter) ([]*models.Analysis, int, error)

	CreateGaps(ctx context.Context, gaps []*models.Gap) error
	UpdateGap(ctx context.Context, gap *models.Gap) error
	ListGapsByAnalysis(ctx context.Context, analysisID uuid.UUID) ([]*models.Gap, error)

	CreatePaperExtraction(ctx context.Context, content *models.PaperContent) error
	GetPaperContent(ctx context.Context, paperID, extractionID uuid.UUID) (*models.PaperContent, error)
}

type AnalysisFilter struct {
	PaperID uuid.UUID
	Status  string
	Since   time.Time
	Page    int
	Limit   int
}

type analysisUpdateParams struct {
	ErrorMessage *string
	TotalGaps    *int
	ValidGaps    *int
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

type AnalysisUpdateOption func(*analysisUpdateParams)

func WithErrorMessage(msg string) AnalysisUpdateOption {
	return func(p *analysisUpdateParams) {
		p.ErrorMessage = &msg
	}
}

func WithGapCounts(total, valid int) AnalysisUpdateOption {
	return func(p *analysisUpdateParams) {
		p.TotalGaps = &total
		p.ValidGaps = &valid
	}
}

func WithStartedAt(t time.Time) AnalysisUpdateOption {
	return func(p *analysisUpdateParams) {
		p.StartedAt = &t
	}
}

func WithCompletedAt(t time.Time) AnalysisUpdateOption {
	return func(p *analysisUpdateParams) {
		p.CompletedAt = &t
	}
}
