package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/scholarai/gapfinder/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- API Keys ---

const apiKeyColumns = `id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at`

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	return scanAPIKeys(rows)
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	return scanAPIKeys(rows)
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAPIKeys(rows pgx.Rows) ([]*models.APIKey, error) {
	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

// --- Analyses ---

const analysisColumns = `id, paper_id, extraction_id, correlation_id, request_id, status,
	total_gaps, valid_gaps, error_message, config, started_at, completed_at, created_at, updated_at`

func (s *PostgresStore) UpsertAnalysis(ctx context.Context, analysis *models.Analysis) (*models.Analysis, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("upsert analysis: %w", err)
	}
	defer tx.Rollback(ctx)

	var result models.Analysis
	err = tx.QueryRow(ctx,
		`INSERT INTO analyses (id, paper_id, extraction_id, correlation_id, request_id, status, config, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (correlation_id) DO UPDATE SET
		   status = EXCLUDED.status,
		   request_id = EXCLUDED.request_id,
		   config = EXCLUDED.config,
		   total_gaps = 0,
		   valid_gaps = 0,
		   error_message = NULL,
		   started_at = NULL,
		   completed_at = NULL,
		   updated_at = NOW()
		 RETURNING `+analysisColumns,
		analysis.ID, analysis.PaperID, analysis.ExtractionID, analysis.CorrelationID,
		analysis.RequestID, analysis.Status, analysis.Config, analysis.CreatedAt, analysis.UpdatedAt,
	).Scan(&result.ID, &result.PaperID, &result.ExtractionID, &result.CorrelationID,
		&result.RequestID, &result.Status, &result.TotalGaps, &result.ValidGaps,
		&result.ErrorMessage, &result.Config, &result.StartedAt, &result.CompletedAt,
		&result.CreatedAt, &result.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert analysis: %w", err)
	}

	// A restart reuses the analysis row; gaps from the prior run must go so
	// the new run can insert at the same order indexes.
	if _, err := tx.Exec(ctx, `DELETE FROM gaps WHERE analysis_id = $1`, result.ID); err != nil {
		return nil, fmt.Errorf("clear prior gaps: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("upsert analysis: %w", err)
	}
	return &result, nil
}

func (s *PostgresStore) GetAnalysis(ctx context.Context, id uuid.UUID) (*models.Analysis, error) {
	return s.getAnalysis(ctx, `id = $1`, id)
}

func (s *PostgresStore) GetAnalysisByCorrelationID(ctx context.Context, correlationID string) (*models.Analysis, error) {
	return s.getAnalysis(ctx, `correlation_id = $1`, correlationID)
}

func (s *PostgresStore) getAnalysis(ctx context.Context, where string, arg any) (*models.Analysis, error) {
	var a models.Analysis
	err := s.pool.QueryRow(ctx,
		`SELECT `+analysisColumns+` FROM analyses WHERE `+where, arg,
	).Scan(&a.ID, &a.PaperID, &a.ExtractionID, &a.CorrelationID, &a.RequestID, &a.Status,
		&a.TotalGaps, &a.ValidGaps, &a.ErrorMessage, &a.Config, &a.StartedAt, &a.CompletedAt,
		&a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	return &a, nil
}

func (s *PostgresStore) UpdateAnalysisStatus(ctx context.Context, id uuid.UUID, status string, opts ...AnalysisUpdateOption) error {
	params := &analysisUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	var currentStatus string
	err := s.pool.QueryRow(ctx, `SELECT status FROM analyses WHERE id = $1`, id).Scan(&currentStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get analysis status: %w", err)
	}

	if !models.ValidAnalysisTransition(currentStatus, status) {
		return fmt.Errorf("invalid analysis status transition: %s -> %s", currentStatus, status)
	}

	now := time.Now().UTC()
	query := `UPDATE analyses SET status = $2, updated_at = $3`
	args := []any{id, status, now}
	argIdx := 4

	if params.StartedAt != nil {
		query += fmt.Sprintf(", started_at = $%d", argIdx)
		args = append(args, *params.StartedAt)
		argIdx++
	}
	if params.CompletedAt != nil {
		query += fmt.Sprintf(", completed_at = $%d", argIdx)
		args = append(args, *params.CompletedAt)
		argIdx++
	}
	if params.TotalGaps != nil {
		query += fmt.Sprintf(", total_gaps = $%d, valid_gaps = $%d", argIdx, argIdx+1)
		args = append(args, *params.TotalGaps, *params.ValidGaps)
		argIdx += 2
	}
	if params.ErrorMessage != nil {
		query += fmt.Sprintf(", error_message = $%d", argIdx)
		args = append(args, *params.ErrorMessage)
		argIdx++
	}

	query += " WHERE id = $1"

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update analysis status: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAnalyses(ctx context.Context, filter AnalysisFilter) ([]*models.Analysis, int, error) {
	conditions := []string{"TRUE"}
	args := []any{}
	argIdx := 1

	if filter.PaperID != uuid.Nil {
		conditions = append(conditions, fmt.Sprintf("paper_id = $%d", argIdx))
		args = append(args, filter.PaperID)
		argIdx++
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, filter.Status)
		argIdx++
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, filter.Since)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM analyses WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count analyses: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	dataQuery := fmt.Sprintf(
		`SELECT `+analysisColumns+` FROM analyses WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	var analyses []*models.Analysis
	for rows.Next() {
		var a models.Analysis
		if err := rows.Scan(&a.ID, &a.PaperID, &a.ExtractionID, &a.CorrelationID, &a.RequestID,
			&a.Status, &a.TotalGaps, &a.ValidGaps, &a.ErrorMessage, &a.Config,
			&a.StartedAt, &a.CompletedAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan analysis: %w", err)
		}
		analyses = append(analyses, &a)
	}
	return analyses, total, rows.Err()
}

// --- Gaps ---

const gapColumns = `id, analysis_id, order_index, name, description, category, reasoning,
	status, confidence, validation_query, validation_reasoning, papers_analyzed, error_reason,
	potential_impact, research_hints, implementation_suggestions, risks_and_challenges,
	required_resources, estimated_difficulty, estimated_timeline, expansion_warning,
	evidence, topics, created_at, validated_at`

func (s *PostgresStore) CreateGaps(ctx context.Context, gaps []*models.Gap) error {
	if len(gaps) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, g := range gaps {
		batch.Queue(
			`INSERT INTO gaps (id, analysis_id, order_index, name, description, category, reasoning, status, evidence, topics, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			g.ID, g.AnalysisID, g.OrderIndex, g.Name, g.Description, g.Category,
			g.Reasoning, g.Status, g.Evidence, g.Topics, g.CreatedAt)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range gaps {
		if _, err := results.Exec(); err != nil {
			if isDuplicateKeyError(err) {
				return ErrDuplicateKey
			}
			return fmt.Errorf("create gap: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) UpdateGap(ctx context.Context, gap *models.Gap) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE gaps SET
		   status = $2, confidence = $3, validation_query = $4, validation_reasoning = $5,
		   papers_analyzed = $6, error_reason = $7, potential_impact = $8, research_hints = $9,
		   implementation_suggestions = $10, risks_and_challenges = $11, required_resources = $12,
		   estimated_difficulty = $13, estimated_timeline = $14, expansion_warning = $15,
		   evidence = $16, topics = $17, validated_at = $18
		 WHERE id = $1`,
		gap.ID, gap.Status, gap.Confidence, gap.ValidationQuery, gap.ValidationReasoning,
		gap.PapersAnalyzed, gap.ErrorReason, gap.PotentialImpact, gap.ResearchHints,
		gap.ImplementationSuggestions, gap.RisksAndChallenges, gap.RequiredResources,
		gap.EstimatedDifficulty, gap.EstimatedTimeline, gap.ExpansionWarning,
		gap.Evidence, gap.Topics, gap.ValidatedAt)
	if err != nil {
		return fmt.Errorf("update gap: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListGapsByAnalysis(ctx context.Context, analysisID uuid.UUID) ([]*models.Gap, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+gapColumns+` FROM gaps WHERE analysis_id = $1 ORDER BY order_index`, analysisID)
	if err != nil {
		return nil, fmt.Errorf("list gaps: %w", err)
	}
	defer rows.Close()

	var gaps []*models.Gap
	for rows.Next() {
		var g models.Gap
		if err := rows.Scan(&g.ID, &g.AnalysisID, &g.OrderIndex, &g.Name, &g.Description,
			&g.Category, &g.Reasoning, &g.Status, &g.Confidence, &g.ValidationQuery,
			&g.ValidationReasoning, &g.PapersAnalyzed, &g.ErrorReason, &g.PotentialImpact,
			&g.ResearchHints, &g.ImplementationSuggestions, &g.RisksAndChallenges,
			&g.RequiredResources, &g.EstimatedDifficulty, &g.EstimatedTimeline,
			&g.ExpansionWarning, &g.Evidence, &g.Topics, &g.CreatedAt, &g.ValidatedAt); err != nil {
			return nil, fmt.Errorf("scan gap: %w", err)
		}
		gaps = append(gaps, &g)
	}
	return gaps, rows.Err()
}

// --- Paper content ---

func (s *PostgresStore) CreatePaperExtraction(ctx context.Context, content *models.PaperContent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO paper_extractions (paper_id, extraction_id, content)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (paper_id, extraction_id) DO UPDATE SET content = EXCLUDED.content`,
		content.PaperID, content.ExtractionID, content)
	if err != nil {
		return fmt.Errorf("create paper extraction: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPaperContent(ctx context.Context, paperID, extractionID uuid.UUID) (*models.PaperContent, error) {
	var p models.PaperContent
	err := s.pool.QueryRow(ctx,
		`SELECT content FROM paper_extractions
		 WHERE paper_id = $1 AND extraction_id = $2`, paperID, extractionID,
	).Scan(&p)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get paper content: %w", err)
	}
	p.PaperID = paperID
	p.ExtractionID = extractionID
	return &p, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
