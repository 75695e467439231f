package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/scholarai/gapfinder/internal/store"
	"github.com/scholarai/gapfinder/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool + cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("gapfinder_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func newAnalysis() *models.Analysis {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Analysis{
		ID:            uuid.New(),
		PaperID:       uuid.New(),
		ExtractionID:  uuid.New(),
		CorrelationID: uuid.NewString(),
		RequestID:     "req-1",
		Status:        models.AnalysisStatusPending,
		Config:        models.AnalysisConfig{MaxGaps: 5, ValidationDepth: "standard"},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// --- API Key Tests ---

func TestAPIKey_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	key := &models.APIKey{
		ID:        uuid.New(),
		Name:      "test-key",
		KeyHash:   "bcrypt-hash-here",
		KeyPrefix: "gf_abcd",
		Scopes:    []string{"analyses", "admin"},
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.CreateAPIKey(ctx, key)
	require.NoError(t, err)

	keys, err := s.GetAPIKeyByPrefix(ctx, "gf_abcd")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, key.ID, keys[0].ID)
	assert.Equal(t, "test-key", keys[0].Name)
	assert.Equal(t, []string{"analyses", "admin"}, keys[0].Scopes)
}

func TestAPIKey_RevokeHidesKey(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	now := time.Now().UTC()
	key := &models.APIKey{
		ID: uuid.New(), Name: "doomed", KeyHash: "h", KeyPrefix: "gf_dead",
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateAPIKey(ctx, key))

	require.NoError(t, s.RevokeAPIKey(ctx, key.ID))

	keys, err := s.GetAPIKeyByPrefix(ctx, "gf_dead")
	require.NoError(t, err)
	assert.Empty(t, keys)

	// Revoking again reports not found.
	err = s.RevokeAPIKey(ctx, key.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Analysis Tests ---

func TestAnalysis_UpsertAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	analysis := newAnalysis()
	stored, err := s.UpsertAnalysis(ctx, analysis)
	require.NoError(t, err)
	assert.Equal(t, analysis.ID, stored.ID)
	assert.Equal(t, models.AnalysisStatusPending, stored.Status)
	assert.Equal(t, 5, stored.Config.MaxGaps)

	got, err := s.GetAnalysis(ctx, analysis.ID)
	require.NoError(t, err)
	assert.Equal(t, analysis.CorrelationID, got.CorrelationID)

	byCorr, err := s.GetAnalysisByCorrelationID(ctx, analysis.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, analysis.ID, byCorr.ID)
}

func TestAnalysis_UpsertSameCorrelationIDResets(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	first := newAnalysis()
	stored, err := s.UpsertAnalysis(ctx, first)
	require.NoError(t, err)

	// Drive the first run to a terminal state.
	require.NoError(t, s.UpdateAnalysisStatus(ctx, stored.ID, models.AnalysisStatusProcessing))
	require.NoError(t, s.UpdateAnalysisStatus(ctx, stored.ID, models.AnalysisStatusCompleted,
		store.WithGapCounts(3, 2), store.WithCompletedAt(time.Now().UTC())))

	// Resubmit with the same correlation ID: same row, reset to pending.
	second := newAnalysis()
	second.CorrelationID = first.CorrelationID
	restored, err := s.UpsertAnalysis(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, restored.ID)
	assert.Equal(t, models.AnalysisStatusPending, restored.Status)
	assert.Equal(t, 0, restored.TotalGaps)
	assert.Nil(t, restored.CompletedAt)
}

func TestAnalysis_ResubmissionReplacesPriorGaps(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	first := newAnalysis()
	stored, err := s.UpsertAnalysis(ctx, first)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, s.CreateGaps(ctx, []*models.Gap{
		{ID: uuid.New(), AnalysisID: stored.ID, OrderIndex: 0, Name: "Old gap",
			Description: "d", Category: "empirical", Status: models.GapStatusGenerated, CreatedAt: now},
	}))
	require.NoError(t, s.UpdateAnalysisStatus(ctx, stored.ID, models.AnalysisStatusProcessing))
	require.NoError(t, s.UpdateAnalysisStatus(ctx, stored.ID, models.AnalysisStatusCompleted,
		store.WithGapCounts(1, 1), store.WithCompletedAt(now)))

	// Resubmitting the same correlation ID restarts the analysis. The new
	// run writes gaps at the same order indexes, so the old ones must be gone.
	second := newAnalysis()
	second.CorrelationID = first.CorrelationID
	restored, err := s.UpsertAnalysis(ctx, second)
	require.NoError(t, err)
	require.Equal(t, stored.ID, restored.ID)

	fresh := &models.Gap{ID: uuid.New(), AnalysisID: restored.ID, OrderIndex: 0, Name: "New gap",
		Description: "d", Category: "theoretical", Status: models.GapStatusGenerated, CreatedAt: now}
	require.NoError(t, s.CreateGaps(ctx, []*models.Gap{fresh}))

	fresh.Status = models.GapStatusValid
	fresh.Confidence = 0.7
	require.NoError(t, s.UpdateGap(ctx, fresh))

	listed, err := s.ListGapsByAnalysis(ctx, restored.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "New gap", listed[0].Name)
	assert.Equal(t, models.GapStatusValid, listed[0].Status)
}

func TestAnalysis_GetMissing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.GetAnalysis(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAnalysis_StatusTransitions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	stored, err := s.UpsertAnalysis(ctx, newAnalysis())
	require.NoError(t, err)

	// Pending cannot jump straight to completed.
	err = s.UpdateAnalysisStatus(ctx, stored.ID, models.AnalysisStatusCompleted)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid analysis status transition")

	started := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, s.UpdateAnalysisStatus(ctx, stored.ID, models.AnalysisStatusProcessing,
		store.WithStartedAt(started)))

	completed := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, s.UpdateAnalysisStatus(ctx, stored.ID, models.AnalysisStatusPartialFailure,
		store.WithGapCounts(4, 2), store.WithCompletedAt(completed)))

	got, err := s.GetAnalysis(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisStatusPartialFailure, got.Status)
	assert.Equal(t, 4, got.TotalGaps)
	assert.Equal(t, 2, got.ValidGaps)
	require.NotNil(t, got.StartedAt)
	assert.Equal(t, started, got.StartedAt.UTC())
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, completed, got.CompletedAt.UTC())

	// Terminal states reject further updates.
	err = s.UpdateAnalysisStatus(ctx, stored.ID, models.AnalysisStatusProcessing)
	require.Error(t, err)
}

func TestAnalysis_List(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	paperID := uuid.New()
	for i := 0; i < 3; i++ {
		a := newAnalysis()
		a.PaperID = paperID
		_, err := s.UpsertAnalysis(ctx, a)
		require.NoError(t, err)
	}
	_, err := s.UpsertAnalysis(ctx, newAnalysis()) // different paper
	require.NoError(t, err)

	analyses, total, err := s.ListAnalyses(ctx, store.AnalysisFilter{PaperID: paperID})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, analyses, 3)

	all, total, err := s.ListAnalyses(ctx, store.AnalysisFilter{})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, all, 4)
}

// --- Gap Tests ---

func TestGaps_CreateUpdateList(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	analysis, err := s.UpsertAnalysis(ctx, newAnalysis())
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Microsecond)
	gaps := []*models.Gap{
		{ID: uuid.New(), AnalysisID: analysis.ID, OrderIndex: 0, Name: "Gap A",
			Description: "d", Category: "theoretical", Status: models.GapStatusGenerated, CreatedAt: now},
		{ID: uuid.New(), AnalysisID: analysis.ID, OrderIndex: 1, Name: "Gap B",
			Description: "d", Category: "empirical", Status: models.GapStatusGenerated, CreatedAt: now},
	}
	require.NoError(t, s.CreateGaps(ctx, gaps))

	// Validate gap A with evidence and topics.
	query := "some query"
	reasoning := "still open"
	validatedAt := now
	gaps[0].Status = models.GapStatusExpanded
	gaps[0].Confidence = 0.85
	gaps[0].ValidationQuery = &query
	gaps[0].ValidationReasoning = &reasoning
	gaps[0].PapersAnalyzed = 3
	gaps[0].ValidatedAt = &validatedAt
	gaps[0].Evidence = []models.EvidenceAnchor{
		{Title: "P1", URL: "u1", Source: "arxiv", Relation: models.EvidenceSupporting},
	}
	gaps[0].Topics = []models.Topic{
		{Title: "T1", ResearchQuestions: []string{"q1"}, RelevanceScore: 0.9},
	}
	require.NoError(t, s.UpdateGap(ctx, gaps[0]))

	listed, err := s.ListGapsByAnalysis(ctx, analysis.ID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "Gap A", listed[0].Name)
	assert.Equal(t, models.GapStatusExpanded, listed[0].Status)
	assert.InDelta(t, 0.85, listed[0].Confidence, 1e-9)
	require.Len(t, listed[0].Evidence, 1)
	assert.Equal(t, models.EvidenceSupporting, listed[0].Evidence[0].Relation)
	require.Len(t, listed[0].Topics, 1)
	assert.Equal(t, "T1", listed[0].Topics[0].Title)
	assert.Equal(t, models.GapStatusGenerated, listed[1].Status)
}

func TestGaps_UpdateMissing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	g := &models.Gap{ID: uuid.New(), AnalysisID: uuid.New(), Status: models.GapStatusError}
	err := s.UpdateGap(context.Background(), g)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Paper content Tests ---

func TestPaperExtraction_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	content := &models.PaperContent{
		PaperID:      uuid.New(),
		ExtractionID: uuid.New(),
		Title:        "A Paper",
		Abstract:     "An abstract.",
		Sections: []models.PaperSection{
			{Title: "Methods", Paragraphs: []string{"p1", "p2"}},
		},
		Conclusion: "The end.",
	}
	require.NoError(t, s.CreatePaperExtraction(ctx, content))

	got, err := s.GetPaperContent(ctx, content.PaperID, content.ExtractionID)
	require.NoError(t, err)
	assert.Equal(t, content.PaperID, got.PaperID)
	assert.Equal(t, "A Paper", got.Title)
	require.Len(t, got.Sections, 1)
	assert.Equal(t, []string{"p1", "p2"}, got.Sections[0].Paragraphs)

	_, err = s.GetPaperContent(ctx, content.PaperID, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}
