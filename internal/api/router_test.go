package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/scholarai/gapfinder/internal/api"
	mw "github.com/scholarai/gapfinder/internal/api/middleware"
	"github.com/scholarai/gapfinder/internal/cache"
	"github.com/scholarai/gapfinder/internal/store"
	"github.com/scholarai/gapfinder/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- stub store that returns empty results (all auth fails) ---

type stubStore struct{}

func (s *stubStore) Ping(_ context.Context) error { return nil }
func (s *stubStore) GetAPIKeyByPrefix(_ context.Context, _ string) ([]*models.APIKey, error) {
	return nil, nil
}
func (s *stubStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }
func (s *stubStore) CreateAPIKey(_ context.Context, _ *models.APIKey) error    { return nil }
func (s *stubStore) ListAPIKeys(_ context.Context) ([]*models.APIKey, error)   { return nil, nil }
func (s *stubStore) RevokeAPIKey(_ context.Context, _ uuid.UUID) error         { return nil }
func (s *stubStore) UpsertAnalysis(_ context.Context, a *models.Analysis) (*models.Analysis, error) {
	return a, nil
}
func (s *stubStore) GetAnalysis(_ context.Context, _ uuid.UUID) (*models.Analysis, error) {
	return nil, store.ErrNotFound
}
func (s *stubStore) GetAnalysisByCorrelationID(_ context.Context, _ string) (*models.Analysis, error) {
	return nil, store.ErrNotFound
}
func (s *stubStore) UpdateAnalysisStatus(_ context.Context, _ uuid.UUID, _ string, _ ...store.AnalysisUpdateOption) error {
	return nil
}
func (s *stubStore) ListAnalyses(_ context.Context, _ store.AnalysisFilter) ([]*models.Analysis, int, error) {
	return nil, 0, nil
}
func (s *stubStore) CreateGaps(_ context.Context, _ []*models.Gap) error { return nil }
func (s *stubStore) UpdateGap(_ context.Context, _ *models.Gap) error    { return nil }
func (s *stubStore) ListGapsByAnalysis(_ context.Context, _ uuid.UUID) ([]*models.Gap, error) {
	return nil, nil
}
func (s *stubStore) CreatePaperExtraction(_ context.Context, _ *models.PaperContent) error {
	return nil
}
func (s *stubStore) GetPaperContent(_ context.Context, _, _ uuid.UUID) (*models.PaperContent, error) {
	return nil, store.ErrNotFound
}

// --- stub cache ---

type stubCache struct{}

func (c *stubCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *stubCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *stubCache) Delete(_ context.Context, _ string) error                         { return nil }
func (c *stubCache) Ping(_ context.Context) error                                     { return nil }
func (c *stubCache) SetAnalysisStatus(_ context.Context, _ uuid.UUID, _ string, _ time.Duration) error {
	return nil
}
func (c *stubCache) GetAnalysisStatus(_ context.Context, _ uuid.UUID) (string, bool, error) {
	return "", false, nil
}
func (c *stubCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

// --- router tests ---

func newTestRouter() http.Handler {
	return api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(&stubStore{}),
		RateLimit: mw.NewRateLimit(&stubCache{}, 60),
		HealthHandler: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		},
	})
}

func TestRouter_HealthEndpoint_Public(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_ProtectedEndpoints_RequireAuth(t *testing.T) {
	router := newTestRouter()

	endpoints := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/analyses"},
		{"GET", "/api/v1/analyses"},
		{"GET", "/api/v1/analyses/" + uuid.NewString()},
		{"GET", "/api/v1/analyses/" + uuid.NewString() + "/gaps"},
		{"POST", "/api/v1/admin/keys"},
		{"GET", "/api/v1/admin/keys"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			req := httptest.NewRequest(ep.method, ep.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			errObj := body["error"].(map[string]any)
			assert.Equal(t, "INVALID_TOKEN", errObj["code"])
		})
	}
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest("GET", "/api/v1/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// Verify unused interfaces are satisfied
var _ store.Store = (*stubStore)(nil)
var _ cache.Cache = (*stubCache)(nil)
