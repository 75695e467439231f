package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/scholarai/gapfinder/internal/api/handler"
	"github.com/scholarai/gapfinder/internal/store"
	"github.com/scholarai/gapfinder/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestCreateKey_ReturnsRawKeyOnce(t *testing.T) {
	var stored *models.APIKey
	fs := &fakeStore{
		createKeyFn: func(_ context.Context, key *models.APIKey) error {
			stored = key
			return nil
		},
	}
	h := handler.NewCreateKeyHandler(fs)

	w := postJSON(t, h, "/api/v1/admin/keys", map[string]any{
		"name":   "ci-pipeline",
		"scopes": []string{"analyze"},
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	data := dataBody(t, w)

	rawKey, ok := data["key"].(string)
	require.True(t, ok, "create response must include the raw key")
	assert.True(t, strings.HasPrefix(rawKey, "gf_"))

	require.NotNil(t, stored)
	assert.Equal(t, "ci-pipeline", stored.Name)
	assert.Equal(t, rawKey[:8], stored.KeyPrefix)
	// Only the hash is persisted, and it must verify against the raw key.
	assert.NotEqual(t, rawKey, stored.KeyHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.KeyHash), []byte(rawKey)))

	// The stored hash is never serialized back to the client.
	_, hasHash := data["key_hash"]
	assert.False(t, hasHash)
}

func TestCreateKey_DefaultsScopes(t *testing.T) {
	var stored *models.APIKey
	fs := &fakeStore{
		createKeyFn: func(_ context.Context, key *models.APIKey) error {
			stored = key
			return nil
		},
	}
	h := handler.NewCreateKeyHandler(fs)

	w := postJSON(t, h, "/api/v1/admin/keys", map[string]any{"name": "default-scopes"})

	assert.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, stored)
	assert.Equal(t, []string{"analyze"}, stored.Scopes)
}

func TestCreateKey_MissingName(t *testing.T) {
	h := handler.NewCreateKeyHandler(&fakeStore{})

	w := postJSON(t, h, "/api/v1/admin/keys", map[string]any{"scopes": []string{"analyze"}})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", errCode(t, w))
}

func TestListKeys(t *testing.T) {
	fs := &fakeStore{
		listKeysFn: func(_ context.Context) ([]*models.APIKey, error) {
			return []*models.APIKey{
				{ID: uuid.New(), Name: "a", KeyPrefix: "gf_aaaaa"},
				{ID: uuid.New(), Name: "b", KeyPrefix: "gf_bbbbb"},
			}, nil
		},
	}
	h := handler.NewListKeysHandler(fs)

	req := httptest.NewRequest("GET", "/api/v1/admin/keys", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "key_hash")
}

func newKeysRouter(fs *fakeStore) http.Handler {
	r := chi.NewRouter()
	r.Delete("/api/v1/admin/keys/{keyID}", handler.NewRevokeKeyHandler(fs))
	return r
}

func TestRevokeKey_OK(t *testing.T) {
	var revoked uuid.UUID
	fs := &fakeStore{
		revokeKeyFn: func(_ context.Context, id uuid.UUID) error {
			revoked = id
			return nil
		},
	}
	router := newKeysRouter(fs)

	keyID := uuid.New()
	req := httptest.NewRequest("DELETE", "/api/v1/admin/keys/"+keyID.String(), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, keyID, revoked)
}

func TestRevokeKey_NotFound(t *testing.T) {
	fs := &fakeStore{
		revokeKeyFn: func(_ context.Context, _ uuid.UUID) error {
			return store.ErrNotFound
		},
	}
	router := newKeysRouter(fs)

	req := httptest.NewRequest("DELETE", "/api/v1/admin/keys/"+uuid.NewString(), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRevokeKey_MalformedID(t *testing.T) {
	router := newKeysRouter(&fakeStore{})

	req := httptest.NewRequest("DELETE", "/api/v1/admin/keys/nope", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
