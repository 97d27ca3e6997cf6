package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recipeassist/recipe-assistant/internal/auth"
	"github.com/recipeassist/recipe-assistant/internal/config"
	"github.com/recipeassist/recipe-assistant/pkg/models"
	"github.com/recipeassist/recipe-assistant/pkg/server"
)

func newServer(t *testing.T) *server.Server {
	t.Helper()
	cfg := config.Load()
	cfg.Database.URL = ""
	cfg.Redis.URL = ""
	cfg.Images.OpenAIAPIKey = ""
	cfg.Telemetry.Enabled = false
	cfg.Auth.APIKeys = map[string]string{"k-alice": "alice"}
	cfg.Auth.SessionSecret = "s3cret"
	cfg.Auth.Required = true

	srv, err := server.NewWithConfig(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { srv.ShutdownFunc(context.Background()) })
	return srv
}

func get(srv *server.Server, path string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestServer_PublicRoutes(t *testing.T) {
	srv := newServer(t)

	assert.Equal(t, http.StatusOK, get(srv, "/health").Code)

	rec := get(srv, "/version")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), srv.Config.Version)

	rec = get(srv, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServer_RecipesRequireIdentity(t *testing.T) {
	srv := newServer(t)

	assert.Equal(t, http.StatusUnauthorized, get(srv, "/api/v1/recipes").Code)
	assert.Equal(t, http.StatusUnauthorized, get(srv, "/api/v1/recipes", "X-API-Key", "wrong").Code)

	require.NoError(t, srv.Store.CreateRecipe(context.Background(), &models.Recipe{UserID: "alice", Title: "Soup"}))
	require.NoError(t, srv.Store.CreateRecipe(context.Background(), &models.Recipe{UserID: "bob", Title: "Bread"}))

	rec := get(srv, "/api/v1/recipes", "Authorization", "Bearer k-alice")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Soup")
	assert.NotContains(t, rec.Body.String(), "Bread")

	token, err := auth.GenerateSessionToken([]byte("s3cret"), "bob", "Bob", time.Hour)
	require.NoError(t, err)
	rec = get(srv, "/api/v1/recipes", "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Bread")
}

func TestServer_ThumbnailsDisabledWithoutImages(t *testing.T) {
	srv := newServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recipes/x/thumbnail", strings.NewReader(""))
	req.Header.Set("X-API-Key", "k-alice")
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
