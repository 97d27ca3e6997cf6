package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recipeassist/recipe-assistant/internal/api/middleware"
	"github.com/recipeassist/recipe-assistant/pkg/contracts"
	pkgmw "github.com/recipeassist/recipe-assistant/pkg/middleware"
)

type stubChain struct {
	id  *contracts.Identity
	err error
}

func (s stubChain) Authenticate(context.Context, *http.Request) (*contracts.Identity, error) {
	return s.id, s.err
}

func (s stubChain) RegisterProvider(contracts.AuthProvider) {}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(pkgmw.UserID(r.Context())))
	})
}

func TestAuthMiddleware(t *testing.T) {
	alice := &contracts.Identity{UserID: "alice", Provider: "apikey"}
	tests := []struct {
		name       string
		chain      stubChain
		require    bool
		path       string
		wantStatus int
		wantBody   string
	}{
		{"authenticated", stubChain{id: alice}, true, "/api/v1/recipes", http.StatusOK, "alice"},
		{"anonymous allowed", stubChain{}, false, "/api/v1/recipes", http.StatusOK, ""},
		{"anonymous rejected", stubChain{}, true, "/api/v1/recipes", http.StatusUnauthorized, ""},
		{"bad credential", stubChain{err: errors.New("nope")}, false, "/api/v1/chat", http.StatusUnauthorized, ""},
		{"public path", stubChain{err: errors.New("nope")}, true, "/health", http.StatusOK, ""},
		{"metrics is public", stubChain{}, true, "/metrics", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := middleware.NewAuthMiddleware(tt.chain, tt.require).Handler(echoUser())
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
				assert.Contains(t, rec.Body.String(), `"error"`)
				return
			}
			assert.Equal(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestLogger_PassesFlushThrough(t *testing.T) {
	var flushed bool
	h := middleware.Logger(middleware.Telemetry(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		require.True(t, ok, "wrapped writer must implement http.Flusher")
		w.Write([]byte("chunk"))
		f.Flush()
		flushed = true
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream", nil))

	assert.True(t, flushed)
	assert.True(t, rec.Flushed)
	assert.Equal(t, "chunk", rec.Body.String())
}

func TestRecordUser(t *testing.T) {
	alice := &contracts.Identity{UserID: "alice"}
	auth := middleware.NewAuthMiddleware(stubChain{id: alice}, true)
	h := middleware.Logger(auth.Handler(middleware.RecordUser(echoUser())))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/recipes", nil))
	assert.Equal(t, "alice", rec.Body.String())
}
