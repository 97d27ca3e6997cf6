// Package handlers implements the HTTP handlers for the recipe assistant:
// the two chat endpoints, recipe CRUD and the health probe.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/recipeassist/recipe-assistant/internal/store"
	"github.com/recipeassist/recipe-assistant/internal/stream"
	"github.com/recipeassist/recipe-assistant/pkg/contracts"
	pkgmw "github.com/recipeassist/recipe-assistant/pkg/middleware"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// URLResolver turns a stored thumbnail value into a URL the browser can
// load.
type URLResolver interface {
	ResolveURL(ctx context.Context, stored string) (string, error)
}

// Handlers holds all handler dependencies.
type Handlers struct {
	ChatService   contracts.ChatService
	Recipes       contracts.RecipeStore
	Thumbnails    contracts.ThumbnailService // nil when image generation is not configured
	ThumbnailURLs URLResolver                // nil serves stored values as-is
	Emitter       *stream.Emitter
	Health        Pinger
}

// New creates a new Handlers instance with all dependencies.
func New(chat contracts.ChatService, recipes contracts.RecipeStore, thumbs contracts.ThumbnailService, emitter *stream.Emitter, health Pinger) *Handlers {
	return &Handlers{
		ChatService: chat,
		Recipes:     recipes,
		Thumbnails:  thumbs,
		Emitter:     emitter,
		Health:      health,
	}
}

// ══════════════════════════════════════════════════════════════
// ── Health ───────────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// HealthCheck reports 503 when the recipe store is unreachable.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		if err := h.Health.Ping(r.Context()); err != nil {
			log.Warn().Err(err).Msg("Health check failed")
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":  "unhealthy",
				"service": "recipe-assistant",
				"error":   err.Error(),
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "recipe-assistant",
	})
}

// ══════════════════════════════════════════════════════════════
// ── Helpers ──────────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// requireUser returns the caller's user id, or writes a 401 and returns "".
func requireUser(w http.ResponseWriter, r *http.Request) string {
	user := pkgmw.UserID(r.Context())
	if user == "" {
		respondError(w, http.StatusUnauthorized, "authentication required")
	}
	return user
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// respondStoreError maps store errors to HTTP statuses.
func respondStoreError(w http.ResponseWriter, err error) {
	var nf *store.ErrNotFound
	if errors.As(err, &nf) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
