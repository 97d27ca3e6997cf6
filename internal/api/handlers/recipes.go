package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/recipeassist/recipe-assistant/internal/tools"
	"github.com/recipeassist/recipe-assistant/pkg/models"
)

// ══════════════════════════════════════════════════════════════
// ── Recipe Handlers ──────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

const maxListLimit = 200

// ListRecipes returns the caller's recipes. Query parameters:
// favorites=true, q=<substring>, ids=<id>&ids=<id>, limit=<n>.
func (h *Handlers) ListRecipes(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == "" {
		return
	}

	q := r.URL.Query()
	filter := models.RecipeFilter{
		FavoritesOnly: q.Get("favorites") == "true",
		Query:         q.Get("q"),
		IDs:           q["ids"],
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = min(n, maxListLimit)
	}

	recipes, err := h.Recipes.ListRecipes(r.Context(), user, filter)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if recipes == nil {
		recipes = []models.Recipe{}
	}
	for i := range recipes {
		h.resolveThumbnail(r.Context(), &recipes[i])
	}
	respondJSON(w, http.StatusOK, recipes)
}

func (h *Handlers) GetRecipe(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == "" {
		return
	}

	recipe, err := h.Recipes.GetRecipe(r.Context(), user, chi.URLParam(r, "recipeId"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	h.resolveThumbnail(r.Context(), recipe)
	respondJSON(w, http.StatusOK, recipe)
}

// UpdateRecipe applies a partial update. Only title and isFavorite are
// client-editable; thumbnails change through GenerateThumbnail.
func (h *Handlers) UpdateRecipe(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == "" {
		return
	}

	var patch models.RecipePatch
	if !decodeBody(w, r, &patch) {
		return
	}
	patch.ThumbnailURL = nil
	if patch.Title != nil && *patch.Title == "" {
		respondError(w, http.StatusBadRequest, "title must not be empty")
		return
	}

	recipe, err := h.Recipes.UpdateRecipe(r.Context(), user, chi.URLParam(r, "recipeId"), patch)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	h.resolveThumbnail(r.Context(), recipe)
	respondJSON(w, http.StatusOK, recipe)
}

func (h *Handlers) DeleteRecipe(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == "" {
		return
	}

	id := chi.URLParam(r, "recipeId")
	if err := h.Recipes.DeleteRecipe(r.Context(), user, id); err != nil {
		respondStoreError(w, err)
		return
	}
	log.Info().Str("user", user).Str("id", id).Msg("Recipe deleted")
	w.WriteHeader(http.StatusNoContent)
}

// GenerateThumbnail renders a new picture for a saved recipe.
func (h *Handlers) GenerateThumbnail(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == "" {
		return
	}
	if h.Thumbnails == nil {
		respondError(w, http.StatusServiceUnavailable, "thumbnail generation is not configured")
		return
	}

	recipe, err := h.Thumbnails.Regenerate(r.Context(), user, chi.URLParam(r, "recipeId"))
	if err != nil {
		var te *tools.ThumbnailError
		if errors.As(err, &te) {
			respondError(w, http.StatusBadGateway, err.Error())
			return
		}
		respondStoreError(w, err)
		return
	}
	h.resolveThumbnail(r.Context(), recipe)
	respondJSON(w, http.StatusOK, recipe)
}

// resolveThumbnail replaces the stored thumbnail value with a loadable URL.
// A value that cannot be resolved is dropped so the UI shows no picture.
func (h *Handlers) resolveThumbnail(ctx context.Context, recipe *models.Recipe) {
	if h.ThumbnailURLs == nil || recipe == nil || recipe.ThumbnailURL == nil {
		return
	}
	url, err := h.ThumbnailURLs.ResolveURL(ctx, *recipe.ThumbnailURL)
	if err != nil {
		log.Warn().Err(err).Str("recipe", recipe.ID).Msg("Thumbnail URL not resolved")
		recipe.ThumbnailURL = nil
		return
	}
	recipe.ThumbnailURL = &url
}
