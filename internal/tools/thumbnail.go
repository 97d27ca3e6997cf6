package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/recipeassist/recipe-assistant/internal/agent"
	"github.com/recipeassist/recipe-assistant/internal/thumbnail"
	"github.com/recipeassist/recipe-assistant/internal/toolresults"
	"github.com/recipeassist/recipe-assistant/pkg/models"
)

// RecipeEditor reads and patches a user's recipe.
type RecipeEditor interface {
	GetRecipe(ctx context.Context, userID, id string) (*models.Recipe, error)
	UpdateRecipe(ctx context.Context, userID, id string, patch models.RecipePatch) (*models.Recipe, error)
}

// Thumbnailer renders and stores one thumbnail.
type Thumbnailer interface {
	GenerateForRecipe(ctx context.Context, recipe thumbnail.Recipe, userID string) toolresults.ThumbnailResult
}

// Thumbnail is the generate-thumbnail tool. It illustrates one saved recipe
// and stores the new URL on it.
type Thumbnail struct {
	store  RecipeEditor
	thumbs Thumbnailer
}

func NewThumbnail(store RecipeEditor, thumbs Thumbnailer) *Thumbnail {
	return &Thumbnail{store: store, thumbs: thumbs}
}

func (t *Thumbnail) Name() toolresults.ToolID { return toolresults.GenerateThumbnail }

func (t *Thumbnail) Description() string {
	return "Generate a new picture for one of the user's saved recipes."
}

func (t *Thumbnail) InputSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"recipeId"},
		"properties": map[string]any{
			"recipeId": map[string]any{
				"type":        "string",
				"description": "Id of the saved recipe to illustrate.",
			},
		},
	}
}

type thumbnailInput struct {
	RecipeID string `json:"recipeId"`
}

func (t *Thumbnail) Execute(ctx context.Context, call agent.CallContext, raw json.RawMessage, _ agent.OutputFunc) (toolresults.Result, error) {
	if call.UserID == "" {
		return nil, ErrNoUser
	}
	var in thumbnailInput
	if err := decodeInput(raw, &in); err != nil {
		return nil, err
	}
	_, res, err := t.run(ctx, call.UserID, in.RecipeID)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ThumbnailError reports a generation failure to callers outside the agent.
type ThumbnailError struct {
	RecipeID string
	Reason   string
}

func (e *ThumbnailError) Error() string {
	return fmt.Sprintf("thumbnail for recipe %s failed: %s", e.RecipeID, e.Reason)
}

// Regenerate replaces the thumbnail of a saved recipe and returns the
// updated recipe. A failed generation returns a *ThumbnailError and leaves
// the recipe unchanged.
func (t *Thumbnail) Regenerate(ctx context.Context, userID, recipeID string) (*models.Recipe, error) {
	if userID == "" {
		return nil, ErrNoUser
	}
	rec, res, err := t.run(ctx, userID, recipeID)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, &ThumbnailError{RecipeID: recipeID, Reason: res.Error}
	}
	return rec, nil
}

func (t *Thumbnail) run(ctx context.Context, userID, recipeID string) (*models.Recipe, toolresults.ThumbnailResult, error) {
	if recipeID == "" {
		return nil, toolresults.ThumbnailResult{}, errors.New("recipeId is required")
	}

	// Lookups are user-scoped, so another user's recipe reads as missing.
	rec, err := t.store.GetRecipe(ctx, userID, recipeID)
	if err != nil {
		return nil, toolresults.ThumbnailResult{}, err
	}

	res := t.thumbs.GenerateForRecipe(ctx, thumbnail.Recipe{
		ID:          rec.ID,
		Title:       rec.Title,
		Ingredients: rec.Ingredients,
	}, userID)
	if !res.Success {
		return rec, res, nil
	}

	url := res.ThumbnailURL
	updated, err := t.store.UpdateRecipe(ctx, userID, rec.ID, models.RecipePatch{ThumbnailURL: &url})
	if err != nil {
		return nil, toolresults.ThumbnailResult{}, fmt.Errorf("store thumbnail: %w", err)
	}
	return updated, res, nil
}
