// Package tools holds the plain (non-workflow) tools the recipe agent can
// call. Every tool acts on behalf of the user in the call context and never
// trusts a user id the model supplies.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/recipeassist/recipe-assistant/internal/agent"
	"github.com/recipeassist/recipe-assistant/internal/toolresults"
	"github.com/recipeassist/recipe-assistant/pkg/models"
)

// DefaultListLimit caps how many recipes get-user-recipes returns.
const DefaultListLimit = 20

// ErrNoUser is returned when a tool runs without an authenticated user.
var ErrNoUser = errors.New("tool requires an authenticated user")

// RecipeLister lists a user's recipes.
type RecipeLister interface {
	ListRecipes(ctx context.Context, userID string, filter models.RecipeFilter) ([]models.Recipe, error)
}

// UserRecipes is the get-user-recipes tool.
type UserRecipes struct {
	store RecipeLister
	limit int
}

// NewUserRecipes creates the tool. limit <= 0 uses DefaultListLimit.
func NewUserRecipes(store RecipeLister, limit int) *UserRecipes {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return &UserRecipes{store: store, limit: limit}
}

func (t *UserRecipes) Name() toolresults.ToolID { return toolresults.GetUserRecipes }

func (t *UserRecipes) Description() string {
	return "List recipes the user has saved. Use it when the user asks about their recipes or favorites."
}

func (t *UserRecipes) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"favoritesOnly": map[string]any{
				"type":        "boolean",
				"description": "Only return recipes marked as favorite.",
			},
			"query": map[string]any{
				"type":        "string",
				"description": "Case-insensitive text to match against titles and ingredients.",
			},
		},
	}
}

type userRecipesInput struct {
	FavoritesOnly bool   `json:"favoritesOnly"`
	Query         string `json:"query"`
}

func (t *UserRecipes) Execute(ctx context.Context, call agent.CallContext, raw json.RawMessage, _ agent.OutputFunc) (toolresults.Result, error) {
	if call.UserID == "" {
		return nil, ErrNoUser
	}
	var in userRecipesInput
	if err := decodeInput(raw, &in); err != nil {
		return nil, err
	}

	recipes, err := t.store.ListRecipes(ctx, call.UserID, models.RecipeFilter{
		FavoritesOnly: in.FavoritesOnly,
		Query:         in.Query,
		Limit:         t.limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list recipes: %w", err)
	}

	out := toolresults.UserRecipesResult{Recipes: make([]toolresults.RecipeSummary, 0, len(recipes))}
	for _, r := range recipes {
		out.Recipes = append(out.Recipes, toolresults.RecipeSummary{
			ID:           r.ID,
			Title:        r.Title,
			Ingredients:  r.Ingredients,
			IsFavorite:   r.IsFavorite,
			ThumbnailURL: r.ThumbnailURL,
		})
	}
	log.Debug().
		Str("user", call.UserID).
		Int("count", len(out.Recipes)).
		Msg("Listed user recipes")
	return out, nil
}

// decodeInput tolerates an empty input object.
func decodeInput(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode tool input: %w", err)
	}
	return nil
}
