package chatsvc

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/recipeassist/recipe-assistant/internal/toolresults"
	"github.com/recipeassist/recipe-assistant/pkg/models"
)

// RecipeCreator persists a recipe.
type RecipeCreator interface {
	CreateRecipe(ctx context.Context, recipe *models.Recipe) error
}

// PersistRecipes saves every recipe generated by the complete-recipes
// workflow in x, owned by userID, and returns the new ids in result order.
// Ids and owners carried in the result are ignored.
//
// An empty userID fails with ErrUnauthorized before any write. A failed
// write stops the batch; ids saved so far are returned with the error.
func PersistRecipes(ctx context.Context, recipes RecipeCreator, userID string, x *toolresults.Extractor) ([]string, int, error) {
	if userID == "" {
		return nil, 0, ErrUnauthorized
	}

	var ids []string
	created := 0
	for _, res := range toolresults.Results(x, toolresults.CompleteRecipes) {
		for _, gen := range res.Recipes {
			rec := &models.Recipe{
				UserID:       userID,
				Title:        gen.Title,
				Ingredients:  gen.Ingredients,
				Instructions: gen.Instructions,
				ThumbnailURL: gen.ThumbnailURL,
			}
			if err := recipes.CreateRecipe(ctx, rec); err != nil {
				return ids, created, fmt.Errorf("save recipe %q: %w", gen.Title, err)
			}
			ids = append(ids, rec.ID)
			created++
		}
	}
	if created > 0 {
		log.Info().Str("user", userID).Int("count", created).Msg("Saved generated recipes")
	}
	return ids, created, nil
}

// ListedRecipeIDs flattens the recipe ids returned by every get-user-recipes
// call in x.
func ListedRecipeIDs(x *toolresults.Extractor) []string {
	var ids []string
	for _, res := range toolresults.Results(x, toolresults.UserRecipes) {
		ids = append(ids, res.RecipeIDs()...)
	}
	return ids
}

// union concatenates lists, keeping the first occurrence of each id.
func union(lists ...[]string) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, l := range lists {
		for _, id := range l {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
