// Package workflow implements the run-complete-recipes workflow.
//
// The workflow is exposed to the agent as a single tool. Its steps run in
// order and each announces itself with a workflow-step-start output so the
// chat UI can show progress:
//
//  1. generate-recipes: ask the LLM for complete recipes
//  2. generate-thumbnails: render a picture per recipe, concurrently; a
//     failed picture leaves that recipe without a thumbnail
//  3. save-recipes: persist the recipes for the calling user (only when the
//     caller asked the workflow to persist)
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/recipeassist/recipe-assistant/internal/agent"
	"github.com/recipeassist/recipe-assistant/internal/thumbnail"
	"github.com/recipeassist/recipe-assistant/internal/toolresults"
	"github.com/recipeassist/recipe-assistant/pkg/models"
)

// Step identifiers, reported to the client as workflowStepId.
const (
	StepGenerateRecipes    = "generate-recipes"
	StepGenerateThumbnails = "generate-thumbnails"
	StepSaveRecipes        = "save-recipes"
)

// DefaultThumbnailConcurrency bounds parallel thumbnail generation.
const DefaultThumbnailConcurrency = 4

// ErrNoOwner is returned by the save step when the call has no user id.
var ErrNoOwner = errors.New("cannot save recipes without an authenticated user")

// RecipeGenerator produces recipes from a free-text request.
type RecipeGenerator interface {
	Generate(ctx context.Context, request string) ([]toolresults.GeneratedRecipe, error)
}

// Thumbnailer renders and stores one thumbnail. It reports failures in the
// result instead of returning them.
type Thumbnailer interface {
	GenerateForRecipe(ctx context.Context, recipe thumbnail.Recipe, userID string) toolresults.ThumbnailResult
}

// RecipeCreator persists a recipe.
type RecipeCreator interface {
	CreateRecipe(ctx context.Context, recipe *models.Recipe) error
}

// Observer records saved recipes.
type Observer interface {
	RecipesCreated(path string, n int)
}

// CompleteRecipes is the run-complete-recipes workflow.
type CompleteRecipes struct {
	recipes     RecipeGenerator
	thumbnails  Thumbnailer
	store       RecipeCreator
	observer    Observer
	concurrency int
}

// NewCompleteRecipes creates the workflow. thumbnails and observer may be
// nil; a nil thumbnailer skips picture generation.
func NewCompleteRecipes(recipes RecipeGenerator, thumbnails Thumbnailer, store RecipeCreator, observer Observer) *CompleteRecipes {
	return &CompleteRecipes{
		recipes:     recipes,
		thumbnails:  thumbnails,
		store:       store,
		observer:    observer,
		concurrency: DefaultThumbnailConcurrency,
	}
}

// ── agent.Tool ──────────────────────────────────────────────

func (w *CompleteRecipes) Name() toolresults.ToolID { return toolresults.RunCompleteRecipes }

func (w *CompleteRecipes) Description() string {
	return "Create new recipes for the user: writes complete recipes, illustrates them and saves them to the user's collection."
}

func (w *CompleteRecipes) InputSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"request"},
		"properties": map[string]any{
			"request": map[string]any{
				"type":        "string",
				"description": "What the user wants to cook, including dietary needs, ingredients on hand and servings.",
			},
		},
	}
}

type input struct {
	Request string `json:"request"`
}

// run carries data between steps.
type run struct {
	call    agent.CallContext
	request string
	recipes []toolresults.GeneratedRecipe
}

type step struct {
	id string
	fn func(ctx context.Context, r *run) error
}

// Execute runs every step in order.
func (w *CompleteRecipes) Execute(ctx context.Context, call agent.CallContext, raw json.RawMessage, emit agent.OutputFunc) (toolresults.Result, error) {
	var in input
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, fmt.Errorf("decode workflow input: %w", err)
		}
	}
	if strings.TrimSpace(in.Request) == "" {
		return nil, errors.New("workflow input has no request")
	}

	r := &run{call: call, request: in.Request}
	steps := []step{
		{StepGenerateRecipes, w.generateRecipes},
		{StepGenerateThumbnails, w.generateThumbnails},
		{StepSaveRecipes, w.saveRecipes},
	}

	start := time.Now()
	for _, s := range steps {
		if err := emit(agent.StepStarted(s.id)); err != nil {
			return nil, err
		}
		stepStart := time.Now()
		if err := s.fn(ctx, r); err != nil {
			log.Error().Err(err).
				Str("step", s.id).
				Str("thread", call.ThreadID).
				Msg("Workflow step failed")
			return nil, fmt.Errorf("step %s: %w", s.id, err)
		}
		log.Debug().
			Str("step", s.id).
			Dur("took", time.Since(stepStart)).
			Msg("Workflow step complete")
	}

	log.Info().
		Int("recipes", len(r.recipes)).
		Bool("persisted", call.PersistGenerated).
		Dur("took", time.Since(start)).
		Msg("Complete-recipes workflow finished")

	return toolresults.CompleteRecipesResult{Recipes: r.recipes}, nil
}

// ── Steps ───────────────────────────────────────────────────

func (w *CompleteRecipes) generateRecipes(ctx context.Context, r *run) error {
	recipes, err := w.recipes.Generate(ctx, r.request)
	if err != nil {
		return err
	}
	r.recipes = recipes
	return nil
}

func (w *CompleteRecipes) generateThumbnails(ctx context.Context, r *run) error {
	if w.thumbnails == nil {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for i := range r.recipes {
		rec := &r.recipes[i]
		g.Go(func() error {
			res := w.thumbnails.GenerateForRecipe(gctx, thumbnail.Recipe{
				ID:          rec.ID,
				Title:       rec.Title,
				Ingredients: rec.Ingredients,
			}, r.call.UserID)
			if res.Success && res.ThumbnailURL != "" {
				url := res.ThumbnailURL
				rec.ThumbnailURL = &url
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (w *CompleteRecipes) saveRecipes(ctx context.Context, r *run) error {
	if !r.call.PersistGenerated {
		return nil
	}
	if r.call.UserID == "" {
		return ErrNoOwner
	}
	for i := range r.recipes {
		gen := &r.recipes[i]
		rec := &models.Recipe{
			UserID:       r.call.UserID,
			Title:        gen.Title,
			Ingredients:  gen.Ingredients,
			Instructions: gen.Instructions,
			ThumbnailURL: gen.ThumbnailURL,
		}
		if err := w.store.CreateRecipe(ctx, rec); err != nil {
			return fmt.Errorf("save recipe %q: %w", gen.Title, err)
		}
		gen.ID = rec.ID
		gen.UserID = rec.UserID
	}
	if w.observer != nil {
		w.observer.RecipesCreated("stream", len(r.recipes))
	}
	return nil
}
