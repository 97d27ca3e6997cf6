// Package thumbnail renders a picture of a recipe and stores it in object
// storage. A failed thumbnail never fails the caller: GenerateForRecipe
// reports it in the result and the recipe simply has no picture.
package thumbnail

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/recipeassist/recipe-assistant/internal/toolresults"
)

// ImageGenerator turns a prompt into PNG bytes.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

// Uploader stores an object and returns a URL the browser can load.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Observer records thumbnail attempts.
type Observer interface {
	RecordThumbnail(d time.Duration, err error)
}

// Recipe is the part of a recipe the prompt is built from.
type Recipe struct {
	ID          string
	Title       string
	Ingredients []string
}

// Generator composes an ImageGenerator and an Uploader.
type Generator struct {
	images   ImageGenerator
	uploads  Uploader
	prefix   string
	observer Observer
}

// NewGenerator creates a generator that stores objects under prefix.
// observer may be nil.
func NewGenerator(images ImageGenerator, uploads Uploader, prefix string, observer Observer) *Generator {
	return &Generator{
		images:   images,
		uploads:  uploads,
		prefix:   strings.Trim(prefix, "/"),
		observer: observer,
	}
}

// GenerateForRecipe renders and uploads a thumbnail for recipe, stored under
// the user's folder. It never returns an error; failures come back with
// Success false.
func (g *Generator) GenerateForRecipe(ctx context.Context, recipe Recipe, userID string) toolresults.ThumbnailResult {
	res := toolresults.ThumbnailResult{RecipeID: recipe.ID}
	start := time.Now()

	url, err := g.generate(ctx, recipe, userID)
	if g.observer != nil {
		g.observer.RecordThumbnail(time.Since(start), err)
	}
	if err != nil {
		log.Warn().Err(err).
			Str("recipe", recipe.ID).
			Str("title", recipe.Title).
			Msg("Thumbnail generation failed")
		res.Error = err.Error()
		return res
	}

	res.ThumbnailURL = url
	res.Success = true
	return res
}

func (g *Generator) generate(ctx context.Context, recipe Recipe, userID string) (string, error) {
	if g == nil || g.images == nil || g.uploads == nil {
		return "", fmt.Errorf("thumbnail generation is not configured")
	}
	if userID == "" {
		return "", fmt.Errorf("thumbnail requires a user id")
	}

	png, err := g.images.Generate(ctx, Prompt(recipe))
	if err != nil {
		return "", fmt.Errorf("generate image: %w", err)
	}

	name := recipe.ID
	if name == "" {
		name = uuid.NewString()
	}
	key := path.Join(g.prefix, userID, name+".png")
	url, err := g.uploads.Upload(ctx, key, png, "image/png")
	if err != nil {
		return "", fmt.Errorf("upload thumbnail: %w", err)
	}
	return url, nil
}

// Prompt describes the dish for the image model.
func Prompt(recipe Recipe) string {
	var sb strings.Builder
	sb.WriteString("A bright, appetizing overhead food photograph of ")
	sb.WriteString(recipe.Title)
	if len(recipe.Ingredients) > 0 {
		n := len(recipe.Ingredients)
		if n > 6 {
			n = 6
		}
		sb.WriteString(", made with ")
		sb.WriteString(strings.Join(recipe.Ingredients[:n], ", "))
	}
	sb.WriteString(". Plated on a simple table, natural light, no text.")
	return sb.String()
}
