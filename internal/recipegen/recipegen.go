// Package recipegen asks the LLM for complete recipes as JSON and turns the
// reply into typed recipes. Replies are often wrapped in prose or code
// fences and occasionally malformed, so the JSON is extracted, repaired
// when needed, and validated against a schema before use.
package recipegen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog/log"

	"github.com/recipeassist/recipe-assistant/internal/schema"
	"github.com/recipeassist/recipe-assistant/internal/toolresults"
)

// DefaultMaxRecipes bounds how many recipes one request produces.
const DefaultMaxRecipes = 3

// Completer returns the model's text answer to prompt.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// ErrNoRecipes is returned when the reply holds no usable recipe.
var ErrNoRecipes = errors.New("model returned no recipes")

const systemPrompt = `You are a recipe writer. Reply with JSON only, no prose, in exactly this shape:
{"recipes":[{"title":"...","ingredients":["quantity and ingredient", "..."],"instructions":["step", "..."]}]}`

var replySchema = schema.MustCompile("recipe-reply", []byte(`{
	"type": "object",
	"required": ["recipes"],
	"properties": {
		"recipes": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["title", "ingredients", "instructions"],
				"properties": {
					"title": {"type": "string", "minLength": 1},
					"ingredients": {"type": "array", "minItems": 1, "items": {"type": "string"}},
					"instructions": {"type": "array", "minItems": 1, "items": {"type": "string"}}
				}
			}
		}
	}
}`))

// Generator produces recipes from a free-text request.
type Generator struct {
	llm        Completer
	maxRecipes int
}

// New creates a generator. maxRecipes <= 0 uses DefaultMaxRecipes.
func New(llm Completer, maxRecipes int) *Generator {
	if maxRecipes <= 0 {
		maxRecipes = DefaultMaxRecipes
	}
	return &Generator{llm: llm, maxRecipes: maxRecipes}
}

// Generate asks for up to the configured number of recipes matching request.
func (g *Generator) Generate(ctx context.Context, request string) ([]toolresults.GeneratedRecipe, error) {
	request = strings.TrimSpace(request)
	if request == "" {
		return nil, errors.New("recipe request is empty")
	}
	prompt := fmt.Sprintf("Write %d recipe(s) for this request: %s", g.maxRecipes, request)

	reply, err := g.llm.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate recipes: %w", err)
	}

	recipes, err := Parse(reply)
	if err != nil {
		return nil, err
	}
	if len(recipes) > g.maxRecipes {
		recipes = recipes[:g.maxRecipes]
	}
	return recipes, nil
}

// Parse extracts, repairs and validates a recipe reply.
func Parse(reply string) ([]toolresults.GeneratedRecipe, error) {
	doc := extractJSON(reply)
	if doc == "" {
		return nil, ErrNoRecipes
	}
	if !json.Valid([]byte(doc)) {
		repaired, err := jsonrepair.JSONRepair(doc)
		if err != nil {
			return nil, fmt.Errorf("repair recipe json: %w", err)
		}
		log.Debug().Int("before", len(doc)).Int("after", len(repaired)).Msg("Repaired recipe JSON")
		doc = repaired
	}
	if err := replySchema.Validate([]byte(doc)); err != nil {
		return nil, fmt.Errorf("invalid recipe reply: %w", err)
	}

	var parsed struct {
		Recipes []toolresults.GeneratedRecipe `json:"recipes"`
	}
	if err := json.Unmarshal([]byte(doc), &parsed); err != nil {
		return nil, fmt.Errorf("decode recipe reply: %w", err)
	}

	out := make([]toolresults.GeneratedRecipe, 0, len(parsed.Recipes))
	for _, r := range parsed.Recipes {
		r.ID = ""
		r.UserID = ""
		r.ThumbnailURL = nil
		r.Title = strings.TrimSpace(r.Title)
		r.Ingredients = compact(r.Ingredients)
		r.Instructions = compact(r.Instructions)
		if r.Title == "" || len(r.Ingredients) == 0 || len(r.Instructions) == 0 {
			continue
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil, ErrNoRecipes
	}
	return out, nil
}

// extractJSON strips code fences and surrounding prose, returning the span
// from the first '{' to the last '}'. A reply with no closing brace keeps
// everything after the first '{' so it can still be repaired.
func extractJSON(reply string) string {
	s := strings.TrimSpace(reply)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	end := strings.LastIndexByte(s, '}')
	if end < start {
		return strings.TrimSpace(s[start:])
	}
	return s[start : end+1]
}

func compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}
