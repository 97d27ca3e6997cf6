// Package toolresults models the result of every tool and workflow the recipe
// agent can call, and groups a turn's results by tool identity.
//
// Each ToolID has exactly one result variant. Result is a sealed interface so
// the mapping from identity to shape is closed; typed access goes through a
// Key, which binds an identity to its variant at compile time.
package toolresults

import (
	"encoding/json"
	"fmt"
)

// ToolID identifies a callable tool or workflow.
type ToolID string

const (
	// RunCompleteRecipes is the workflow that generates, illustrates and
	// saves a batch of recipes.
	RunCompleteRecipes ToolID = "run-complete-recipes"
	// GetUserRecipes lists the caller's saved recipes.
	GetUserRecipes ToolID = "get-user-recipes"
	// GenerateThumbnail renders and uploads a thumbnail for one recipe.
	GenerateThumbnail ToolID = "generate-thumbnail"
)

// All lists every known identity.
var All = []ToolID{RunCompleteRecipes, GetUserRecipes, GenerateThumbnail}

// Valid reports whether id is a known identity.
func (id ToolID) Valid() bool {
	switch id {
	case RunCompleteRecipes, GetUserRecipes, GenerateThumbnail:
		return true
	}
	return false
}

// IsWorkflow reports whether id names a workflow rather than a plain tool.
func (id ToolID) IsWorkflow() bool { return id == RunCompleteRecipes }

// UIRelevant reports whether the chat UI shows progress for id. Calls to
// other tools are not streamed to the client.
func (id ToolID) UIRelevant() bool {
	return id == RunCompleteRecipes || id == GetUserRecipes
}

// String implements fmt.Stringer.
func (id ToolID) String() string { return string(id) }

// ── Result variants ─────────────────────────────────────────

// Result is the payload a tool produced. Implemented only by the variants in
// this package.
type Result interface {
	ToolID() ToolID
	sealed()
}

// GeneratedRecipe is one recipe produced by the complete-recipes workflow.
// ID is set only when the workflow already saved it. UserID is whatever the
// model put there and is never used for ownership.
type GeneratedRecipe struct {
	ID           string   `json:"id,omitempty"`
	UserID       string   `json:"userId,omitempty"`
	Title        string   `json:"title"`
	Ingredients  []string `json:"ingredients"`
	Instructions []string `json:"instructions"`
	ThumbnailURL *string  `json:"thumbnailUrl,omitempty"`
}

// CompleteRecipesResult is the result of RunCompleteRecipes.
type CompleteRecipesResult struct {
	Recipes []GeneratedRecipe `json:"recipes"`
}

func (CompleteRecipesResult) ToolID() ToolID { return RunCompleteRecipes }
func (CompleteRecipesResult) sealed()        {}

// RecipeSummary is the projection of a saved recipe returned to the model.
type RecipeSummary struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Ingredients  []string `json:"ingredients,omitempty"`
	IsFavorite   bool     `json:"isFavorite"`
	ThumbnailURL *string  `json:"thumbnailUrl,omitempty"`
}

// UserRecipesResult is the result of GetUserRecipes.
type UserRecipesResult struct {
	Recipes []RecipeSummary `json:"recipes"`
}

func (UserRecipesResult) ToolID() ToolID { return GetUserRecipes }
func (UserRecipesResult) sealed()        {}

// RecipeIDs returns the ids of the listed recipes in order.
func (r UserRecipesResult) RecipeIDs() []string {
	ids := make([]string, 0, len(r.Recipes))
	for _, rec := range r.Recipes {
		ids = append(ids, rec.ID)
	}
	return ids
}

// ThumbnailResult is the result of GenerateThumbnail.
type ThumbnailResult struct {
	RecipeID     string `json:"recipeId,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
}

func (ThumbnailResult) ToolID() ToolID { return GenerateThumbnail }
func (ThumbnailResult) sealed()        {}

// Decode parses raw as the variant that belongs to id.
func Decode(id ToolID, raw json.RawMessage) (Result, error) {
	switch id {
	case RunCompleteRecipes:
		var r CompleteRecipesResult
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("decode %s result: %w", id, err)
		}
		return r, nil
	case GetUserRecipes:
		var r UserRecipesResult
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("decode %s result: %w", id, err)
		}
		return r, nil
	case GenerateThumbnail:
		var r ThumbnailResult
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("decode %s result: %w", id, err)
		}
		return r, nil
	}
	return nil, fmt.Errorf("unknown tool %q", id)
}

// ── Envelope ────────────────────────────────────────────────

// Envelope pairs a tool identity with the result it produced.
type Envelope struct {
	ToolName ToolID `json:"toolName"`
	Result   Result `json:"result"`
}

// NewEnvelope wraps r with its own identity.
func NewEnvelope(r Result) Envelope {
	return Envelope{ToolName: r.ToolID(), Result: r}
}

// UnmarshalJSON decodes result into the variant named by toolName.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var raw struct {
		ToolName ToolID          `json:"toolName"`
		Result   json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	res, err := Decode(raw.ToolName, raw.Result)
	if err != nil {
		return err
	}
	e.ToolName = raw.ToolName
	e.Result = res
	return nil
}

// ── Typed keys ──────────────────────────────────────────────

// Key binds a ToolID to its result variant R.
type Key[R Result] struct {
	id ToolID
}

// ID returns the identity the key selects.
func (k Key[R]) ID() ToolID { return k.id }

var (
	CompleteRecipes = Key[CompleteRecipesResult]{id: RunCompleteRecipes}
	UserRecipes     = Key[UserRecipesResult]{id: GetUserRecipes}
	Thumbnail       = Key[ThumbnailResult]{id: GenerateThumbnail}
)
