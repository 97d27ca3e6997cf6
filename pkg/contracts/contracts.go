// Package contracts defines the service interfaces the HTTP layer depends on.
//
// The api/handlers package only sees these interfaces, so tests and
// alternative deployments can swap an implementation without touching the
// handlers.
package contracts

import (
	"context"

	"github.com/recipeassist/recipe-assistant/internal/agent"
	"github.com/recipeassist/recipe-assistant/internal/store"
	"github.com/recipeassist/recipe-assistant/pkg/models"
)

// RecipeStore is a type alias for the internal user-scoped recipe store.
type RecipeStore = store.RecipeStore

// ErrNotFound is a type alias for the internal ErrNotFound error.
type ErrNotFound = store.ErrNotFound

// ── Chat Service ────────────────────────────────────────────

// ChatService runs chat turns for an authenticated caller.
// Implementation: internal/chatsvc.Service
type ChatService interface {
	// Chat runs one turn to completion and returns the aggregated reply.
	Chat(ctx context.Context, id *Identity, req models.ChatRequest) (*models.ChatResponse, error)

	// OpenStream starts a streamed turn. The caller must close the stream;
	// cancelling ctx stops the agent.
	OpenStream(ctx context.Context, id *Identity, req models.ChatRequest) (agent.Stream, error)
}

// ── Thumbnail Service ───────────────────────────────────────

// ThumbnailService regenerates the picture of a saved recipe.
// Implementation: internal/tools.Thumbnail
type ThumbnailService interface {
	Regenerate(ctx context.Context, userID, recipeID string) (*models.Recipe, error)
}
