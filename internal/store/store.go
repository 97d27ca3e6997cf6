// Package store provides the recipe persistence interface and its
// implementations: an in-memory store for local dev and tests, and a
// PostgreSQL store for production.
package store

import (
	"context"
	"errors"

	"github.com/recipeassist/recipe-assistant/pkg/models"
)

// Store is the primary storage interface for the server.
// All handler code depends on this interface, making it easy to swap
// between in-memory (tests) and PostgreSQL (production) implementations.
type Store interface {
	RecipeStore

	// Ping checks if the database is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error

	// Migrate runs database migrations.
	Migrate(ctx context.Context) error
}

// ── Recipe Store ────────────────────────────────────────────

// RecipeStore is scoped by user id on every call. A recipe owned by another
// user behaves exactly like a missing one.
type RecipeStore interface {
	// CreateRecipe inserts a new recipe. ID and DateCreated are assigned
	// when empty.
	CreateRecipe(ctx context.Context, recipe *models.Recipe) error
	GetRecipe(ctx context.Context, userID, id string) (*models.Recipe, error)
	ListRecipes(ctx context.Context, userID string, filter models.RecipeFilter) ([]models.Recipe, error)
	UpdateRecipe(ctx context.Context, userID, id string, patch models.RecipePatch) (*models.Recipe, error)
	DeleteRecipe(ctx context.Context, userID, id string) error
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}

// ErrMissingOwner is returned when a recipe is created without a user id.
var ErrMissingOwner = errors.New("recipe has no owner")

// IsNotFound reports whether err is (or wraps) an ErrNotFound.
func IsNotFound(err error) bool {
	var nf *ErrNotFound
	return errors.As(err, &nf)
}
