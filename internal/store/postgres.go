package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/recipeassist/recipe-assistant/pkg/models"
	"github.com/rs/zerolog/log"
)

// PostgresStore implements Store on PostgreSQL via pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to connURL, verifies the connection and runs
// migrations.
func NewPostgresStore(ctx context.Context, connURL string, maxConns int) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connURL)
	if err != nil {
		return nil, fmt.Errorf("postgres config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}

	log.Info().Int32("max_conns", cfg.MaxConns).Msg("PostgreSQL store initialized")
	return s, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS recipes (
			id            TEXT PRIMARY KEY,
			user_id       TEXT NOT NULL,
			title         TEXT NOT NULL,
			ingredients   TEXT[] NOT NULL DEFAULT '{}',
			instructions  TEXT[] NOT NULL DEFAULT '{}',
			date_created  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			thumbnail_url TEXT,
			is_favorite   BOOLEAN NOT NULL DEFAULT FALSE
		);

		CREATE INDEX IF NOT EXISTS idx_recipes_user ON recipes (user_id, date_created DESC);
	`
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

// ── Recipe Store ────────────────────────────────────────────

const recipeColumns = `id, user_id, title, ingredients, instructions, date_created, thumbnail_url, is_favorite`

func (s *PostgresStore) CreateRecipe(ctx context.Context, recipe *models.Recipe) error {
	if recipe.UserID == "" {
		return ErrMissingOwner
	}
	if recipe.ID == "" {
		recipe.ID = uuid.NewString()
	}
	if recipe.DateCreated.IsZero() {
		recipe.DateCreated = time.Now().UTC()
	}
	ingredients := recipe.Ingredients
	if ingredients == nil {
		ingredients = []string{}
	}
	instructions := recipe.Instructions
	if instructions == nil {
		instructions = []string{}
	}

	_, err := s.pool.Exec(ctx, `INSERT INTO recipes (`+recipeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		recipe.ID, recipe.UserID, recipe.Title, ingredients, instructions,
		recipe.DateCreated, recipe.ThumbnailURL, recipe.IsFavorite)
	if err != nil {
		return fmt.Errorf("insert recipe: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRecipe(ctx context.Context, userID, id string) (*models.Recipe, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+recipeColumns+` FROM recipes WHERE id = $1 AND user_id = $2`, id, userID)
	r, err := scanRecipe(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &ErrNotFound{Entity: "recipe", Key: id}
		}
		return nil, fmt.Errorf("get recipe: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListRecipes(ctx context.Context, userID string, filter models.RecipeFilter) ([]models.Recipe, error) {
	query := `SELECT ` + recipeColumns + ` FROM recipes WHERE user_id = $1`
	args := []interface{}{userID}
	argIdx := 2

	if filter.FavoritesOnly {
		query += " AND is_favorite"
	}
	if len(filter.IDs) > 0 {
		query += fmt.Sprintf(" AND id = ANY($%d)", argIdx)
		args = append(args, filter.IDs)
		argIdx++
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		query += fmt.Sprintf(` AND (title ILIKE $%d ESCAPE '\' OR EXISTS (SELECT 1 FROM unnest(ingredients) i WHERE i ILIKE $%d ESCAPE '\'))`, argIdx, argIdx)
		args = append(args, containsPattern(q))
		argIdx++
	}
	query += " ORDER BY date_created DESC, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recipes: %w", err)
	}
	defer rows.Close()

	var result []models.Recipe
	for rows.Next() {
		r, err := scanRecipe(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recipe: %w", err)
		}
		result = append(result, *r)
	}
	return result, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds an ILIKE pattern matching q literally anywhere.
func containsPattern(q string) string {
	return "%" + likeEscaper.Replace(q) + "%"
}

func (s *PostgresStore) UpdateRecipe(ctx context.Context, userID, id string, patch models.RecipePatch) (*models.Recipe, error) {
	row := s.pool.QueryRow(ctx, `UPDATE recipes SET
			title = COALESCE($3, title),
			is_favorite = COALESCE($4, is_favorite),
			thumbnail_url = COALESCE($5, thumbnail_url)
		WHERE id = $1 AND user_id = $2
		RETURNING `+recipeColumns,
		id, userID, patch.Title, patch.IsFavorite, patch.ThumbnailURL)
	r, err := scanRecipe(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &ErrNotFound{Entity: "recipe", Key: id}
		}
		return nil, fmt.Errorf("update recipe: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) DeleteRecipe(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM recipes WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete recipe: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "recipe", Key: id}
	}
	return nil
}

func scanRecipe(row pgx.Row) (*models.Recipe, error) {
	var r models.Recipe
	if err := row.Scan(&r.ID, &r.UserID, &r.Title, &r.Ingredients, &r.Instructions,
		&r.DateCreated, &r.ThumbnailURL, &r.IsFavorite); err != nil {
		return nil, err
	}
	return &r, nil
}
