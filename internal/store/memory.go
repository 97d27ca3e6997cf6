package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/recipeassist/recipe-assistant/pkg/models"
	"github.com/rs/zerolog/log"
)

// snapshot is the JSON-serializable shape written to disk.
type snapshot struct {
	Recipes map[string]*models.Recipe `json:"recipes"` // key: recipe id
}

// MemoryStore implements Store with in-memory maps.
type MemoryStore struct {
	mu      sync.RWMutex
	recipes map[string]*models.Recipe // key: recipe id

	// Persistence
	snapshotPath string        // empty = no persistence
	saveMu       sync.Mutex    // guards file writes
	saveCh       chan struct{} // debounce channel
	doneCh       chan struct{} // signals background goroutines to stop
}

// NewMemoryStore creates a new in-memory store.
// If dataDir is non-empty, data is persisted to dataDir/recipes.json.
func NewMemoryStore(dataDir string) *MemoryStore {
	m := &MemoryStore{
		recipes: make(map[string]*models.Recipe),
		saveCh:  make(chan struct{}, 1),
		doneCh:  make(chan struct{}),
	}

	if dataDir != "" {
		m.snapshotPath = filepath.Join(dataDir, "recipes.json")
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			log.Warn().Err(err).Str("dir", dataDir).Msg("Cannot create data dir, persistence disabled")
			m.snapshotPath = ""
		}
	}

	if m.snapshotPath != "" {
		m.loadSnapshot()
		go m.saveLoop()
	}

	log.Info().
		Str("snapshot", m.snapshotPath).
		Msg("Memory store configured")

	return m
}

// requestSave signals the background goroutine to persist data.
// Non-blocking: coalesces multiple rapid writes into one disk flush.
func (m *MemoryStore) requestSave() {
	if m.snapshotPath == "" {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
		// Already pending
	}
}

// saveLoop runs in a goroutine, debouncing save requests (max 1 write per 500ms).
func (m *MemoryStore) saveLoop() {
	for {
		select {
		case <-m.doneCh:
			return
		case <-m.saveCh:
			time.Sleep(500 * time.Millisecond) // debounce
			m.saveSnapshot()
		}
	}
}

// saveSnapshot persists all data to disk as JSON.
func (m *MemoryStore) saveSnapshot() {
	m.mu.RLock()
	data, err := json.MarshalIndent(snapshot{Recipes: m.recipes}, "", "  ")
	m.mu.RUnlock()

	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal snapshot")
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	// Write to temp file then rename for atomicity
	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.Error().Err(err).Str("path", tmp).Msg("Failed to write snapshot tmp")
		return
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to rename snapshot")
		return
	}

	log.Debug().Str("path", m.snapshotPath).Msg("Snapshot saved")
}

// loadSnapshot reads data from disk on startup.
func (m *MemoryStore) loadSnapshot() {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", m.snapshotPath).Msg("No snapshot file found, starting fresh")
			return
		}
		log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Failed to read snapshot")
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to parse snapshot, starting fresh")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if snap.Recipes != nil {
		m.recipes = snap.Recipes
	}

	log.Info().
		Int("recipes", len(m.recipes)).
		Str("path", m.snapshotPath).
		Msg("Snapshot loaded")
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// Close stops background goroutines and forces a final snapshot write.
// Safe to call multiple times (second call is a no-op).
func (m *MemoryStore) Close() error {
	select {
	case <-m.doneCh:
		return nil
	default:
		close(m.doneCh)
	}

	if m.snapshotPath != "" {
		log.Info().Msg("Flushing final snapshot before shutdown...")
		m.saveSnapshot()
	}

	log.Info().Msg("Memory store closed")
	return nil
}

func (m *MemoryStore) Migrate(_ context.Context) error { return nil }

// ── Recipe Store ────────────────────────────────────────────

func (m *MemoryStore) CreateRecipe(_ context.Context, recipe *models.Recipe) error {
	if recipe.UserID == "" {
		return ErrMissingOwner
	}
	if recipe.ID == "" {
		recipe.ID = uuid.NewString()
	}
	if recipe.DateCreated.IsZero() {
		recipe.DateCreated = time.Now().UTC()
	}

	m.mu.Lock()
	copy := cloneRecipe(recipe)
	m.recipes[recipe.ID] = copy
	m.mu.Unlock()

	m.requestSave()
	return nil
}

func (m *MemoryStore) GetRecipe(_ context.Context, userID, id string) (*models.Recipe, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.recipes[id]
	if !ok || r.UserID != userID {
		return nil, &ErrNotFound{Entity: "recipe", Key: id}
	}
	return cloneRecipe(r), nil
}

// ListRecipes returns the user's recipes, newest first.
func (m *MemoryStore) ListRecipes(_ context.Context, userID string, filter models.RecipeFilter) ([]models.Recipe, error) {
	m.mu.RLock()
	var result []models.Recipe
	for _, r := range m.recipes {
		if r.UserID != userID || !filter.Matches(r) {
			continue
		}
		result = append(result, *cloneRecipe(r))
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].DateCreated.Equal(result[j].DateCreated) {
			return result[i].ID < result[j].ID
		}
		return result[i].DateCreated.After(result[j].DateCreated)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (m *MemoryStore) UpdateRecipe(_ context.Context, userID, id string, patch models.RecipePatch) (*models.Recipe, error) {
	m.mu.Lock()
	r, ok := m.recipes[id]
	if !ok || r.UserID != userID {
		m.mu.Unlock()
		return nil, &ErrNotFound{Entity: "recipe", Key: id}
	}
	patch.Apply(r)
	out := cloneRecipe(r)
	m.mu.Unlock()

	m.requestSave()
	return out, nil
}

func (m *MemoryStore) DeleteRecipe(_ context.Context, userID, id string) error {
	m.mu.Lock()
	r, ok := m.recipes[id]
	if !ok || r.UserID != userID {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "recipe", Key: id}
	}
	delete(m.recipes, id)
	m.mu.Unlock()

	m.requestSave()
	return nil
}

func cloneRecipe(r *models.Recipe) *models.Recipe {
	c := *r
	c.Ingredients = append([]string(nil), r.Ingredients...)
	c.Instructions = append([]string(nil), r.Instructions...)
	if r.ThumbnailURL != nil {
		u := *r.ThumbnailURL
		c.ThumbnailURL = &u
	}
	return &c
}
