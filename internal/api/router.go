package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/recipeassist/recipe-assistant/internal/api/handlers"
	"github.com/recipeassist/recipe-assistant/internal/api/middleware"
	"github.com/recipeassist/recipe-assistant/internal/config"
)

// NewRouter creates the HTTP router with all API routes. metrics may be nil.
func NewRouter(cfg *config.Config, h *handlers.Handlers, auth *middleware.AuthMiddleware, metrics http.Handler) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "X-Trace-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(auth.Handler)
	r.Use(middleware.RecordUser)

	// Health & info
	r.Get("/health", h.HealthCheck)
	r.Get("/version", versionHandler(cfg))
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Chat. The stream route must not be compressed: the compressor
		// buffers output and would hold chunks back until the turn ends.
		r.Route("/chat", func(r chi.Router) {
			r.With(chimw.Compress(5)).Post("/", h.Chat)
			r.Post("/stream", h.ChatStream)
		})

		// Recipes (the caller's cookbook)
		r.Route("/recipes", func(r chi.Router) {
			r.Use(chimw.Compress(5))
			r.Get("/", h.ListRecipes)
			r.Route("/{recipeId}", func(r chi.Router) {
				r.Get("/", h.GetRecipe)
				r.Patch("/", h.UpdateRecipe)
				r.Delete("/", h.DeleteRecipe)
				r.Post("/thumbnail", h.GenerateThumbnail)
			})
		})
	})

	return r
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "recipe-assistant",
		})
	}
}
