// Package server provides the public entry point for initializing the recipe
// assistant server.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	defer srv.ShutdownFunc(ctx)
//	http.ListenAndServe(fmt.Sprintf(":%d", srv.Port), srv.Handler)
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/recipeassist/recipe-assistant/internal/agent"
	"github.com/recipeassist/recipe-assistant/internal/agent/anthropic"
	"github.com/recipeassist/recipe-assistant/internal/api"
	"github.com/recipeassist/recipe-assistant/internal/api/handlers"
	"github.com/recipeassist/recipe-assistant/internal/api/middleware"
	"github.com/recipeassist/recipe-assistant/internal/auth"
	"github.com/recipeassist/recipe-assistant/internal/chatsvc"
	"github.com/recipeassist/recipe-assistant/internal/config"
	"github.com/recipeassist/recipe-assistant/internal/memory"
	"github.com/recipeassist/recipe-assistant/internal/metrics"
	"github.com/recipeassist/recipe-assistant/internal/recipegen"
	"github.com/recipeassist/recipe-assistant/internal/store"
	"github.com/recipeassist/recipe-assistant/internal/stream"
	"github.com/recipeassist/recipe-assistant/internal/telemetry"
	"github.com/recipeassist/recipe-assistant/internal/thumbnail"
	"github.com/recipeassist/recipe-assistant/internal/tools"
	"github.com/recipeassist/recipe-assistant/internal/wire"
	"github.com/recipeassist/recipe-assistant/internal/workflow"
	"github.com/recipeassist/recipe-assistant/pkg/contracts"
)

// Server holds the initialized recipe assistant.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Store is the recipe store (Postgres, or in-memory without DATABASE_URL).
	Store store.Store

	// Config is the server configuration.
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc releases the store, thread memory and telemetry exporter.
	ShutdownFunc func(context.Context) error
}

// New loads configuration from the environment and initializes all
// components.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the server with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	var closers []func(context.Context) error
	fail := func(err error) (*Server, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i](ctx)
		}
		return nil, err
	}

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry, cfg.Version)
	if err != nil {
		return fail(fmt.Errorf("init telemetry: %w", err))
	}
	closers = append(closers, shutdownTelemetry)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return fail(fmt.Errorf("init metrics: %w", err))
	}

	dataStore, err := openStore(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func(context.Context) error { return dataStore.Close() })

	threads, closeThreads, err := openMemory(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeThreads)

	thumbs, thumbURLs, err := openThumbnails(ctx, cfg, m)
	if err != nil {
		return fail(err)
	}

	// The workflow's recipe generator completes through the same runtime
	// that calls the workflow, so the registry is filled after the runtime
	// exists.
	if cfg.Agent.AnthropicAPIKey == "" {
		log.Warn().Msg("ANTHROPIC_API_KEY is not set; chat requests will fail")
	}
	registry := agent.NewRegistry()
	runtime := anthropic.New(anthropic.NewMessagesClient(cfg.Agent.AnthropicAPIKey), registry, threads, anthropic.Options{
		Model:     cfg.Agent.Model,
		MaxTokens: int64(cfg.Agent.MaxTokens),
		MaxSteps:  cfg.Agent.MaxSteps,
	})

	var wfThumbs workflow.Thumbnailer
	var thumbSvc contracts.ThumbnailService
	registry.Register(tools.NewUserRecipes(dataStore, tools.DefaultListLimit))
	if thumbs != nil {
		wfThumbs = thumbs
		thumbTool := tools.NewThumbnail(dataStore, thumbs)
		thumbSvc = thumbTool
		registry.Register(thumbTool)
	}
	registry.Register(workflow.NewCompleteRecipes(
		recipegen.New(runtime, cfg.Agent.MaxRecipes),
		wfThumbs,
		dataStore,
		m,
	))
	log.Info().Int("tools", len(registry.List())).Msg("✅ Agent runtime initialized")

	chat := chatsvc.New(runtime, dataStore, m)
	emitter := stream.NewEmitter(wire.ParseFraming("", cfg.Stream.Framing, wire.FramingNDJSON), m)

	chain := auth.NewProviderChain(
		auth.NewAPIKeyProvider(cfg.Auth.APIKeys),
		auth.NewSessionProvider(cfg.Auth.SessionSecret),
	)
	log.Info().Stringer("chain", chain).Bool("required", cfg.Auth.Required).Msg("✅ Auth initialized")
	if !cfg.Auth.Required {
		log.Warn().Msg("RECIPE_REQUIRE_AUTH=false: anonymous requests reach the handlers")
	}

	h := handlers.New(chat, dataStore, thumbSvc, emitter, dataStore)
	if thumbURLs != nil {
		h.ThumbnailURLs = thumbURLs
	}
	router := api.NewRouter(cfg, h, middleware.NewAuthMiddleware(chain, cfg.Auth.Required), m.Handler())

	return &Server{
		Handler: router,
		Store:   dataStore,
		Config:  cfg,
		Port:    cfg.Port,
		ShutdownFunc: func(ctx context.Context) error {
			var errs []error
			for i := len(closers) - 1; i >= 0; i-- {
				errs = append(errs, closers[i](ctx))
			}
			return errors.Join(errs...)
		},
	}, nil
}

// openStore uses Postgres when DATABASE_URL is set and the in-memory store
// otherwise.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Database.URL == "" {
		s := store.NewMemoryStore(cfg.DataDir)
		log.Info().Str("data_dir", cfg.DataDir).Msg("✅ In-memory store initialized")
		return s, nil
	}

	s, err := store.NewPostgresStore(ctx, cfg.Database.URL, cfg.Database.MaxConnections)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	log.Info().Msg("✅ PostgreSQL store initialized")
	return s, nil
}

// openMemory uses Redis when REDIS_URL is set and a process-local LRU
// otherwise.
func openMemory(ctx context.Context, cfg *config.Config) (memory.Store, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if cfg.Redis.URL == "" {
		log.Info().Int("threads", cfg.Redis.MaxThreads).Msg("✅ In-memory thread history initialized")
		return memory.NewLRUStore(cfg.Redis.MaxThreads, cfg.Redis.MaxMessages), noop, nil
	}

	rdb, err := memory.DialRedis(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, noop, err
	}
	s := memory.NewRedisStore(rdb, memory.RedisOptions{
		KeyPrefix:   cfg.Redis.KeyPrefix,
		MaxMessages: cfg.Redis.MaxMessages,
		TTL:         cfg.Redis.TTL,
	})
	return s, func(context.Context) error { return rdb.Close() }, nil
}

// openThumbnails returns nils when either the image model or the bucket is
// not configured; recipes are then saved without pictures. The uploader also
// signs stored thumbnail references when recipes are served.
func openThumbnails(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*thumbnail.Generator, *thumbnail.S3Uploader, error) {
	if cfg.Images.OpenAIAPIKey == "" || cfg.Storage.Bucket == "" {
		log.Info().Msg("🔕 Thumbnail generation disabled (set OPENAI_API_KEY and S3_BUCKET)")
		return nil, nil, nil
	}

	images, err := thumbnail.NewOpenAIImagesFromAPIKey(cfg.Images.OpenAIAPIKey, cfg.Images.Model)
	if err != nil {
		return nil, nil, err
	}
	uploads, err := thumbnail.NewS3UploaderFromEnv(ctx, thumbnail.S3Config{
		Bucket:        cfg.Storage.Bucket,
		Region:        cfg.Storage.Region,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
		PresignTTL:    cfg.Storage.PresignTTL,
	})
	if err != nil {
		return nil, nil, err
	}
	log.Info().Str("bucket", cfg.Storage.Bucket).Msg("✅ Thumbnail generation initialized")
	return thumbnail.NewGenerator(images, uploads, cfg.Storage.Prefix, m), uploads, nil
}
