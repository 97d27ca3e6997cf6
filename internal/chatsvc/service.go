// Package chatsvc runs one chat turn for an authenticated user, on either
// the non-streaming path (the agent runs to completion and this package
// persists what it generated) or the streaming path (the agent's chunks are
// handed to the caller and workflows persist their own output).
package chatsvc

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/recipeassist/recipe-assistant/internal/agent"
	"github.com/recipeassist/recipe-assistant/internal/toolresults"
	"github.com/recipeassist/recipe-assistant/pkg/contracts"
	"github.com/recipeassist/recipe-assistant/pkg/models"
)

var (
	// ErrUnauthorized is returned when a turn has no authenticated user.
	ErrUnauthorized = errors.New("authentication required")
	// ErrNoMessage is returned when no message in the request has text.
	ErrNoMessage = errors.New("request has no message text")
)

// Observer records chat outcomes.
type Observer interface {
	ChatRequest(endpoint, outcome string)
	RecipesCreated(path string, n int)
}

// Service runs chat turns against an agent runtime.
type Service struct {
	runtime agent.Runtime
	recipes RecipeCreator
	metrics Observer
}

// New creates a service. metrics may be nil.
func New(runtime agent.Runtime, recipes RecipeCreator, metrics Observer) *Service {
	return &Service{runtime: runtime, recipes: recipes, metrics: metrics}
}

// Chat runs one turn to completion. Agent and persistence failures are not
// returned; the response carries the fallback reply instead. Only
// ErrUnauthorized and ErrNoMessage are returned as errors.
func (s *Service) Chat(ctx context.Context, id *contracts.Identity, req models.ChatRequest) (*models.ChatResponse, error) {
	call, text, err := prepare(id, req)
	if err != nil {
		s.observe("chat", outcomeFor(err))
		return nil, err
	}

	start := time.Now()
	res, err := s.runtime.Generate(ctx, agent.Request{
		Messages: []agent.Message{{Role: agent.RoleUser, Content: text}},
		Call:     call,
	})
	if err != nil {
		log.Error().Err(err).
			Str("user", call.UserID).
			Str("thread", call.ThreadID).
			Msg("Chat turn failed")
		s.observe("chat", "agent-error")
		return fallback(), nil
	}

	x := toolresults.NewExtractor(res.ToolResults)
	saved, created, err := PersistRecipes(ctx, s.recipes, call.UserID, x)
	if created > 0 && s.metrics != nil {
		s.metrics.RecipesCreated("chat", created)
	}
	if err != nil {
		log.Error().Err(err).
			Str("user", call.UserID).
			Int("saved", created).
			Msg("Saving generated recipes failed")
		s.observe("chat", "persist-error")
		return fallback(), nil
	}

	called := x.CalledToolIDs()
	toolIDs := make([]string, 0, len(called))
	for _, t := range called {
		toolIDs = append(toolIDs, string(t))
	}

	log.Info().
		Str("user", call.UserID).
		Str("thread", call.ThreadID).
		Strs("tools", toolIDs).
		Int("created", created).
		Dur("took", time.Since(start)).
		Msg("Chat turn complete")
	s.observe("chat", "ok")

	return &models.ChatResponse{
		Text:              res.Text,
		ToolIDsCalled:     toolIDs,
		DisplayRecipeIDs:  union(saved, ListedRecipeIDs(x)),
		NumRecipesCreated: created,
	}, nil
}

// OpenStream starts a streamed turn. The returned stream must be closed;
// cancelling ctx stops the agent.
func (s *Service) OpenStream(ctx context.Context, id *contracts.Identity, req models.ChatRequest) (agent.Stream, error) {
	call, text, err := prepare(id, req)
	if err != nil {
		s.observe("stream", outcomeFor(err))
		return nil, err
	}
	call.PersistGenerated = true

	st, err := s.runtime.Stream(ctx, agent.Request{
		Messages: []agent.Message{{Role: agent.RoleUser, Content: text}},
		Call:     call,
	})
	if err != nil {
		s.observe("stream", "agent-error")
		return nil, err
	}
	s.observe("stream", "ok")
	return st, nil
}

// prepare checks the caller and picks the message to process: the first
// one with non-empty text. A missing thread id starts a new thread.
func prepare(id *contracts.Identity, req models.ChatRequest) (agent.CallContext, string, error) {
	if id == nil || id.UserID == "" {
		return agent.CallContext{}, "", ErrUnauthorized
	}
	for _, m := range req.Messages {
		text := strings.TrimSpace(m.Text())
		if text == "" {
			continue
		}
		thread := m.Metadata.ThreadID
		if thread == "" {
			thread = uuid.NewString()
		}
		return agent.CallContext{UserID: id.UserID, ThreadID: thread}, text, nil
	}
	return agent.CallContext{}, "", ErrNoMessage
}

func fallback() *models.ChatResponse {
	return &models.ChatResponse{
		Text:             models.FallbackReply,
		ToolIDsCalled:    []string{},
		DisplayRecipeIDs: []string{},
	}
}

func outcomeFor(err error) string {
	if errors.Is(err, ErrUnauthorized) {
		return "unauthorized"
	}
	return "bad-request"
}

func (s *Service) observe(endpoint, outcome string) {
	if s.metrics != nil {
		s.metrics.ChatRequest(endpoint, outcome)
	}
}
