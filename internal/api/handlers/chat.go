package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/recipeassist/recipe-assistant/internal/chatsvc"
	"github.com/recipeassist/recipe-assistant/internal/stream"
	"github.com/recipeassist/recipe-assistant/internal/wire"
	"github.com/recipeassist/recipe-assistant/pkg/models"
	pkgmw "github.com/recipeassist/recipe-assistant/pkg/middleware"
)

// ══════════════════════════════════════════════════════════════
// ── Chat Handlers ────────────────────────────────────────────
// ══════════════════════════════════════════════════════════════

// Chat runs one turn and returns the aggregated reply.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := h.ChatService.Chat(r.Context(), pkgmw.GetIdentity(r.Context()), req)
	if err != nil {
		respondChatError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// ChatStream runs one turn and streams wire chunks as they are produced.
//
// The framing follows ?framing= or the Accept header. The response ends
// when the agent finishes or right after a terminal tool result. A schema-
// invalid terminal result is a 400 when nothing has been written yet;
// otherwise the connection is aborted so the client sees a failed read.
func (h *Handlers) ChatStream(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx := r.Context()
	src, err := h.ChatService.OpenStream(ctx, pkgmw.GetIdentity(ctx), req)
	if err != nil {
		respondChatError(w, err)
		return
	}

	framing := wire.ParseFraming(r.Header.Get("Accept"), r.URL.Query().Get("framing"), h.Emitter.Framing)
	em := h.Emitter.WithFraming(framing)
	em.WriteHeaders(w)

	err = em.Emit(ctx, w, src)
	if err == nil {
		return
	}
	if ctx.Err() != nil {
		log.Debug().Err(err).Msg("Chat stream cancelled by client")
		return
	}

	var perr *stream.ProtocolError
	if errors.As(err, &perr) && perr.Forwarded == 0 {
		respondError(w, http.StatusBadRequest, perr.Error())
		return
	}

	log.Error().Err(err).Str("framing", string(framing)).Msg("Chat stream aborted")
	panic(http.ErrAbortHandler)
}

func respondChatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatsvc.ErrUnauthorized):
		respondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, chatsvc.ErrNoMessage):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error().Err(err).Msg("Chat request failed")
		respondError(w, http.StatusInternalServerError, models.FallbackReply)
	}
}
