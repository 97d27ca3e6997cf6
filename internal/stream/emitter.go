// Package stream translates an agent's chunk stream into the wire chunks the
// chat UI understands and writes them to a chunked HTTP response.
//
// Only a small allow-list of agent chunks reaches the client. Everything
// else is logged and skipped. The response ends when the agent stream is
// exhausted or right after a terminal tool result is written; in the second
// case the agent stream is closed so upstream work stops.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/recipeassist/recipe-assistant/internal/agent"
	"github.com/recipeassist/recipe-assistant/internal/wire"
)

// Observer counts forwarded and dropped chunks.
type Observer interface {
	ChunkForwarded(kind string)
	ChunkDropped(reason string)
}

// Emitter writes projected chunks in one framing.
type Emitter struct {
	Framing   wire.Framing
	Validator *ResultValidator
	Metrics   Observer
}

// NewEmitter creates an emitter with the standard result validator.
// observer may be nil.
func NewEmitter(framing wire.Framing, observer Observer) *Emitter {
	if framing == "" {
		framing = wire.FramingNDJSON
	}
	return &Emitter{Framing: framing, Validator: NewResultValidator(), Metrics: observer}
}

// WithFraming returns a copy of e using f.
func (e *Emitter) WithFraming(f wire.Framing) *Emitter {
	cp := *e
	cp.Framing = f
	return &cp
}

// WriteHeaders prepares w for a chunked stream. The status line is sent
// with the first chunk, so a caller can still replace the response if
// Emit fails before writing anything.
func (e *Emitter) WriteHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", e.Framing.ContentType())
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Accel-Buffering", "no")
}

// Emit reads src until it is exhausted or a terminal chunk is written,
// flushing after every chunk when w supports it. src is always closed.
//
// Emit returns nil on a clean end, a *ProtocolError for an invalid terminal
// tool result, the context error when ctx is cancelled, and any error from
// src or from writing to w.
func (e *Emitter) Emit(ctx context.Context, w io.Writer, src agent.Stream) (err error) {
	defer src.Close()

	ctx, span := otel.Tracer("recipe-assistant/stream").Start(ctx, "stream.emit")
	defer span.End()

	flusher, _ := w.(http.Flusher)
	forwarded, dropped := 0, 0
	defer func() {
		span.SetAttributes(
			attribute.Int("stream.forwarded", forwarded),
			attribute.Int("stream.dropped", dropped),
			attribute.String("stream.framing", string(e.Framing)),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		c, err := src.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		out, terminal, reason, err := project(c, e.Validator)
		if err != nil {
			var perr *ProtocolError
			if errors.As(err, &perr) {
				perr.Forwarded = forwarded
				log.Error().Err(err).Str("tool", string(perr.Tool)).Msg("Invalid terminal tool result")
				e.dropped("invalid-result")
				return perr
			}
			log.Warn().Err(err).Str("type", string(c.Type)).Msg("Skipping malformed agent chunk")
			dropped++
			e.dropped(reason)
			continue
		}
		if reason != "" {
			log.Debug().Str("type", string(c.Type)).Str("reason", reason).Msg("Agent chunk not forwarded")
			dropped++
			e.dropped(reason)
			continue
		}

		if err := wire.Encode(w, e.Framing, out); err != nil {
			return fmt.Errorf("write %s chunk: %w", out.Type, err)
		}
		if flusher != nil {
			flusher.Flush()
		}
		forwarded++
		if e.Metrics != nil {
			e.Metrics.ChunkForwarded(string(out.Type))
		}

		if terminal {
			log.Debug().
				Str("type", string(out.Type)).
				Int("forwarded", forwarded).
				Msg("Terminal chunk written, ending stream")
			return nil
		}
	}
}

func (e *Emitter) dropped(reason string) {
	if e.Metrics != nil {
		e.Metrics.ChunkDropped(reason)
	}
}
