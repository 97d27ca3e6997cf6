// Package anthropic runs the recipe agent on the Anthropic Messages API.
//
// One invocation is an agentic loop:
//
//	load thread history → stream a model step → forward text deltas →
//	if the step ended in tool_use, execute each tool and feed the results
//	back → repeat until the model answers with text or max steps is hit.
//
// Every step is streamed, so Generate is simply Stream drained by
// agent.Collect.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/recipeassist/recipe-assistant/internal/agent"
	"github.com/recipeassist/recipe-assistant/internal/memory"
	"github.com/recipeassist/recipe-assistant/internal/toolresults"
)

const (
	// DefaultMaxSteps is the maximum number of model ↔ tool loops per turn.
	DefaultMaxSteps  = 5
	DefaultMaxTokens = 4096
	DefaultModel     = "claude-sonnet-4-5"
)

// DefaultSystem is the assistant persona used when Options.System is empty.
const DefaultSystem = `You are a friendly cooking assistant. Help the user plan meals and cook.
When the user asks for new recipes, call run-complete-recipes with a description of what they want.
When the user asks about recipes they already saved, call get-user-recipes.
When the user asks for a picture of a saved recipe, call generate-thumbnail.
Keep answers short.`

// MessagesClient is the subset of the Anthropic SDK the runtime uses.
// *sdk.MessageService satisfies it.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// NewMessagesClient builds an SDK client authenticated with apiKey.
func NewMessagesClient(apiKey string) MessagesClient {
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	return &c.Messages
}

// Options configures a Runtime.
type Options struct {
	Model     string
	MaxTokens int64
	MaxSteps  int
	System    string
}

// Runtime implements agent.Runtime.
type Runtime struct {
	msg    MessagesClient
	tools  *agent.Registry
	memory memory.Store
	opts   Options
}

// New creates a runtime. mem may be nil, in which case no thread history is
// kept.
func New(msg MessagesClient, tools *agent.Registry, mem memory.Store, opts Options) *Runtime {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	if opts.System == "" {
		opts.System = DefaultSystem
	}
	if tools == nil {
		tools = agent.NewRegistry()
	}
	return &Runtime{msg: msg, tools: tools, memory: mem, opts: opts}
}

// Generate runs the agent to completion.
func (r *Runtime) Generate(ctx context.Context, req agent.Request) (*agent.Result, error) {
	s, err := r.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return agent.Collect(s)
}

// Stream starts the agent loop in the background and returns its chunks.
func (r *Runtime) Stream(ctx context.Context, req agent.Request) (agent.Stream, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("anthropic: at least one message is required")
	}
	tools, err := r.toolParams()
	if err != nil {
		return nil, err
	}
	return agent.NewPipe(ctx, func(ctx context.Context, emit agent.EmitFunc) error {
		return r.run(ctx, req, tools, emit)
	}), nil
}

// Complete asks the model for a single text answer with no tools. Used for
// structured generation where the caller parses the reply itself.
func (r *Runtime) Complete(ctx context.Context, system, prompt string) (string, error) {
	params := sdk.MessageNewParams{
		MaxTokens: r.opts.MaxTokens,
		Model:     sdk.Model(r.opts.Model),
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(prompt))},
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	msg, err := r.msg.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic completion: %w", err)
	}
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

// ── Agentic loop ────────────────────────────────────────────

func (r *Runtime) run(ctx context.Context, req agent.Request, tools []sdk.ToolUnionParam, emit agent.EmitFunc) (err error) {
	runID := uuid.NewString()
	start := time.Now()

	ctx, span := otel.Tracer("recipe-assistant/agent").Start(ctx, "agent.run")
	span.SetAttributes(
		attribute.String("agent.run_id", runID),
		attribute.String("agent.thread_id", req.Call.ThreadID),
	)
	defer func() {
		if err != nil && !agent.IsCanceled(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	history := r.loadHistory(ctx, req.Call.ThreadID)
	msgs := encodeMessages(append(history, req.Messages...))

	var reply strings.Builder
	defer func() { r.remember(ctx, req, reply.String()) }()

	if err := emit(agent.Chunk{Type: agent.ChunkStart, RunID: runID}); err != nil {
		return err
	}

	for step := 1; step <= r.opts.MaxSteps; step++ {
		if err := emit(agent.Chunk{Type: agent.ChunkStepStart, RunID: runID}); err != nil {
			return err
		}

		params := sdk.MessageNewParams{
			MaxTokens: r.opts.MaxTokens,
			Model:     sdk.Model(r.opts.Model),
			System:    []sdk.TextBlockParam{{Text: r.opts.System}},
			Messages:  msgs,
		}
		if len(tools) > 0 {
			params.Tools = tools
		}

		turn, err := r.streamStep(ctx, runID, params, emit)
		if err != nil {
			return fmt.Errorf("model call failed (step %d): %w", step, err)
		}
		reply.WriteString(turn.text.String())

		if err := emit(agent.Chunk{Type: agent.ChunkStepFinish, RunID: runID}); err != nil {
			return err
		}

		if len(turn.calls) == 0 {
			log.Info().
				Str("run_id", runID).
				Int("steps", step).
				Dur("took", time.Since(start)).
				Msg("Agent run complete")
			return emit(agent.Finish(runID, turn.stopReason))
		}

		msgs = append(msgs, sdk.NewAssistantMessage(turn.blocks()...))

		results := make([]sdk.ContentBlockParamUnion, 0, len(turn.calls))
		for _, call := range turn.calls {
			block, err := r.executeTool(ctx, runID, req.Call, call, emit)
			if err != nil {
				return err
			}
			results = append(results, block)
		}
		msgs = append(msgs, sdk.NewUserMessage(results...))

		log.Debug().
			Str("run_id", runID).
			Int("step", step).
			Int("tool_calls", len(turn.calls)).
			Msg("Agentic loop continuing")
	}

	log.Warn().
		Str("run_id", runID).
		Int("max_steps", r.opts.MaxSteps).
		Msg("Agent hit max steps")
	return emit(agent.Finish(runID, "max-steps"))
}

func (r *Runtime) streamStep(ctx context.Context, runID string, params sdk.MessageNewParams, emit agent.EmitFunc) (*stepTurn, error) {
	stream := r.msg.NewStreaming(ctx, params)
	defer stream.Close()

	turn := &stepTurn{}
	p := newStepProcessor(runID, emit, turn)
	for stream.Next() {
		if err := p.Handle(stream.Current()); err != nil {
			return nil, err
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	return turn, nil
}

func (r *Runtime) executeTool(ctx context.Context, runID string, call agent.CallContext, tc toolCall, emit agent.EmitFunc) (sdk.ContentBlockParamUnion, error) {
	id := toolresults.ToolID(tc.name)
	tool, ok := r.tools.Get(id)
	if !ok {
		terr := &agent.ToolError{Tool: id, Err: agent.ErrUnknownTool}
		_ = emit(agent.ToolErrorChunk(runID, tc.id, id, terr.Err))
		return sdk.ContentBlockParamUnion{}, terr
	}

	output := func(v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode tool output: %w", err)
		}
		return emit(agent.ToolOutput(runID, tc.id, id, data))
	}

	start := time.Now()
	res, err := tool.Execute(ctx, call, tc.input, output)
	if err != nil {
		if agent.IsCanceled(err) {
			return sdk.ContentBlockParamUnion{}, err
		}
		log.Error().Err(err).
			Str("run_id", runID).
			Str("tool", string(id)).
			Msg("Tool execution failed")
		_ = emit(agent.ToolErrorChunk(runID, tc.id, id, err))
		return sdk.ContentBlockParamUnion{}, &agent.ToolError{Tool: id, Err: err}
	}

	log.Debug().
		Str("run_id", runID).
		Str("tool", string(id)).
		Dur("took", time.Since(start)).
		Msg("Tool executed")

	if err := emit(agent.ToolResult(runID, tc.id, res)); err != nil {
		return sdk.ContentBlockParamUnion{}, err
	}
	data, err := json.Marshal(res)
	if err != nil {
		return sdk.ContentBlockParamUnion{}, fmt.Errorf("encode tool result: %w", err)
	}
	return sdk.NewToolResultBlock(tc.id, string(data), false), nil
}

// ── History ─────────────────────────────────────────────────

func (r *Runtime) loadHistory(ctx context.Context, threadID string) []agent.Message {
	if r.memory == nil || threadID == "" {
		return nil
	}
	msgs, err := r.memory.Load(ctx, threadID)
	if err != nil {
		log.Warn().Err(err).Str("thread", threadID).Msg("Thread history unavailable, continuing without it")
		return nil
	}
	return msgs
}

// remember appends the user's messages and the assistant's text reply. It
// runs even when the run was cut short, so it must not use the run's
// (possibly cancelled) context.
func (r *Runtime) remember(ctx context.Context, req agent.Request, reply string) {
	if r.memory == nil || req.Call.ThreadID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	msgs := append([]agent.Message(nil), req.Messages...)
	if reply != "" {
		msgs = append(msgs, agent.Message{Role: agent.RoleAssistant, Content: reply})
	}
	if err := r.memory.Append(ctx, req.Call.ThreadID, msgs...); err != nil {
		log.Warn().Err(err).Str("thread", req.Call.ThreadID).Msg("Failed to save thread history")
	}
}

// ── Encoding ────────────────────────────────────────────────

// encodeMessages converts textual history to SDK messages. Consecutive
// messages with the same role are merged, empty ones dropped, and the
// conversation always starts with a user message.
func encodeMessages(msgs []agent.Message) []sdk.MessageParam {
	type merged struct {
		role agent.Role
		text []string
	}
	var turns []merged
	for _, m := range msgs {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		if len(turns) == 0 && m.Role != agent.RoleUser {
			continue
		}
		if n := len(turns); n > 0 && turns[n-1].role == m.Role {
			turns[n-1].text = append(turns[n-1].text, m.Content)
			continue
		}
		turns = append(turns, merged{role: m.Role, text: []string{m.Content}})
	}

	out := make([]sdk.MessageParam, 0, len(turns))
	for _, t := range turns {
		block := sdk.NewTextBlock(strings.Join(t.text, "\n\n"))
		if t.role == agent.RoleAssistant {
			out = append(out, sdk.NewAssistantMessage(block))
		} else {
			out = append(out, sdk.NewUserMessage(block))
		}
	}
	return out
}

func (r *Runtime) toolParams() ([]sdk.ToolUnionParam, error) {
	list := r.tools.List()
	if len(list) == 0 {
		return nil, nil
	}
	out := make([]sdk.ToolUnionParam, 0, len(list))
	for _, t := range list {
		if t.Description() == "" {
			return nil, fmt.Errorf("anthropic: tool %q is missing description", t.Name())
		}
		u := sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{ExtraFields: t.InputSchema()}, string(t.Name()))
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(t.Description())
		}
		out = append(out, u)
	}
	return out, nil
}
