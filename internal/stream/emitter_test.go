package stream_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recipeassist/recipe-assistant/internal/agent"
	"github.com/recipeassist/recipe-assistant/internal/stream"
	"github.com/recipeassist/recipe-assistant/internal/toolresults"
	"github.com/recipeassist/recipe-assistant/internal/wire"
)

const run = "run-1"

func chunk(t *testing.T, typ agent.ChunkType, payload any) agent.Chunk {
	t.Helper()
	c, err := agent.NewChunk(typ, run, payload)
	require.NoError(t, err)
	return c
}

func rawChunk(typ agent.ChunkType, payload string) agent.Chunk {
	return agent.Chunk{Type: typ, RunID: run, Payload: json.RawMessage(payload)}
}

func workflowDone() agent.Chunk {
	return agent.ToolResult(run, "c1", toolresults.CompleteRecipesResult{
		Recipes: []toolresults.GeneratedRecipe{{ID: "r1", Title: "Soup", Ingredients: []string{"water"}, Instructions: []string{"boil"}}},
	})
}

func userRecipes(ids ...string) agent.Chunk {
	res := toolresults.UserRecipesResult{}
	for _, id := range ids {
		res.Recipes = append(res.Recipes, toolresults.RecipeSummary{ID: id, Title: "t-" + id})
	}
	return agent.ToolResult(run, "c2", res)
}

func lines(body string) []string {
	return strings.Split(strings.TrimSuffix(body, "\n"), "\n")
}

type countingObserver struct {
	forwarded map[string]int
	dropped   map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{forwarded: map[string]int{}, dropped: map[string]int{}}
}

func (o *countingObserver) ChunkForwarded(kind string) { o.forwarded[kind]++ }
func (o *countingObserver) ChunkDropped(reason string) { o.dropped[reason]++ }

// ─── Scenarios ───────────────────────────────────────────────

func TestEmit_WorkflowResultEndsStream(t *testing.T) {
	src := agent.NewSliceStream(
		agent.TextDelta(run, "Hi "),
		agent.TextDelta(run, "there"),
		workflowDone(),
		agent.TextDelta(run, "trailing commentary"),
	)
	rec := httptest.NewRecorder()
	e := stream.NewEmitter(wire.FramingNDJSON, nil)

	require.NoError(t, e.Emit(context.Background(), rec, src))

	assert.Equal(t, []string{
		`{"type":"text-delta","text":"Hi "}`,
		`{"type":"text-delta","text":"there"}`,
		`{"type":"tool-result","workflowId":"run-complete-recipes"}`,
	}, lines(rec.Body.String()))
	assert.Equal(t, 3, src.Consumed(), "nothing is read after the terminal chunk")
	assert.True(t, src.Closed())
	assert.True(t, rec.Flushed)
}

func TestEmit_UserRecipesResultCarriesIDs(t *testing.T) {
	src := agent.NewSliceStream(
		agent.ToolCallStart(run, "c2", toolresults.GetUserRecipes),
		userRecipes("r1", "r2"),
		agent.Finish(run, "stop"),
	)
	rec := httptest.NewRecorder()

	require.NoError(t, stream.NewEmitter(wire.FramingNDJSON, nil).Emit(context.Background(), rec, src))

	assert.Equal(t, []string{
		`{"type":"tool-call-input-streaming-start","toolId":"get-user-recipes"}`,
		`{"type":"tool-result","toolId":"get-user-recipes","recipeIds":["r1","r2"]}`,
	}, lines(rec.Body.String()))
	assert.True(t, src.Closed())
}

func TestEmit_UnknownKindDropped(t *testing.T) {
	obs := newCountingObserver()
	src := agent.NewSliceStream(
		agent.Chunk{Type: "mystery", RunID: run},
		agent.TextDelta(run, "still here"),
	)
	var buf bytes.Buffer

	require.NoError(t, stream.NewEmitter(wire.FramingNDJSON, obs).Emit(context.Background(), &buf, src))

	assert.Equal(t, `{"type":"text-delta","text":"still here"}`+"\n", buf.String())
	assert.Equal(t, 1, obs.dropped[stream.DropUnhandledKind])
	assert.Equal(t, 1, obs.forwarded[string(wire.KindTextDelta)])
}

func TestEmit_WorkflowProgress(t *testing.T) {
	src := agent.NewSliceStream(
		chunk(t, agent.ChunkStart, nil),
		agent.ToolCallStart(run, "c1", toolresults.RunCompleteRecipes),
		chunk(t, agent.ChunkToolCallDelta, agent.ToolCallDeltaPayload{ToolCallID: "c1", ArgsDelta: `{"req`}),
		agent.ToolOutput(run, "c1", toolresults.RunCompleteRecipes, json.RawMessage(`{"type":"workflow-step-start","payload":{"id":"generate-recipes"}}`)),
		agent.ToolOutput(run, "c1", toolresults.RunCompleteRecipes, json.RawMessage(`{"type":"log","payload":{"id":"x"}}`)),
		agent.ToolCallStart(run, "c3", toolresults.GenerateThumbnail),
		workflowDone(),
	)
	var buf bytes.Buffer

	require.NoError(t, stream.NewEmitter(wire.FramingNDJSON, nil).Emit(context.Background(), &buf, src))

	assert.Equal(t, []string{
		`{"type":"tool-call-input-streaming-start","workflowId":"run-complete-recipes"}`,
		`{"type":"tool-output","workflowStepId":"generate-recipes"}`,
		`{"type":"tool-result","workflowId":"run-complete-recipes"}`,
	}, lines(buf.String()))
}

func TestEmit_MalformedChunkSkipped(t *testing.T) {
	obs := newCountingObserver()
	src := agent.NewSliceStream(
		rawChunk(agent.ChunkTextDelta, `{"text":`),
		agent.Chunk{Type: agent.ChunkToolCallStart, RunID: run},
		agent.TextDelta(run, "ok"),
	)
	var buf bytes.Buffer

	require.NoError(t, stream.NewEmitter(wire.FramingNDJSON, obs).Emit(context.Background(), &buf, src))
	assert.Equal(t, `{"type":"text-delta","text":"ok"}`+"\n", buf.String())
	assert.Equal(t, 2, obs.dropped[stream.DropMalformed])
}

func TestEmit_InvalidTerminalResult(t *testing.T) {
	bad := chunk(t, agent.ChunkToolResult, agent.ToolResultPayload{
		ToolCallID: "c2",
		ToolName:   string(toolresults.GetUserRecipes),
		Result:     json.RawMessage(`{"recipes":[{"title":"no id"}]}`),
	})
	src := agent.NewSliceStream(agent.TextDelta(run, "a"), bad, agent.TextDelta(run, "b"))
	var buf bytes.Buffer

	err := stream.NewEmitter(wire.FramingNDJSON, nil).Emit(context.Background(), &buf, src)

	var perr *stream.ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, toolresults.GetUserRecipes, perr.Tool)
	assert.Equal(t, 1, perr.Forwarded)
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
	assert.True(t, src.Closed())
}

func TestEmit_ConcatFraming(t *testing.T) {
	src := agent.NewSliceStream(agent.TextDelta(run, "a"), agent.TextDelta(run, "b"))
	rec := httptest.NewRecorder()
	e := stream.NewEmitter(wire.FramingNDJSON, nil).WithFraming(wire.FramingConcat)
	e.WriteHeaders(rec)

	require.NoError(t, e.Emit(context.Background(), rec, src))
	assert.Equal(t, `{"type":"text-delta","text":"a"}{"type":"text-delta","text":"b"}`, rec.Body.String())
	assert.Equal(t, wire.FramingConcat.ContentType(), rec.Header().Get("Content-Type"))
}

func TestEmit_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := agent.NewSliceStream(agent.TextDelta(run, "never"))
	var buf bytes.Buffer

	err := stream.NewEmitter(wire.FramingNDJSON, nil).Emit(ctx, &buf, src)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, buf.String())
	assert.True(t, src.Closed())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestEmit_WriteErrorAborts(t *testing.T) {
	src := agent.NewSliceStream(agent.TextDelta(run, "a"), agent.TextDelta(run, "b"))
	err := stream.NewEmitter(wire.FramingNDJSON, nil).Emit(context.Background(), failingWriter{}, src)
	assert.ErrorContains(t, err, "broken pipe")
	assert.Equal(t, 1, src.Consumed())
}

func TestEmit_SourceError(t *testing.T) {
	boom := errors.New("agent crashed")
	src := agent.NewPipe(context.Background(), func(ctx context.Context, emit agent.EmitFunc) error {
		if err := emit(agent.TextDelta(run, "partial")); err != nil {
			return err
		}
		return boom
	})
	var buf bytes.Buffer

	err := stream.NewEmitter(wire.FramingNDJSON, nil).Emit(context.Background(), &buf, src)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, `{"type":"text-delta","text":"partial"}`+"\n", buf.String())
}

// ─── Projection ──────────────────────────────────────────────

func TestProject(t *testing.T) {
	v := stream.NewResultValidator()
	tests := []struct {
		name     string
		in       agent.Chunk
		want     wire.Chunk
		ok       bool
		terminal bool
	}{
		{"text", agent.TextDelta(run, "x"), wire.TextDelta("x"), true, false},
		{"empty text", agent.TextDelta(run, ""), wire.TextDelta(""), true, false},
		{"workflow start", agent.ToolCallStart(run, "c", toolresults.RunCompleteRecipes), wire.ToolCallStart("run-complete-recipes", ""), true, false},
		{"tool start", agent.ToolCallStart(run, "c", toolresults.GetUserRecipes), wire.ToolCallStart("", "get-user-recipes"), true, false},
		{"hidden tool start", agent.ToolCallStart(run, "c", toolresults.GenerateThumbnail), wire.Chunk{}, false, false},
		{"unknown tool start", agent.ToolCallStart(run, "c", "rm-rf"), wire.Chunk{}, false, false},
		{"workflow done", workflowDone(), wire.WorkflowResult("run-complete-recipes"), true, true},
		{"user recipes empty", userRecipes(), wire.ToolResult("get-user-recipes", []string{}), true, true},
		{"thumbnail result", agent.ToolResult(run, "c", toolresults.ThumbnailResult{Success: true}), wire.Chunk{}, false, false},
		{"tool error", agent.ToolErrorChunk(run, "c", toolresults.RunCompleteRecipes, errors.New("x")), wire.Chunk{}, false, false},
		{"reasoning", chunk(t, agent.ChunkReasoningDelta, agent.TextDeltaPayload{Text: "hmm"}), wire.Chunk{}, false, false},
		{"finish", agent.Finish(run, "stop"), wire.Chunk{}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, terminal, ok, err := stream.Project(tt.in, v)
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.terminal, terminal)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestProject_InvalidWorkflowResult(t *testing.T) {
	c := chunk(t, agent.ChunkToolResult, agent.ToolResultPayload{
		ToolName: string(toolresults.RunCompleteRecipes),
		Result:   json.RawMessage(`{"recipes":"soup"}`),
	})
	_, _, ok, err := stream.Project(c, stream.NewResultValidator())
	assert.False(t, ok)
	var perr *stream.ProtocolError
	assert.ErrorAs(t, err, &perr)
}

func TestProject_MalformedIsNotFatal(t *testing.T) {
	_, _, ok, err := stream.Project(rawChunk(agent.ChunkToolOutput, `[1,2]`), nil)
	assert.False(t, ok)
	assert.ErrorIs(t, err, stream.ErrMalformed)
}
