package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recipeassist/recipe-assistant/internal/agent"
	"github.com/recipeassist/recipe-assistant/internal/memory"
	"github.com/recipeassist/recipe-assistant/internal/toolresults"
)

// testDecoder feeds a fixed sequence of events to the ssestream.Stream.
type testDecoder struct {
	events []ssestream.Event
	i      int
	err    error
}

func (d *testDecoder) Event() ssestream.Event { return d.events[d.i-1] }

func (d *testDecoder) Next() bool {
	if d.err != nil || d.i >= len(d.events) {
		return false
	}
	d.i++
	return true
}

func (d *testDecoder) Close() error { return nil }
func (d *testDecoder) Err() error   { return d.err }

func event(typ, data string) ssestream.Event {
	return ssestream.Event{Type: typ, Data: []byte(data)}
}

func textStep(text string) []ssestream.Event {
	return []ssestream.Event{
		event("content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`),
		event("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":`+quote(text)+`}}`),
		event("content_block_stop", `{"type":"content_block_stop","index":0}`),
		event("message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":3}}`),
		event("message_stop", `{"type":"message_stop"}`),
	}
}

func toolStep(id, name, input string) []ssestream.Event {
	return []ssestream.Event{
		event("content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"`+id+`","name":"`+name+`","input":{}}}`),
		event("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":`+quote(input)+`}}`),
		event("content_block_stop", `{"type":"content_block_stop","index":0}`),
		event("message_delta", `{"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":3}}`),
		event("message_stop", `{"type":"message_stop"}`),
	}
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// scriptedMessages replays one scripted step per NewStreaming call.
type scriptedMessages struct {
	mu     sync.Mutex
	steps  [][]ssestream.Event
	calls  []sdk.MessageNewParams
	answer string
}

func (s *scriptedMessages) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.mu.Lock()
	s.calls = append(s.calls, body)
	s.mu.Unlock()
	var msg sdk.Message
	if err := json.Unmarshal([]byte(`{"id":"m","type":"message","role":"assistant","content":[{"type":"text","text":`+quote(s.answer)+`}]}`), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *scriptedMessages) NewStreaming(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, body)
	var events []ssestream.Event
	if len(s.steps) > 0 {
		events, s.steps = s.steps[0], s.steps[1:]
	}
	return ssestream.NewStream[sdk.MessageStreamEventUnion](&testDecoder{events: events}, nil)
}

type listTool struct {
	gotCall agent.CallContext
	gotArgs json.RawMessage
	err     error
}

func (l *listTool) Name() toolresults.ToolID { return toolresults.GetUserRecipes }
func (l *listTool) Description() string      { return "list recipes" }
func (l *listTool) InputSchema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (l *listTool) Execute(_ context.Context, call agent.CallContext, input json.RawMessage, emit agent.OutputFunc) (toolresults.Result, error) {
	l.gotCall = call
	l.gotArgs = input
	if l.err != nil {
		return nil, l.err
	}
	return toolresults.UserRecipesResult{Recipes: []toolresults.RecipeSummary{{ID: "r1", Title: "Soup"}}}, nil
}

func drain(t *testing.T, s agent.Stream) ([]agent.Chunk, error) {
	t.Helper()
	defer s.Close()
	var out []agent.Chunk
	for {
		c, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, c)
	}
}

func types(chunks []agent.Chunk) []agent.ChunkType {
	out := make([]agent.ChunkType, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, c.Type)
	}
	return out
}

func TestRuntime_ToolLoop(t *testing.T) {
	msgs := &scriptedMessages{steps: [][]ssestream.Event{
		toolStep("call_1", "get-user-recipes", `{"favoritesOnly":true}`),
		textStep("Here they are."),
	}}
	tool := &listTool{}
	mem := memory.NewLRUStore(0, 0)
	rt := New(msgs, agent.NewRegistry(tool), mem, Options{})

	call := agent.CallContext{UserID: "u1", ThreadID: "t1"}
	s, err := rt.Stream(context.Background(), agent.Request{
		Messages: []agent.Message{{Role: agent.RoleUser, Content: "show my favourites"}},
		Call:     call,
	})
	require.NoError(t, err)

	chunks, err := drain(t, s)
	require.NoError(t, err)

	assert.Equal(t, []agent.ChunkType{
		agent.ChunkStart,
		agent.ChunkStepStart,
		agent.ChunkToolCallStart,
		agent.ChunkToolCallDelta,
		agent.ChunkToolCall,
		agent.ChunkStepFinish,
		agent.ChunkToolResult,
		agent.ChunkStepStart,
		agent.ChunkTextDelta,
		agent.ChunkStepFinish,
		agent.ChunkFinish,
	}, types(chunks))

	assert.Equal(t, call, tool.gotCall, "tool receives the caller's context")
	assert.JSONEq(t, `{"favoritesOnly":true}`, string(tool.gotArgs))

	var res agent.ToolResultPayload
	require.NoError(t, chunks[6].Decode(&res))
	assert.Equal(t, "get-user-recipes", res.ToolName)
	assert.Equal(t, "call_1", res.ToolCallID)

	require.Len(t, msgs.calls, 2)
	assert.Len(t, msgs.calls[1].Messages, 3, "second step sees user, tool_use and tool_result turns")
	assert.Len(t, msgs.calls[0].Tools, 1)

	history, err := mem.Load(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, []agent.Message{
		{Role: agent.RoleUser, Content: "show my favourites"},
		{Role: agent.RoleAssistant, Content: "Here they are."},
	}, history)
}

func TestRuntime_GenerateCollects(t *testing.T) {
	msgs := &scriptedMessages{steps: [][]ssestream.Event{
		toolStep("call_1", "get-user-recipes", `{}`),
		textStep("Done."),
	}}
	rt := New(msgs, agent.NewRegistry(&listTool{}), nil, Options{})

	res, err := rt.Generate(context.Background(), agent.Request{
		Messages: []agent.Message{{Role: agent.RoleUser, Content: "list"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Done.", res.Text)
	require.Len(t, res.ToolResults, 1)
	ur, ok := res.ToolResults[0].Result.(toolresults.UserRecipesResult)
	require.True(t, ok)
	assert.Equal(t, []string{"r1"}, ur.RecipeIDs())
}

func TestRuntime_ToolFailureFailsTurn(t *testing.T) {
	msgs := &scriptedMessages{steps: [][]ssestream.Event{
		toolStep("call_1", "get-user-recipes", `{}`),
	}}
	rt := New(msgs, agent.NewRegistry(&listTool{err: errors.New("db down")}), nil, Options{})

	_, err := rt.Generate(context.Background(), agent.Request{
		Messages: []agent.Message{{Role: agent.RoleUser, Content: "list"}},
	})
	var te *agent.ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, toolresults.GetUserRecipes, te.Tool)
}

func TestRuntime_UnknownTool(t *testing.T) {
	msgs := &scriptedMessages{steps: [][]ssestream.Event{
		toolStep("call_1", "drop-tables", `{}`),
	}}
	rt := New(msgs, agent.NewRegistry(), nil, Options{})

	_, err := rt.Generate(context.Background(), agent.Request{
		Messages: []agent.Message{{Role: agent.RoleUser, Content: "x"}},
	})
	assert.ErrorIs(t, err, agent.ErrUnknownTool)
}

func TestRuntime_MaxSteps(t *testing.T) {
	msgs := &scriptedMessages{steps: [][]ssestream.Event{
		toolStep("c1", "get-user-recipes", `{}`),
		toolStep("c2", "get-user-recipes", `{}`),
		toolStep("c3", "get-user-recipes", `{}`),
	}}
	rt := New(msgs, agent.NewRegistry(&listTool{}), nil, Options{MaxSteps: 2})

	s, err := rt.Stream(context.Background(), agent.Request{
		Messages: []agent.Message{{Role: agent.RoleUser, Content: "loop"}},
	})
	require.NoError(t, err)
	chunks, err := drain(t, s)
	require.NoError(t, err)

	last := chunks[len(chunks)-1]
	require.Equal(t, agent.ChunkFinish, last.Type)
	var fin agent.FinishPayload
	require.NoError(t, last.Decode(&fin))
	assert.Equal(t, "max-steps", fin.Reason)
	assert.Len(t, msgs.calls, 2)
}

func TestRuntime_RequiresMessages(t *testing.T) {
	rt := New(&scriptedMessages{}, nil, nil, Options{})
	_, err := rt.Stream(context.Background(), agent.Request{})
	assert.Error(t, err)
}

func TestRuntime_Complete(t *testing.T) {
	msgs := &scriptedMessages{answer: `{"recipes":[]}`}
	rt := New(msgs, nil, nil, Options{Model: "claude-test"})

	got, err := rt.Complete(context.Background(), "be terse", "make soup")
	require.NoError(t, err)
	assert.Equal(t, `{"recipes":[]}`, got)
	require.Len(t, msgs.calls, 1)
	assert.Equal(t, sdk.Model("claude-test"), msgs.calls[0].Model)
	assert.Empty(t, msgs.calls[0].Tools)
}

func TestEncodeMessages_MergesAndStartsWithUser(t *testing.T) {
	got := encodeMessages([]agent.Message{
		{Role: agent.RoleAssistant, Content: "orphan reply"},
		{Role: agent.RoleUser, Content: "a"},
		{Role: agent.RoleUser, Content: "b"},
		{Role: agent.RoleAssistant, Content: ""},
		{Role: agent.RoleAssistant, Content: "c"},
	})
	require.Len(t, got, 2)
	assert.Equal(t, sdk.MessageParamRoleUser, got[0].Role)
	assert.Equal(t, sdk.MessageParamRoleAssistant, got[1].Role)
}
