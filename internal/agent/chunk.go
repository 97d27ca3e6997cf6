package agent

import (
	"encoding/json"
	"fmt"

	"github.com/recipeassist/recipe-assistant/internal/toolresults"
)

// ChunkType is the discriminant of an agent stream chunk. The set is open:
// runtimes may add kinds, and consumers must ignore the ones they do not
// handle.
type ChunkType string

const (
	ChunkStart          ChunkType = "start"
	ChunkStepStart      ChunkType = "step-start"
	ChunkTextDelta      ChunkType = "text-delta"
	ChunkReasoningDelta ChunkType = "reasoning-delta"
	ChunkToolCallStart  ChunkType = "tool-call-input-streaming-start"
	ChunkToolCallDelta  ChunkType = "tool-call-delta"
	ChunkToolCall       ChunkType = "tool-call"
	ChunkToolOutput     ChunkType = "tool-output"
	ChunkToolResult     ChunkType = "tool-result"
	ChunkToolError      ChunkType = "tool-error"
	ChunkStepFinish     ChunkType = "step-finish"
	ChunkFinish         ChunkType = "finish"
	ChunkError          ChunkType = "error"
)

// Chunk is one unit of a runtime's streamed output. Payload's shape depends
// on Type; use Decode to read it.
type Chunk struct {
	Type    ChunkType       `json:"type"`
	RunID   string          `json:"runId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decode unmarshals the chunk payload into v.
func (c Chunk) Decode(v any) error {
	if len(c.Payload) == 0 {
		return fmt.Errorf("%s chunk has no payload", c.Type)
	}
	if err := json.Unmarshal(c.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", c.Type, err)
	}
	return nil
}

// ── Payloads ────────────────────────────────────────────────

type TextDeltaPayload struct {
	Text string `json:"text"`
}

type ToolCallStartPayload struct {
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
}

type ToolCallDeltaPayload struct {
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
	ArgsDelta  string `json:"argsTextDelta"`
}

type ToolCallPayload struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Args       json.RawMessage `json:"args,omitempty"`
}

// ToolOutputPayload carries an intermediate value a tool reported while
// running. Workflows report WorkflowEvent values.
type ToolOutputPayload struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Output     json.RawMessage `json:"output"`
}

// ToolResultPayload carries the final output of a tool call.
type ToolResultPayload struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Result     json.RawMessage `json:"result"`
	IsError    bool            `json:"isError,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type FinishPayload struct {
	Reason string `json:"reason,omitempty"`
}

// WorkflowStepStart is the WorkflowEvent type a workflow reports when it
// enters a step.
const WorkflowStepStart = "workflow-step-start"

// WorkflowEvent is a progress notice reported by a workflow as tool output.
type WorkflowEvent struct {
	Type    string               `json:"type"`
	Payload WorkflowEventPayload `json:"payload"`
}

type WorkflowEventPayload struct {
	ID string `json:"id"`
}

// StepStarted builds the event a workflow reports on entering step id.
func StepStarted(id string) WorkflowEvent {
	return WorkflowEvent{Type: WorkflowStepStart, Payload: WorkflowEventPayload{ID: id}}
}

// ── Constructors ────────────────────────────────────────────

// NewChunk marshals payload into a chunk of type t. A nil payload leaves
// Payload empty.
func NewChunk(t ChunkType, runID string, payload any) (Chunk, error) {
	c := Chunk{Type: t, RunID: runID}
	if payload == nil {
		return c, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Chunk{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	c.Payload = data
	return c, nil
}

// mustChunk is NewChunk for payload types defined in this package, which
// always marshal.
func mustChunk(t ChunkType, runID string, payload any) Chunk {
	c, err := NewChunk(t, runID, payload)
	if err != nil {
		panic(err)
	}
	return c
}

func TextDelta(runID, text string) Chunk {
	return mustChunk(ChunkTextDelta, runID, TextDeltaPayload{Text: text})
}

func ToolCallStart(runID, callID string, tool toolresults.ToolID) Chunk {
	return mustChunk(ChunkToolCallStart, runID, ToolCallStartPayload{ToolCallID: callID, ToolName: string(tool)})
}

func ToolOutput(runID, callID string, tool toolresults.ToolID, output json.RawMessage) Chunk {
	return mustChunk(ChunkToolOutput, runID, ToolOutputPayload{ToolCallID: callID, ToolName: string(tool), Output: output})
}

// ToolResult wraps a typed result. The result variants always marshal.
func ToolResult(runID, callID string, r toolresults.Result) Chunk {
	data, err := json.Marshal(r)
	if err != nil {
		panic(err)
	}
	return mustChunk(ChunkToolResult, runID, ToolResultPayload{ToolCallID: callID, ToolName: string(r.ToolID()), Result: data})
}

func ToolErrorChunk(runID, callID string, tool toolresults.ToolID, err error) Chunk {
	return mustChunk(ChunkToolError, runID, ToolResultPayload{
		ToolCallID: callID,
		ToolName:   string(tool),
		Result:     mustJSON(ErrorPayload{Message: err.Error()}),
		IsError:    true,
	})
}

func Finish(runID, reason string) Chunk {
	return mustChunk(ChunkFinish, runID, FinishPayload{Reason: reason})
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
