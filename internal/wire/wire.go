// Package wire defines the chunk documents the chat stream endpoint writes to
// the client. The set of kinds is closed: anything the agent produces that is
// not one of these four shapes never reaches the wire.
package wire

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Kind is the discriminant of a wire chunk.
type Kind string

const (
	KindTextDelta     Kind = "text-delta"
	KindToolCallStart Kind = "tool-call-input-streaming-start"
	KindToolOutput    Kind = "tool-output"
	KindToolResult    Kind = "tool-result"
)

// Kinds lists every wire kind in protocol order.
var Kinds = []Kind{KindTextDelta, KindToolCallStart, KindToolOutput, KindToolResult}

// Valid reports whether k is one of the four wire kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindTextDelta, KindToolCallStart, KindToolOutput, KindToolResult:
		return true
	}
	return false
}

// Chunk is one wire document. Which fields are meaningful depends on Type:
//
//	text-delta                       Text
//	tool-call-input-streaming-start  WorkflowID or ToolID
//	tool-output                      WorkflowStepID
//	tool-result                      WorkflowID, or ToolID and RecipeIDs
type Chunk struct {
	Type           Kind     `json:"type"`
	Text           string   `json:"text,omitempty"`
	WorkflowID     string   `json:"workflowId,omitempty"`
	ToolID         string   `json:"toolId,omitempty"`
	WorkflowStepID string   `json:"workflowStepId,omitempty"`
	RecipeIDs      []string `json:"recipeIds,omitempty"`
}

// TextDelta builds an incremental assistant text chunk.
func TextDelta(text string) Chunk {
	return Chunk{Type: KindTextDelta, Text: text}
}

// ToolCallStart builds a tool-call start chunk. Exactly one of workflowID and
// toolID should be set.
func ToolCallStart(workflowID, toolID string) Chunk {
	return Chunk{Type: KindToolCallStart, WorkflowID: workflowID, ToolID: toolID}
}

// ToolOutput builds a workflow progress chunk.
func ToolOutput(stepID string) Chunk {
	return Chunk{Type: KindToolOutput, WorkflowStepID: stepID}
}

// WorkflowResult builds the terminal chunk for a finished workflow.
func WorkflowResult(workflowID string) Chunk {
	return Chunk{Type: KindToolResult, WorkflowID: workflowID}
}

// ToolResult builds the terminal chunk for a finished tool. recipeIDs is
// always serialized, even when empty.
func ToolResult(toolID string, recipeIDs []string) Chunk {
	if recipeIDs == nil {
		recipeIDs = []string{}
	}
	return Chunk{Type: KindToolResult, ToolID: toolID, RecipeIDs: recipeIDs}
}

// MarshalJSON writes exactly the fields each kind carries. A text-delta
// always has "text", and a tool-result for a tool always has "recipeIds".
func (c Chunk) MarshalJSON() ([]byte, error) {
	switch c.Type {
	case KindTextDelta:
		return json.Marshal(struct {
			Type Kind   `json:"type"`
			Text string `json:"text"`
		}{c.Type, c.Text})
	case KindToolCallStart:
		return json.Marshal(struct {
			Type       Kind   `json:"type"`
			WorkflowID string `json:"workflowId,omitempty"`
			ToolID     string `json:"toolId,omitempty"`
		}{c.Type, c.WorkflowID, c.ToolID})
	case KindToolOutput:
		return json.Marshal(struct {
			Type           Kind   `json:"type"`
			WorkflowStepID string `json:"workflowStepId"`
		}{c.Type, c.WorkflowStepID})
	case KindToolResult:
		if c.ToolID != "" {
			ids := c.RecipeIDs
			if ids == nil {
				ids = []string{}
			}
			return json.Marshal(struct {
				Type      Kind     `json:"type"`
				ToolID    string   `json:"toolId"`
				RecipeIDs []string `json:"recipeIds"`
			}{c.Type, c.ToolID, ids})
		}
		return json.Marshal(struct {
			Type       Kind   `json:"type"`
			WorkflowID string `json:"workflowId,omitempty"`
		}{c.Type, c.WorkflowID})
	}
	return nil, fmt.Errorf("wire: cannot encode chunk of kind %q", c.Type)
}

// ── Framing ─────────────────────────────────────────────────

// Framing selects how consecutive chunk documents are delimited on the
// response body.
type Framing string

const (
	// FramingNDJSON writes one document per line.
	FramingNDJSON Framing = "ndjson"
	// FramingConcat writes documents back to back with no delimiter. Kept
	// for clients that still split on "}{".
	FramingConcat Framing = "concat"
)

// ContentType is the response Content-Type for the framing.
func (f Framing) ContentType() string {
	if f == FramingConcat {
		return "text/plain; charset=utf-8"
	}
	return "application/x-ndjson"
}

// ParseFraming resolves the framing requested by a client. An explicit
// query value wins over the Accept header; fallback applies otherwise.
func ParseFraming(accept, query string, fallback Framing) Framing {
	switch strings.ToLower(strings.TrimSpace(query)) {
	case string(FramingNDJSON):
		return FramingNDJSON
	case string(FramingConcat):
		return FramingConcat
	}
	accept = strings.ToLower(accept)
	switch {
	case strings.Contains(accept, "application/x-ndjson"):
		return FramingNDJSON
	case strings.Contains(accept, "text/plain"):
		return FramingConcat
	}
	if fallback == "" {
		return FramingNDJSON
	}
	return fallback
}

// Encode writes c to w using framing f.
func Encode(w io.Writer, f Framing, c Chunk) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if f != FramingConcat {
		data = append(data, '\n')
	}
	_, err = w.Write(data)
	return err
}
