package stream

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/recipeassist/recipe-assistant/internal/agent"
	"github.com/recipeassist/recipe-assistant/internal/schema"
	"github.com/recipeassist/recipe-assistant/internal/toolresults"
	"github.com/recipeassist/recipe-assistant/internal/wire"
)

// Drop reasons, used in logs and the chunks_dropped_total metric.
const (
	DropUnhandledKind = "unhandled-kind"
	DropNotUIRelevant = "not-ui-relevant"
	DropNotStepStart  = "not-step-start"
	DropToolFailed    = "tool-failed"
	DropMalformed     = "malformed"
)

// ErrMalformed marks a chunk whose payload could not be decoded. Such chunks
// are skipped.
var ErrMalformed = errors.New("malformed chunk")

// ProtocolError reports a terminal tool result that failed validation. It
// ends the response: a 400 if nothing was written yet, an aborted body
// otherwise.
type ProtocolError struct {
	Tool      toolresults.ToolID
	Forwarded int // chunks already written when the error occurred
	Err       error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("invalid %s tool result: %v", e.Tool, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ── Result validation ───────────────────────────────────────

// ResultValidator checks terminal tool results against strict schemas.
type ResultValidator struct {
	schemas map[toolresults.ToolID]*schema.Schema
}

var completeRecipesSchema = []byte(`{
	"type": "object",
	"required": ["recipes"],
	"properties": {
		"recipes": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["title", "ingredients", "instructions"],
				"properties": {
					"id": {"type": "string"},
					"userId": {"type": "string"},
					"title": {"type": "string", "minLength": 1},
					"ingredients": {"type": "array", "items": {"type": "string"}},
					"instructions": {"type": "array", "items": {"type": "string"}},
					"thumbnailUrl": {"type": "string"}
				}
			}
		}
	}
}`)

var userRecipesSchema = []byte(`{
	"type": "object",
	"required": ["recipes"],
	"properties": {
		"recipes": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "title"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"title": {"type": "string"},
					"isFavorite": {"type": "boolean"}
				}
			}
		}
	}
}`)

// NewResultValidator compiles the schemas of every terminal tool.
func NewResultValidator() *ResultValidator {
	return &ResultValidator{schemas: map[toolresults.ToolID]*schema.Schema{
		toolresults.RunCompleteRecipes: schema.MustCompile(string(toolresults.RunCompleteRecipes), completeRecipesSchema),
		toolresults.GetUserRecipes:     schema.MustCompile(string(toolresults.GetUserRecipes), userRecipesSchema),
	}}
}

// Validate checks raw against the schema for id. Tools without a schema
// always pass.
func (v *ResultValidator) Validate(id toolresults.ToolID, raw json.RawMessage) error {
	if v == nil {
		return nil
	}
	s, ok := v.schemas[id]
	if !ok {
		return nil
	}
	if len(raw) == 0 {
		return errors.New("empty result")
	}
	return s.Validate(raw)
}

// ── Projection ──────────────────────────────────────────────

// Project maps one agent chunk onto the wire. ok is false when the chunk is
// not forwarded. terminal is true when the response must end after out is
// written. A *ProtocolError is fatal; any other error means the chunk was
// malformed and can be skipped.
func Project(c agent.Chunk, v *ResultValidator) (out wire.Chunk, terminal bool, ok bool, err error) {
	out, terminal, reason, err := project(c, v)
	return out, terminal, reason == "" && err == nil, err
}

// project is Project with the drop reason.
func project(c agent.Chunk, v *ResultValidator) (wire.Chunk, bool, string, error) {
	switch c.Type {
	case agent.ChunkTextDelta:
		var p agent.TextDeltaPayload
		if err := c.Decode(&p); err != nil {
			return wire.Chunk{}, false, DropMalformed, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return wire.TextDelta(p.Text), false, "", nil

	case agent.ChunkToolCallStart:
		var p agent.ToolCallStartPayload
		if err := c.Decode(&p); err != nil {
			return wire.Chunk{}, false, DropMalformed, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		id := toolresults.ToolID(p.ToolName)
		if !id.UIRelevant() {
			return wire.Chunk{}, false, DropNotUIRelevant, nil
		}
		if id.IsWorkflow() {
			return wire.ToolCallStart(string(id), ""), false, "", nil
		}
		return wire.ToolCallStart("", string(id)), false, "", nil

	case agent.ChunkToolOutput:
		var p agent.ToolOutputPayload
		if err := c.Decode(&p); err != nil {
			return wire.Chunk{}, false, DropMalformed, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		var ev agent.WorkflowEvent
		if len(p.Output) == 0 || json.Unmarshal(p.Output, &ev) != nil {
			return wire.Chunk{}, false, DropNotStepStart, nil
		}
		if ev.Type != agent.WorkflowStepStart || ev.Payload.ID == "" {
			return wire.Chunk{}, false, DropNotStepStart, nil
		}
		return wire.ToolOutput(ev.Payload.ID), false, "", nil

	case agent.ChunkToolResult:
		var p agent.ToolResultPayload
		if err := c.Decode(&p); err != nil {
			return wire.Chunk{}, false, DropMalformed, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if p.IsError {
			return wire.Chunk{}, false, DropToolFailed, nil
		}
		return projectResult(toolresults.ToolID(p.ToolName), p.Result, v)
	}
	return wire.Chunk{}, false, DropUnhandledKind, nil
}

func projectResult(id toolresults.ToolID, raw json.RawMessage, v *ResultValidator) (wire.Chunk, bool, string, error) {
	if !id.UIRelevant() {
		return wire.Chunk{}, false, DropNotUIRelevant, nil
	}
	if err := v.Validate(id, raw); err != nil {
		return wire.Chunk{}, false, "", &ProtocolError{Tool: id, Err: err}
	}

	switch id {
	case toolresults.RunCompleteRecipes:
		return wire.WorkflowResult(string(id)), true, "", nil
	case toolresults.GetUserRecipes:
		res, err := toolresults.Decode(id, raw)
		if err != nil {
			return wire.Chunk{}, false, "", &ProtocolError{Tool: id, Err: err}
		}
		return wire.ToolResult(string(id), res.(toolresults.UserRecipesResult).RecipeIDs()), true, "", nil
	}
	return wire.Chunk{}, false, DropNotUIRelevant, nil
}
