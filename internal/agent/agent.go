// Package agent defines the contract between the chat service and the LLM
// agent runtime: the wide chunk union a runtime streams, the per-call
// context handed to tools, and the tool registry.
//
// A runtime turns one user message into either a finished Result (Generate)
// or a Stream of chunks. Tools never read process-wide state; everything
// they need about the caller arrives in CallContext.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/recipeassist/recipe-assistant/internal/toolresults"
)

// ── Call context ────────────────────────────────────────────

// CallContext identifies the caller of one agent invocation. It is passed
// into the runtime and forwarded unchanged to every tool executor.
type CallContext struct {
	UserID   string
	ThreadID string

	// PersistGenerated lets workflows save what they generate. The
	// non-streaming chat path leaves it false and saves the recipes itself.
	PersistGenerated bool
}

// ── Messages ────────────────────────────────────────────────

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one textual conversation turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is one agent invocation.
type Request struct {
	Messages []Message
	Call     CallContext
}

// Result is the outcome of a finished invocation.
type Result struct {
	Text        string
	ToolResults []toolresults.Envelope
}

// ── Runtime ─────────────────────────────────────────────────

// Runtime runs the agent.
type Runtime interface {
	// Generate runs the agent to completion.
	Generate(ctx context.Context, req Request) (*Result, error)
	// Stream runs the agent and returns its chunks as they are produced.
	// Cancelling ctx or closing the stream stops the run.
	Stream(ctx context.Context, req Request) (Stream, error)
}

// Stream is a pull-based sequence of chunks. Recv returns io.EOF after the
// last chunk.
type Stream interface {
	Recv() (Chunk, error)
	Close() error
}

// ── Tools ───────────────────────────────────────────────────

// OutputFunc reports an intermediate tool output, such as a WorkflowEvent.
type OutputFunc func(output any) error

// Tool is a capability the agent can invoke.
type Tool interface {
	Name() toolresults.ToolID
	Description() string
	// InputSchema is the JSON schema of the tool's input object.
	InputSchema() map[string]any
	Execute(ctx context.Context, call CallContext, input json.RawMessage, emit OutputFunc) (toolresults.Result, error)
}

// ErrUnknownTool is wrapped by ToolError when the model calls a tool that is
// not registered.
var ErrUnknownTool = errors.New("unknown tool")

// ToolError reports a failed tool execution. It fails the whole turn.
type ToolError struct {
	Tool toolresults.ToolID
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// ── Collect ─────────────────────────────────────────────────

// Collect drains s into a Result: text deltas are concatenated and each
// successful tool result becomes an envelope. A tool error or error chunk
// ends collection with an error. s is always closed.
func Collect(s Stream) (*Result, error) {
	defer s.Close()

	res := &Result{}
	var text []byte
	for {
		c, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch c.Type {
		case ChunkTextDelta:
			var p TextDeltaPayload
			if err := c.Decode(&p); err != nil {
				return nil, err
			}
			text = append(text, p.Text...)
		case ChunkToolResult:
			var p ToolResultPayload
			if err := c.Decode(&p); err != nil {
				return nil, err
			}
			id := toolresults.ToolID(p.ToolName)
			r, err := toolresults.Decode(id, p.Result)
			if err != nil {
				return nil, err
			}
			res.ToolResults = append(res.ToolResults, toolresults.NewEnvelope(r))
		case ChunkToolError:
			var p ToolResultPayload
			if err := c.Decode(&p); err != nil {
				return nil, err
			}
			var e ErrorPayload
			_ = json.Unmarshal(p.Result, &e)
			return nil, &ToolError{Tool: toolresults.ToolID(p.ToolName), Err: errors.New(e.Message)}
		case ChunkError:
			var e ErrorPayload
			_ = c.Decode(&e)
			return nil, fmt.Errorf("agent: %s", e.Message)
		}
	}
	res.Text = string(text)
	return res, nil
}
