package anthropic

import (
	"encoding/json"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/recipeassist/recipe-assistant/internal/agent"
	"github.com/recipeassist/recipe-assistant/internal/toolresults"
)

type toolCall struct {
	id    string
	name  string
	input json.RawMessage
}

// stepTurn is what one streamed model step produced.
type stepTurn struct {
	text       strings.Builder
	calls      []toolCall
	stopReason string
}

// blocks rebuilds the assistant message for the step so the next step sees
// its own tool_use blocks.
func (t *stepTurn) blocks() []sdk.ContentBlockParamUnion {
	out := make([]sdk.ContentBlockParamUnion, 0, len(t.calls)+1)
	if s := t.text.String(); s != "" {
		out = append(out, sdk.NewTextBlock(s))
	}
	for _, c := range t.calls {
		out = append(out, sdk.NewToolUseBlock(c.id, c.input, c.name))
	}
	return out
}

// stepProcessor converts Messages stream events into agent chunks.
type stepProcessor struct {
	runID string
	emit  agent.EmitFunc
	turn  *stepTurn
	tools map[int]*toolBuffer
}

func newStepProcessor(runID string, emit agent.EmitFunc, turn *stepTurn) *stepProcessor {
	return &stepProcessor{
		runID: runID,
		emit:  emit,
		turn:  turn,
		tools: make(map[int]*toolBuffer),
	}
}

func (p *stepProcessor) Handle(event sdk.MessageStreamEventUnion) error {
	switch ev := event.AsAny().(type) {
	case sdk.ContentBlockStartEvent:
		toolUse, ok := ev.ContentBlock.AsAny().(sdk.ToolUseBlock)
		if !ok {
			return nil
		}
		if toolUse.ID == "" || toolUse.Name == "" {
			return fmt.Errorf("anthropic stream: tool use block missing id or name")
		}
		p.tools[int(ev.Index)] = &toolBuffer{id: toolUse.ID, name: toolUse.Name}
		return p.emit(agent.ToolCallStart(p.runID, toolUse.ID, toolresults.ToolID(toolUse.Name)))

	case sdk.ContentBlockDeltaEvent:
		switch delta := ev.Delta.AsAny().(type) {
		case sdk.TextDelta:
			if delta.Text == "" {
				return nil
			}
			p.turn.text.WriteString(delta.Text)
			return p.emit(agent.TextDelta(p.runID, delta.Text))
		case sdk.InputJSONDelta:
			tb := p.tools[int(ev.Index)]
			if tb == nil || delta.PartialJSON == "" {
				return nil
			}
			tb.fragments = append(tb.fragments, delta.PartialJSON)
			c, err := agent.NewChunk(agent.ChunkToolCallDelta, p.runID, agent.ToolCallDeltaPayload{
				ToolCallID: tb.id,
				ToolName:   tb.name,
				ArgsDelta:  delta.PartialJSON,
			})
			if err != nil {
				return err
			}
			return p.emit(c)
		case sdk.ThinkingDelta:
			if delta.Thinking == "" {
				return nil
			}
			c, err := agent.NewChunk(agent.ChunkReasoningDelta, p.runID, agent.TextDeltaPayload{Text: delta.Thinking})
			if err != nil {
				return err
			}
			return p.emit(c)
		}
		return nil

	case sdk.ContentBlockStopEvent:
		idx := int(ev.Index)
		tb := p.tools[idx]
		if tb == nil {
			return nil
		}
		delete(p.tools, idx)
		call := toolCall{id: tb.id, name: tb.name, input: tb.finalInput()}
		p.turn.calls = append(p.turn.calls, call)
		c, err := agent.NewChunk(agent.ChunkToolCall, p.runID, agent.ToolCallPayload{
			ToolCallID: call.id,
			ToolName:   call.name,
			Args:       call.input,
		})
		if err != nil {
			return err
		}
		return p.emit(c)

	case sdk.MessageDeltaEvent:
		p.turn.stopReason = string(ev.Delta.StopReason)
		return nil
	}
	return nil
}

type toolBuffer struct {
	id        string
	name      string
	fragments []string
}

func (tb *toolBuffer) finalInput() json.RawMessage {
	joined := strings.TrimSpace(strings.Join(tb.fragments, ""))
	if joined == "" {
		return json.RawMessage("{}")
	}
	return json.RawMessage(joined)
}
