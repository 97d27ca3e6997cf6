package chatclient

import (
	"fmt"

	"github.com/recipeassist/recipe-assistant/internal/toolresults"
	"github.com/recipeassist/recipe-assistant/internal/wire"
)

// FinishReason tells why a message stopped growing.
type FinishReason string

const (
	FinishStop  FinishReason = "stop"
	FinishError FinishReason = "error"
)

// ToolCallStatus is the tool stage the UI shows for a message. Each tool
// chunk replaces it wholesale.
type ToolCallStatus struct {
	Kind           wire.Kind `json:"kind"`
	WorkflowID     string    `json:"workflowId,omitempty"`
	ToolID         string    `json:"toolId,omitempty"`
	WorkflowStepID string    `json:"workflowStepId,omitempty"`
}

// Message is one assistant turn being assembled from the stream.
type Message struct {
	ID             string          `json:"id"`
	Role           string          `json:"role"`
	Content        string          `json:"content"`
	ToolCallStatus *ToolCallStatus `json:"toolCallStatus,omitempty"`
	RecipeIDs      []string        `json:"recipeIds,omitempty"`
	FinishReason   FinishReason    `json:"finishReason,omitempty"`
}

// Finished reports whether the message was finalized.
func (m *Message) Finished() bool { return m.FinishReason != "" }

// Apply folds one chunk into the message. Text deltas append to Content.
// Tool chunks replace the status, the content and the recipe ids.
//
// c must be one of the wire kinds; Decoders drop everything else, so any
// other kind here is a bug and panics.
func (m *Message) Apply(c wire.Chunk) {
	switch c.Type {
	case wire.KindTextDelta:
		m.Content += c.Text
	case wire.KindToolCallStart, wire.KindToolOutput, wire.KindToolResult:
		m.ToolCallStatus = &ToolCallStatus{
			Kind:           c.Type,
			WorkflowID:     c.WorkflowID,
			ToolID:         c.ToolID,
			WorkflowStepID: c.WorkflowStepID,
		}
		m.Content = ToolStageText(c)
		m.RecipeIDs = append([]string(nil), c.RecipeIDs...)
		if len(m.RecipeIDs) == 0 {
			m.RecipeIDs = nil
		}
	default:
		panic(fmt.Sprintf("chatclient: unreachable chunk kind %q", c.Type))
	}
}

// clone returns a copy that shares nothing with m.
func (m *Message) clone() Message {
	cp := *m
	if m.ToolCallStatus != nil {
		st := *m.ToolCallStatus
		cp.ToolCallStatus = &st
	}
	cp.RecipeIDs = append([]string(nil), m.RecipeIDs...)
	if len(cp.RecipeIDs) == 0 {
		cp.RecipeIDs = nil
	}
	return cp
}

var stepText = map[string]string{
	"generate-recipes":    "Writing your recipes...",
	"generate-thumbnails": "Taking pictures of the dishes...",
	"save-recipes":        "Saving the recipes to your collection...",
}

// ToolStageText is the text shown in place of the message while a tool
// runs.
func ToolStageText(c wire.Chunk) string {
	switch c.Type {
	case wire.KindToolCallStart:
		if toolresults.ToolID(c.WorkflowID) == toolresults.RunCompleteRecipes {
			return "Creating your recipes..."
		}
		if toolresults.ToolID(c.ToolID) == toolresults.GetUserRecipes {
			return "Looking through your recipes..."
		}
		return "Working on it..."
	case wire.KindToolOutput:
		if text, ok := stepText[c.WorkflowStepID]; ok {
			return text
		}
		return "Working on it..."
	case wire.KindToolResult:
		if c.WorkflowID != "" {
			return "Your new recipes are ready."
		}
		switch n := len(c.RecipeIDs); n {
		case 0:
			return "I couldn't find any matching recipes."
		case 1:
			return "Here is the recipe I found."
		default:
			return fmt.Sprintf("Here are the %d recipes I found.", n)
		}
	}
	return ""
}
