// Package memory keeps per-thread conversation history so the agent sees
// earlier turns of the same chat thread.
package memory

import (
	"context"

	"github.com/recipeassist/recipe-assistant/internal/agent"
)

// DefaultMaxMessages caps how many messages a thread keeps.
const DefaultMaxMessages = 40

// Store loads and appends thread history. Implementations keep at most
// their configured number of most recent messages per thread.
type Store interface {
	// Load returns the thread's messages, oldest first. An unknown thread
	// has no messages.
	Load(ctx context.Context, threadID string) ([]agent.Message, error)
	// Append adds messages to the end of the thread.
	Append(ctx context.Context, threadID string, msgs ...agent.Message) error
}

// trim keeps the last max messages.
func trim(msgs []agent.Message, max int) []agent.Message {
	if max > 0 && len(msgs) > max {
		return msgs[len(msgs)-max:]
	}
	return msgs
}
