package agent

import (
	"sync"

	"github.com/recipeassist/recipe-assistant/internal/toolresults"
	"github.com/rs/zerolog/log"
)

// Registry holds the tools a runtime may offer the model, in registration
// order.
type Registry struct {
	mu    sync.RWMutex
	tools map[toolresults.ToolID]Tool
	order []toolresults.ToolID
}

// NewRegistry creates a registry holding tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[toolresults.ToolID]Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds t, replacing any tool registered under the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Name()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
	log.Debug().Str("tool", string(name)).Msg("Tool registered")
}

// Get returns the tool registered under name.
func (r *Registry) Get(name toolresults.ToolID) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns the registered tools in registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}
