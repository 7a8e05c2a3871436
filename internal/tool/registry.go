package tool

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/quillworks/quill/internal/apperr"
	"github.com/quillworks/quill/internal/logging"
)

// Registry manages tool registration and dispatch.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	deps  *Deps
}

// NewRegistry creates a tool registry bound to its collaborators.
func NewRegistry(deps *Deps) *Registry {
	return &Registry{
		tools: make(map[string]Tool),
		deps:  deps,
	}
}

// Register adds a tool to the registry, replacing any previous tool
// with the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tools.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	return tools
}

// Names returns all tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Dispatch looks a tool up by name and executes it. Tool failures are
// folded into the response envelope so a bad call never crashes the
// session; only the envelope reports the error.
func (r *Registry) Dispatch(ctx context.Context, name string, workspaceID, userID string, inv *InvocationContext, args json.RawMessage) *Response {
	t, found := r.Get(name)
	if !found {
		return &Response{
			Success: false,
			Error:   "unknown tool: " + name,
		}
	}

	resp, err := t.Execute(ctx, r.deps, workspaceID, userID, inv, args)
	if err != nil {
		logging.Debug().
			Str("tool", name).
			Str("kind", string(apperr.KindOf(err))).
			Err(err).
			Msg("tool execution failed")
		return &Response{Success: false, Error: err.Error()}
	}
	return resp
}

// DefaultRegistry creates a registry with all built-in tools.
func DefaultRegistry(deps *Deps) *Registry {
	r := NewRegistry(deps)

	r.Register(&ReadTool{})
	r.Register(&WriteTool{})
	r.Register(&EditTool{})
	r.Register(&DeleteTool{})
	r.Register(&MoveTool{})
	r.Register(&MkdirTool{})
	r.Register(&TouchTool{})
	r.Register(&ListTool{})
	r.Register(&SearchTool{})
	r.Register(&GrepTool{})
	r.Register(&AskTool{})

	logging.Debug().Strs("tools", r.Names()).Msg("tool registry initialized")
	return r
}
