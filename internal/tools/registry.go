// Package tools defines the tools available to the agent and the
// registry that dispatches provider-requested invocations to them.
package tools

import (
	"context"
	"fmt"
	"sort"
)

// Tool represents a callable tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Handler     func(ctx context.Context, args map[string]any) (string, error) `json:"-"`
}

// Result is the uniform outcome of one dispatch. Exactly one of Data
// or Err is meaningful depending on OK.
type Result struct {
	OK   bool
	Data string
	Err  string
}

// Registry maps tool names to handlers. It is an explicit value
// constructed once at startup and passed by reference into the agent
// loop — never ambient global state.
type Registry struct {
	tools map[string]*Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool to the registry, replacing any previous tool
// with the same name.
func (r *Registry) Register(t *Tool) {
	r.tools[t.Name] = t
}

// Get retrieves a tool by name, or nil.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Schemas returns all tool definitions for the LLM, sorted by name so
// the provider payload is stable across runs.
func (r *Registry) Schemas() []map[string]any {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	var result []map[string]any
	for _, name := range names {
		t := r.tools[name]
		result = append(result, map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"parameters":  t.Parameters,
		})
	}
	return result
}

// Dispatch runs a tool by name. Unknown tool names and handler errors
// yield a failed Result rather than an error return, so the loop can
// feed every outcome back to the model uniformly.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) Result {
	tool := r.tools[name]
	if tool == nil {
		return Result{Err: fmt.Sprintf("unknown tool: %s", name)}
	}

	data, err := tool.Handler(ctx, args)
	if err != nil {
		return Result{Err: err.Error()}
	}
	return Result{OK: true, Data: data}
}
