package framework

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sahilm/fuzzy"
)

// Tool defines a capability the agent can invoke. The metadata doubles as a
// schema that the model reasons about when deciding which tool to call.
// Execute reports validation and lookup failures as *ToolError so the loop
// can hand the text back to the model.
type Tool interface {
	Name() string
	Description() string
	Parameters() []ToolParameter
	OutputSchema() string
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// ToolParameter describes an argument the tool accepts.
type ToolParameter struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

// ToolRegistry maintains tools keyed by lower-cased name. Registering a name
// that already exists (in any case) replaces the earlier tool in place, so the
// last registration wins while prompt order stays stable.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewToolRegistry builds a registry instance.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool to the registry.
func (r *ToolRegistry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("register: nil tool")
	}
	key := normalizeToolName(tool.Name())
	if key == "" {
		return fmt.Errorf("register: tool name is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[key]; !exists {
		r.order = append(r.order, key)
	}
	r.tools[key] = tool
	return nil
}

// Get fetches a tool by name, ignoring case.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[normalizeToolName(name)]
	return tool, ok
}

// All returns registered tools in registration order.
func (r *ToolRegistry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]Tool, 0, len(r.order))
	for _, key := range r.order {
		res = append(res, r.tools[key])
	}
	return res
}

// Names returns the registered tool names as declared by the tools.
func (r *ToolRegistry) Names() []string {
	tools := r.All()
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name())
	}
	return names
}

// Dispatch runs the tool matching name. An unknown name yields an error
// wrapping ErrToolNotFound, with the closest registered name when one exists.
func (r *ToolRegistry) Dispatch(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	tool, ok := r.Get(name)
	if !ok {
		if suggestion := r.suggest(name); suggestion != "" {
			return "", fmt.Errorf("%w: %q, did you mean %q?", ErrToolNotFound, name, suggestion)
		}
		return "", fmt.Errorf("%w: %q", ErrToolNotFound, name)
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return tool.Execute(ctx, args)
}

func (r *ToolRegistry) suggest(name string) string {
	names := r.Names()
	if len(names) == 0 || strings.TrimSpace(name) == "" {
		return ""
	}
	matches := fuzzy.Find(strings.ToLower(name), lowerAll(names))
	if len(matches) == 0 {
		return ""
	}
	return names[matches[0].Index]
}

func normalizeToolName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
