package toolkit

import (
	"fmt"
	"sort"
	"sync"
)

// ErrDuplicateTool is returned when a name is registered twice.
type ErrDuplicateTool struct {
	Name string
}

func (e *ErrDuplicateTool) Error() string {
	return fmt.Sprintf("tool %s is already registered", e.Name)
}

// ParamSpec describes one declared parameter of a tool.
type ParamSpec struct {
	Type        string   `json:"type"`
	Required    bool     `json:"required"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// ToolSchema is the caller-facing description of a registered tool.
type ToolSchema struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Parameters  map[string]ParamSpec `json:"parameters"`
	Permissions []Permission         `json:"permissions"`
}

// Registry holds the catalog of callable tools. It is read-mostly after
// startup; registration during live traffic is safe.
type Registry struct {
	mu         sync.RWMutex
	tools      map[string]Tool
	middleware []Middleware
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// RegisterTool adds a tool to the catalog. Duplicate names are an error.
func (r *Registry) RegisterTool(tool Tool) error {
	if tool.GetName() == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.GetName()]; exists {
		return &ErrDuplicateTool{Name: tool.GetName()}
	}
	r.tools[tool.GetName()] = tool
	return nil
}

// UnregisterTool removes a tool, reporting whether anything was removed.
func (r *Registry) UnregisterTool(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; !exists {
		return false
	}
	delete(r.tools, name)
	return true
}

// HasTool checks if a tool is available.
func (r *Registry) HasTool(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.tools[name]
	return exists
}

// GetTool returns a specific tool by name.
func (r *Registry) GetTool(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, exists := r.tools[name]
	return tool, exists
}

// Clear drops all registrations. Used for test isolation and provider
// reconfiguration.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools = make(map[string]Tool)
}

// AvailableTools returns the sorted names of every registered tool.
func (r *Registry) AvailableTools() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tools returns the registered tools in name order.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		out = append(out, tool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GetName() < out[j].GetName() })
	return out
}

// RegisterMiddleware appends middleware applied to all tool executions, in
// registration order (first registered = outermost layer).
func (r *Registry) RegisterMiddleware(middleware Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, middleware)
}

// GetToolSchema derives the caller-facing schema for a tool, including the
// effective permission requirement. Returns nil when the tool is unknown.
func (r *Registry) GetToolSchema(name string) *ToolSchema {
	tool, exists := r.GetTool(name)
	if !exists {
		return nil
	}
	return schemaFor(tool)
}

// GetToolInfo returns schemas for every registered tool.
func (r *Registry) GetToolInfo() []*ToolSchema {
	tools := r.Tools()
	out := make([]*ToolSchema, 0, len(tools))
	for _, tool := range tools {
		out = append(out, schemaFor(tool))
	}
	return out
}

func schemaFor(tool Tool) *ToolSchema {
	ts := &ToolSchema{
		Name:        tool.GetName(),
		Description: tool.GetDescription(),
		Parameters:  map[string]ParamSpec{},
		Permissions: RequiredPermissions(tool),
	}

	schema := tool.GetParameters()
	if schema == nil {
		return ts
	}
	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}
	for name, prop := range schema.Properties {
		spec := ParamSpec{Required: required[name]}
		if prop.TypeObject != nil {
			spec.Type = simpleTypeOf(prop.TypeObject)
			if prop.TypeObject.Description != nil {
				spec.Description = *prop.TypeObject.Description
			}
			for _, v := range prop.TypeObject.Enum {
				if s, ok := v.(string); ok {
					spec.Enum = append(spec.Enum, s)
				}
			}
		}
		ts.Parameters[name] = spec
	}
	return ts
}
