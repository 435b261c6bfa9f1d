// Package toolkit holds the tool catalog: declarative schemas, argument
// validation, permission gating, and the execution envelope.
package toolkit

import (
	"context"
	"encoding/json"
	"fmt"

	jsonschema "github.com/swaggest/jsonschema-go"
)

// Permission is a capability tag gating tool execution.
type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
)

// Tool is the interface every registered tool implements.
type Tool interface {
	// GetName returns the tool's unique name.
	GetName() string

	// GetDescription returns the human-readable description.
	GetDescription() string

	// GetParameters returns the declared JSON schema for the tool's arguments.
	GetParameters() *jsonschema.Schema

	// GetPermissions returns the explicit permission requirement. An empty
	// slice defers to name-based inference (see RequiredPermissions).
	GetPermissions() []Permission

	// Execute runs the tool with raw JSON arguments.
	Execute(ctx context.Context, args json.RawMessage) (any, error)
}

// Handler is the function body of a FuncTool.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// FuncTool is a declaratively-defined tool: name, description, schema, and
// permission set are supplied at construction, never inferred from the
// handler's signature.
type FuncTool struct {
	Name        string
	Description string
	Schema      *jsonschema.Schema
	Permissions []Permission
	Handler     Handler
}

// NewFuncTool builds a FuncTool, rejecting incomplete definitions.
func NewFuncTool(name, description string, schema *jsonschema.Schema, permissions []Permission, handler Handler) (*FuncTool, error) {
	if name == "" {
		return nil, fmt.Errorf("tool name cannot be empty")
	}
	if handler == nil {
		return nil, fmt.Errorf("tool %s has no handler", name)
	}
	if schema == nil {
		schema = ObjectSchema(nil, nil)
	}
	return &FuncTool{
		Name:        name,
		Description: description,
		Schema:      schema,
		Permissions: permissions,
		Handler:     handler,
	}, nil
}

// MustNewFuncTool builds a FuncTool and panics on a bad definition. Intended
// for registration at composition time where definitions are static.
func MustNewFuncTool(name, description string, schema *jsonschema.Schema, permissions []Permission, handler Handler) *FuncTool {
	tool, err := NewFuncTool(name, description, schema, permissions, handler)
	if err != nil {
		panic(fmt.Sprintf("failed to create tool: %v", err))
	}
	return tool
}

func (t *FuncTool) GetName() string                   { return t.Name }
func (t *FuncTool) GetDescription() string            { return t.Description }
func (t *FuncTool) GetParameters() *jsonschema.Schema { return t.Schema }
func (t *FuncTool) GetPermissions() []Permission      { return t.Permissions }

func (t *FuncTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	return t.Handler(ctx, args)
}

var _ Tool = (*FuncTool)(nil)
