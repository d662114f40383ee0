// Package tools implements the sales tool surface: the registry that exposes
// tool definitions to the model and validates arguments against their JSON
// schemas, the tool handlers that call the CRM and the LLM, default argument
// synthesis for system-requested tools, and dependency injection of prior
// step results into tool arguments.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/salesflow/agent/llm"
)

type (
	// Handler executes a tool. Handlers return a result document; execution
	// errors surface as errors, not error-shaped documents.
	Handler func(ctx context.Context, args map[string]any) (map[string]any, error)

	// Tool couples a definition with its handler. Schema is the JSON Schema
	// of the argument object.
	Tool struct {
		Name        string
		Description string
		Schema      json.RawMessage
		Handler     Handler
	}

	// Registry holds the registered tools with compiled schemas.
	Registry struct {
		tools   map[string]*Tool
		schemas map[string]*jsonschema.Schema
	}
)

var (
	// ErrUnknownTool reports a tool name with no registration.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrInvalidArguments reports arguments rejected by the tool schema.
	ErrInvalidArguments = errors.New("invalid arguments")
)

var tracer = otel.Tracer("salesflow/tools")

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]*Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool, compiling its schema. Registering the same name
// twice is an error.
func (r *Registry) Register(t *Tool) error {
	if t == nil || t.Name == "" {
		return errors.New("tool name is required")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %q has no handler", t.Name)
	}
	if _, dup := r.tools[t.Name]; dup {
		return fmt.Errorf("tool %q already registered", t.Name)
	}
	if len(t.Schema) > 0 {
		var doc any
		if err := json.Unmarshal(t.Schema, &doc); err != nil {
			return fmt.Errorf("unmarshal schema for %q: %w", t.Name, err)
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(t.Name+".json", doc); err != nil {
			return fmt.Errorf("add schema resource for %q: %w", t.Name, err)
		}
		schema, err := c.Compile(t.Name + ".json")
		if err != nil {
			return fmt.Errorf("compile schema for %q: %w", t.Name, err)
		}
		r.schemas[t.Name] = schema
	}
	r.tools[t.Name] = t
	return nil
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the tool definitions for a completion request, in
// name order.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.tools))
	for _, name := range r.Names() {
		t := r.tools[name]
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Schema:      t.Schema,
		})
	}
	return defs
}

// ValidateArgs checks args against the tool's schema. Tools without a
// schema accept anything.
func (r *Registry) ValidateArgs(name string, args map[string]any) error {
	if _, ok := r.tools[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	schema, ok := r.schemas[name]
	if !ok {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	// The validator rejects typed maps; round-trip to plain JSON values.
	var doc any = args
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidArguments, name, err)
	}
	return nil
}

// Execute validates args and runs the tool handler inside a trace span.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if err := r.ValidateArgs(name, args); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "tool."+name)
	span.SetAttributes(attribute.Int("tool.args", len(args)))
	defer span.End()
	return t.Handler(ctx, args)
}
