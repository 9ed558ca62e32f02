// Package tools defines the actions the shop assistant can take: the
// registry the model sees, argument validation, the safe/sensitive
// policy, and the handlers backed by the store and image search.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Handler executes a tool. It returns a JSON-serialisable result or an
// error, preferably an *Error.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool represents a callable tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Handler     Handler        `json:"-"`
}

// Registry holds available tools and their compiled argument schemas.
type Registry struct {
	tools   map[string]*Tool
	schemas map[string]*jsonschema.Schema
	logger  *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:   make(map[string]*Tool),
		schemas: make(map[string]*jsonschema.Schema),
		logger:  logger,
	}
}

// Register adds a tool, compiling its parameter schema.
func (r *Registry) Register(t *Tool) error {
	if t.Parameters == nil {
		t.Parameters = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	raw, err := json.Marshal(t.Parameters)
	if err != nil {
		return fmt.Errorf("tool %s: marshal schema: %w", t.Name, err)
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://shopkeep.local/tools/%s.schema.json", t.Name)
	if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("tool %s: load schema: %w", t.Name, err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		return fmt.Errorf("tool %s: compile schema: %w", t.Name, err)
	}

	r.tools[t.Name] = t
	r.schemas[t.Name] = schema
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// List returns all tools in the function-calling format, sorted by name.
func (r *Registry) List() []map[string]any {
	result := make([]map[string]any, 0, len(r.tools))
	for _, n := range r.Names() {
		t := r.tools[n]
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return result
}

// Validate checks args against the tool's schema.
func (r *Registry) Validate(name string, args map[string]any) error {
	schema, ok := r.schemas[name]
	if !ok {
		return &ErrToolUnavailable{ToolName: name}
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := schema.Validate(args); err != nil {
		return newError(KindValidation, err, "invalid arguments for %s", name)
	}
	return nil
}

// Call validates args and runs the tool, returning its raw result.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	tool := r.tools[name]
	if tool == nil {
		return nil, &ErrToolUnavailable{ToolName: name}
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := r.Validate(name, args); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := tool.Handler(ctx, args)
	elapsed := time.Since(start)
	if err != nil {
		te := Classify(err)
		level := slog.LevelWarn
		if te.Kind == KindTransient {
			level = slog.LevelError
		}
		r.logger.Log(ctx, level, "tool failed",
			"tool", name,
			"kind", te.Kind,
			"thread_id", ThreadIDFromContext(ctx),
			"error", err,
			"elapsed", elapsed,
		)
		return nil, te
	}

	r.logger.Debug("tool executed", "tool", name, "thread_id", ThreadIDFromContext(ctx), "elapsed", elapsed)
	return result, nil
}

// Execute runs the tool and renders the result, or the failure, as the
// JSON string fed back to the model. The error is returned alongside so
// callers can inspect the kind.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	result, err := r.Call(ctx, name, args)
	if err != nil {
		return ErrorResult(err), err
	}
	b, err := json.Marshal(result)
	if err != nil {
		fe := newError(KindFormat, err, "could not encode %s result", name)
		return ErrorResult(fe), fe
	}
	return string(b), nil
}
