package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/luohy15/y-agent/internal/provider"
)

// Tool is one callable capability exposed to the model.
type Tool struct {
	Name        string
	Description string
	SchemaJSON  string
	Fn          func(ctx context.Context, args map[string]any) (string, error)
}

// ValidateArgs checks the arguments against the tool's JSON schema.
func (t Tool) ValidateArgs(args map[string]any) error {
	schemaLoader := gojsonschema.NewStringLoader(t.SchemaJSON)
	docLoader := gojsonschema.NewGoLoader(args)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("schema validation error for %s: %w", t.Name, err)
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("invalid arguments for %s: %s", t.Name, strings.Join(msgs, "; "))
	}
	return nil
}

// Spec converts the tool definition into the providers' wire shape.
func (t Tool) Spec() provider.ToolSpec {
	var schema map[string]any
	if err := json.Unmarshal([]byte(t.SchemaJSON), &schema); err != nil {
		schema = map[string]any{"type": "object"}
	}
	return provider.ToolSpec{Name: t.Name, Description: t.Description, Schema: schema}
}

// Registry holds the tools available to one agent run.
type Registry map[string]Tool

// Register adds a tool, replacing any previous one with the same name.
func (r Registry) Register(t Tool) {
	r[t.Name] = t
}

// Has reports whether a tool with the given name is registered.
func (r Registry) Has(name string) bool {
	_, ok := r[name]
	return ok
}

// Specs lists all tool specs in registration-independent sorted order.
func (r Registry) Specs() []provider.ToolSpec {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	specs := make([]provider.ToolSpec, 0, len(names))
	for _, name := range names {
		specs = append(specs, r[name].Spec())
	}
	return specs
}

// Execute runs a tool and folds every failure into the result string;
// the transcript always gets a tool result, never a dropped call.
func (r Registry) Execute(ctx context.Context, name string, args map[string]any) string {
	t, ok := r[name]
	if !ok {
		return "Unknown tool: " + name
	}
	if err := t.ValidateArgs(args); err != nil {
		return "ERROR: " + err.Error()
	}
	out, err := t.Fn(ctx, args)
	if err != nil {
		return "ERROR: " + err.Error()
	}
	return out
}
