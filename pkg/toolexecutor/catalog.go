package toolexecutor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// ToolHandler is the single handler shape shared by every tool
type ToolHandler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// ArgsValidator runs after schema validation. A non-nil error blocks the call.
type ArgsValidator func(args map[string]interface{}) error

// ToolParameter defines a parameter for a tool
type ToolParameter struct {
	Name        string        `json:"name"`
	Type        string        `json:"type"`
	Description string        `json:"description"`
	Required    bool          `json:"required"`
	Default     interface{}   `json:"default,omitempty"`
	Enum        []interface{} `json:"enum,omitempty"`
}

// ToolSpec describes a tool and how to run it
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
	Handler     ToolHandler     `json:"-"`
	Timeout     time.Duration   `json:"timeout"`
	Validator   ArgsValidator   `json:"-"`

	schema *gojsonschema.Schema
}

// Schema returns the JSON schema object for the tool's arguments
func (s ToolSpec) Schema() map[string]interface{} {
	properties := make(map[string]interface{}, len(s.Parameters))
	required := []string{}

	for _, param := range s.Parameters {
		paramSchema := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}
		if len(param.Enum) > 0 {
			paramSchema["enum"] = param.Enum
		}
		properties[param.Name] = paramSchema

		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// RequiredParameters lists the names of required parameters
func (s ToolSpec) RequiredParameters() []string {
	var names []string
	for _, param := range s.Parameters {
		if param.Required {
			names = append(names, param.Name)
		}
	}
	return names
}

var validParamTypes = map[string]bool{
	"string": true, "number": true, "boolean": true,
	"object": true, "array": true, "integer": true,
}

func validateSpec(spec ToolSpec) error {
	if strings.TrimSpace(spec.Name) == "" {
		return fmt.Errorf("%w: tool name cannot be empty", ErrInvalidSpec)
	}
	if spec.Description == "" {
		return fmt.Errorf("%w: tool description cannot be empty for %s", ErrInvalidSpec, spec.Name)
	}
	if spec.Handler == nil {
		return fmt.Errorf("%w: tool handler cannot be nil for %s", ErrInvalidSpec, spec.Name)
	}
	if spec.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout for %s", ErrInvalidSpec, spec.Name)
	}

	seen := make(map[string]bool, len(spec.Parameters))
	for _, param := range spec.Parameters {
		if param.Name == "" {
			return fmt.Errorf("%w: parameter name cannot be empty for %s", ErrInvalidSpec, spec.Name)
		}
		if seen[param.Name] {
			return fmt.Errorf("%w: duplicate parameter %s for %s", ErrInvalidSpec, param.Name, spec.Name)
		}
		seen[param.Name] = true
		if !validParamTypes[param.Type] {
			return fmt.Errorf("%w: invalid parameter type %s for %s", ErrInvalidSpec, param.Type, param.Name)
		}
	}
	return nil
}

func compileSchema(spec ToolSpec) (*gojsonschema.Schema, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(spec.Schema()))
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema for %s: %w", spec.Name, err)
	}
	return schema, nil
}

// Catalog is the set of registered tools
type Catalog struct {
	mu    sync.RWMutex
	tools map[string]ToolSpec
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{tools: make(map[string]ToolSpec)}
}

// Register validates a spec, compiles its schema and adds it
func (c *Catalog) Register(spec ToolSpec) error {
	if err := validateSpec(spec); err != nil {
		return err
	}

	schema, err := compileSchema(spec)
	if err != nil {
		return err
	}
	spec.schema = schema
	spec.Parameters = append([]ToolParameter(nil), spec.Parameters...)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tools[spec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, spec.Name)
	}
	c.tools[spec.Name] = spec
	return nil
}

// Get looks up a tool by name
func (c *Catalog) Get(name string) (ToolSpec, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	spec, ok := c.tools[name]
	return spec, ok
}

// List returns every tool sorted by name
func (c *Catalog) List() []ToolSpec {
	c.mu.RLock()
	defer c.mu.RUnlock()

	specs := make([]ToolSpec, 0, len(c.tools))
	for _, spec := range c.tools {
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Names returns the sorted tool names
func (c *Catalog) Names() []string {
	specs := c.List()
	names := make([]string, len(specs))
	for i, spec := range specs {
		names[i] = spec.Name
	}
	return names
}

// Len returns the number of registered tools
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tools)
}
