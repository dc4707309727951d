// Package schemas provides JSON Schema definitions for tool calling.
package schemas

import "encoding/json"

// Schema defines a tool's parameters as a JSON schema object.
type Schema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// SchemaBuilder provides a fluent interface for building tool schemas.
type SchemaBuilder struct {
	schema *Schema
}

// NewSchema creates a new schema builder with the given name and description.
func NewSchema(name, description string) *SchemaBuilder {
	return &SchemaBuilder{
		schema: &Schema{
			Name:        name,
			Description: description,
			Parameters: map[string]interface{}{
				"type":                 "object",
				"properties":           make(map[string]interface{}),
				"required":             make([]string, 0),
				"additionalProperties": false,
			},
		},
	}
}

// AddParam adds a parameter to the schema.
func (b *SchemaBuilder) AddParam(name, paramType, description string, required bool) *SchemaBuilder {
	return b.AddParamWithEnum(name, paramType, description, nil, required)
}

// AddParamWithEnum adds a parameter with an enum constraint.
func (b *SchemaBuilder) AddParamWithEnum(name, paramType, description string, enum []string, required bool) *SchemaBuilder {
	props := b.schema.Parameters["properties"].(map[string]interface{})
	paramDef := map[string]interface{}{
		"type":        paramType,
		"description": description,
	}
	if len(enum) > 0 {
		paramDef["enum"] = enum
	}
	props[name] = paramDef
	if required {
		req := b.schema.Parameters["required"].([]string)
		b.schema.Parameters["required"] = append(req, name)
	}
	return b
}

// Build returns the constructed schema.
func (b *SchemaBuilder) Build() *Schema {
	return b.schema
}

// Required returns the names of required parameters.
func (s *Schema) Required() []string {
	req, _ := s.Parameters["required"].([]string)
	return req
}

// Properties returns the parameter definitions.
func (s *Schema) Properties() map[string]interface{} {
	props, _ := s.Parameters["properties"].(map[string]interface{})
	return props
}

// Registry holds tool schemas in registration order.
type Registry struct {
	order   []string
	schemas map[string]*Schema
}

// NewRegistry creates a new empty schema registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]*Schema)}
}

// Register adds a schema to the registry. Re-registering a name replaces it in place.
func (r *Registry) Register(schema *Schema) {
	if _, exists := r.schemas[schema.Name]; !exists {
		r.order = append(r.order, schema.Name)
	}
	r.schemas[schema.Name] = schema
}

// Get retrieves a schema by name.
func (r *Registry) Get(name string) (*Schema, bool) {
	s, ok := r.schemas[name]
	return s, ok
}

// List returns all registered schema names in registration order.
func (r *Registry) List() []string {
	return append([]string(nil), r.order...)
}

// Subset returns a registry holding only the named schemas, in the order given.
// Unknown names are skipped.
func (r *Registry) Subset(names []string) *Registry {
	out := NewRegistry()
	for _, n := range names {
		if s, ok := r.schemas[n]; ok {
			out.Register(s)
		}
	}
	return out
}

// ToOpenAIFormat converts schemas to OpenAI function calling format.
func (r *Registry) ToOpenAIFormat() []map[string]interface{} {
	result := make([]map[string]interface{}, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, map[string]interface{}{
			"type":     "function",
			"function": r.schemas[name],
		})
	}
	return result
}

// ToJSON returns the registry as JSON for debugging.
func (r *Registry) ToJSON() ([]byte, error) {
	list := make([]*Schema, 0, len(r.order))
	for _, name := range r.order {
		list = append(list, r.schemas[name])
	}
	return json.MarshalIndent(list, "", "  ")
}
