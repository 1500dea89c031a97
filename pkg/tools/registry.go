// Package tools holds the banking tool registry: the operations agents may
// invoke against session context, the credit ledger and the quote service.
// Tool failures are folded into conversational text at this boundary; only
// registration-time misconfiguration surfaces as an error.
package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/agilbank/concierge/internal/observability"
	"github.com/agilbank/concierge/pkg/bank"
	"github.com/agilbank/concierge/pkg/provider"
)

// Handler executes a tool against the session's shared context. The returned
// string is appended to the conversation verbatim.
type Handler func(ctx context.Context, bankCtx *bank.Context, params map[string]interface{}) (string, error)

// Parameter declares one tool parameter.
type Parameter struct {
	Name        string        `json:"name"`
	Type        string        `json:"type"`
	Description string        `json:"description"`
	Required    bool          `json:"required"`
	Enum        []interface{} `json:"enum,omitempty"`
	Minimum     *float64      `json:"minimum,omitempty"`
}

// Definition defines a tool's metadata and handler.
type Definition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	Handler     Handler     `json:"-"`
}

// Registry manages and executes tools.
type Registry struct {
	tools      map[string]*Definition
	schemas    map[string]*gojsonschema.Schema
	rawSchemas map[string]map[string]interface{}
	mu         sync.RWMutex
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	observability.EnsureRegistered()
	return &Registry{
		tools:      make(map[string]*Definition),
		schemas:    make(map[string]*gojsonschema.Schema),
		rawSchemas: make(map[string]map[string]interface{}),
	}
}

// Register adds a tool, compiling its parameter schema.
func (r *Registry) Register(def Definition) error {
	if err := validateDefinition(def); err != nil {
		return err
	}

	rawSchema := buildSchemaMap(def)
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(rawSchema))
	if err != nil {
		return fmt.Errorf("failed to compile schema for tool %s: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool %s already registered", def.Name)
	}
	r.tools[def.Name] = &def
	r.schemas[def.Name] = schema
	r.rawSchemas[def.Name] = rawSchema

	log.Debug().Str("tool", def.Name).Msg("Tool registered")
	return nil
}

// Has reports whether the named tool is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Names returns all registered tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Schemas returns engine-facing schemas for the named tools. Unknown names
// are skipped.
func (r *Registry) Schemas(names []string) []provider.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]provider.ToolSchema, 0, len(names))
	for _, name := range names {
		def, ok := r.tools[name]
		if !ok {
			continue
		}
		schemas = append(schemas, provider.ToolSchema{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: r.rawSchemas[name],
		})
	}
	return schemas
}

// Execute validates parameters and runs the named tool. Invalid parameters
// and unknown tools return an error; the orchestrator converts it to a
// conversational tool result.
func (r *Registry) Execute(ctx context.Context, name string, bankCtx *bank.Context, params map[string]interface{}) (string, error) {
	r.mu.RLock()
	def, ok := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("unknown tool: %s", name)
	}

	if params == nil {
		params = map[string]interface{}{}
	}
	if err := validateParams(schema, params); err != nil {
		observability.RecordToolExecution(name, "invalid", 0)
		return "", fmt.Errorf("invalid parameters for %s: %w", name, err)
	}

	start := time.Now()
	result, err := def.Handler(ctx, bankCtx, params)
	duration := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.RecordToolExecution(name, status, duration)

	log.Debug().
		Str("tool", name).
		Str("status", status).
		Dur("duration", duration).
		Msg("Tool executed")

	return result, err
}

func validateDefinition(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}
	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
		if param.Description == "" {
			return fmt.Errorf("parameter description cannot be empty for %s", param.Name)
		}
	}
	return nil
}

func buildSchemaMap(def Definition) map[string]interface{} {
	properties := make(map[string]interface{})
	required := []string{}

	for _, param := range def.Parameters {
		paramSchema := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if len(param.Enum) > 0 {
			paramSchema["enum"] = param.Enum
		}
		if param.Minimum != nil {
			paramSchema["minimum"] = *param.Minimum
		}
		properties[param.Name] = paramSchema

		if param.Required {
			required = append(required, param.Name)
		}
	}

	schemaMap := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schemaMap["required"] = required
	}
	return schemaMap
}

func validateParams(schema *gojsonschema.Schema, params map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}
	if !result.Valid() {
		errs := []string{}
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("validation errors: %v", errs)
	}
	return nil
}
