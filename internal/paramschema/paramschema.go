// Package paramschema validates a component's resolved action params
// against its registered JSON Schema (model.ComponentDefinition's
// InputSchema/ParameterSchema/OutputSchema, §4.1), shared by the Workflow
// Compiler (the static subset of params known at compile time) and the
// Action Runner (the fully bindings-resolved set known at dispatch time).
package paramschema

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validate reports a non-nil error if params does not satisfy schema.
// An empty schema is treated as "no constraint" (most component
// definitions omit one entirely).
func Validate(schema json.RawMessage, params map[string]any) error {
	if len(schema) == 0 {
		return nil
	}

	var schemaDoc any
	if err := json.Unmarshal(schema, &schemaDoc); err != nil {
		return fmt.Errorf("unmarshal parameter schema: %w", err)
	}

	// params round-trips through JSON so values decoded from wire payloads
	// (numbers as float64, nested maps) validate the same way whether they
	// arrived as Go literals (inline components registered in code) or as
	// json.RawMessage defaults decoded off disk.
	encoded, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	var paramsDoc any
	if err := json.Unmarshal(encoded, &paramsDoc); err != nil {
		return fmt.Errorf("unmarshal params: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("params.json", schemaDoc); err != nil {
		return fmt.Errorf("add parameter schema resource: %w", err)
	}
	compiled, err := compiler.Compile("params.json")
	if err != nil {
		return fmt.Errorf("compile parameter schema: %w", err)
	}

	return compiled.Validate(paramsDoc)
}
