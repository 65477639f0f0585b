package paramschema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEmptySchemaAlwaysPasses(t *testing.T) {
	err := Validate(nil, map[string]any{"anything": true})
	assert.NoError(t, err)
}

func TestValidateAcceptsConformingParams(t *testing.T) {
	schema := []byte(`{
		"type": "object",
		"required": ["host"],
		"properties": {
			"host": {"type": "string"},
			"port": {"type": "integer", "minimum": 1, "maximum": 65535}
		}
	}`)
	err := Validate(schema, map[string]any{"host": "example.com", "port": 443})
	assert.NoError(t, err)
}

func TestValidateRejectsMissingRequiredProperty(t *testing.T) {
	schema := []byte(`{"type": "object", "required": ["host"]}`)
	err := Validate(schema, map[string]any{"port": 443})
	assert.Error(t, err)
}

func TestValidateRejectsWrongType(t *testing.T) {
	schema := []byte(`{"type": "object", "properties": {"port": {"type": "integer"}}}`)
	err := Validate(schema, map[string]any{"port": "not-a-number"})
	assert.Error(t, err)
}
