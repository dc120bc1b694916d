package validator

import (
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/xeipuuv/gojsonschema"

	"portald/internal/domain"
)

const op = "validator.ValidateArguments"

// ValidateArguments checks caller-supplied arguments against a tool's
// declared parameter schema before dispatch. A nil schema means no
// constraints. Failures carry every violated constraint, not just the first,
// so an autonomous caller can repair a malformed call in one round trip.
func ValidateArguments(schema *jsonschema.Schema, args map[string]any) error {
	if schema == nil {
		return nil
	}

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return domain.E(domain.CodeInternal, op, "encode parameter schema", err)
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	if err != nil {
		return domain.E(domain.CodeInternal, op, "compile parameter schema", err)
	}

	if args == nil {
		args = map[string]any{}
	}
	result, err := compiled.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return domain.E(domain.CodeInternal, op, "validate arguments", err)
	}
	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, violation := range result.Errors() {
		violations = append(violations, violation.String())
	}
	return domain.NewValidationError(op, violations)
}
