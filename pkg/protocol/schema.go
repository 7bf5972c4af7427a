package protocol

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// ValidateAgainstSchema validates config with a JSON schema and collects every violation.
func ValidateAgainstSchema(schema map[string]any, config map[string]any) ValidationResult {
	if config == nil {
		config = map[string]any{}
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return Invalid(fmt.Sprintf("schema validation failed: %v", err))
	}

	if result.Valid() {
		return Valid()
	}

	errs := make([]string, 0, len(result.Errors()))
	for _, resultErr := range result.Errors() {
		errs = append(errs, resultErr.String())
	}

	return Invalid(errs...)
}
