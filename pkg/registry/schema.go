package registry

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// validateAgainstSchema validates connector inputs against the connector's
// JSON schema. A nil schema means the connector accepts anything.
func validateAgainstSchema(schema map[string]any, inputs map[string]any) error {
	if schema == nil {
		return nil
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(inputs)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		var violations []string
		for _, violation := range result.Errors() {
			violations = append(violations, violation.String())
		}

		return fmt.Errorf("JSON schema validation failed: %s", strings.Join(violations, "; "))
	}

	return nil
}
