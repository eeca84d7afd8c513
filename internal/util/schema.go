// Package util holds the JSON-schema-subset parameter validation shared by
// the capability tools. Schemas are plain maps in the minimal shape the tool
// registry exposes: type/properties/required/enum.
package util

import (
	"fmt"

	"github.com/shelfwise/shelfwise/core"
)

// ValidateParameters checks args against a minimal JSON schema. Only the
// subset the tools declare is enforced: required fields, primitive types and
// enum membership. Extra fields pass through untouched.
func ValidateParameters(args map[string]any, schema map[string]any) error {
	required, _ := schema["required"].([]string)
	if required == nil {
		if raw, ok := schema["required"].([]any); ok {
			for _, r := range raw {
				if s, ok := r.(string); ok {
					required = append(required, s)
				}
			}
		}
	}
	for _, field := range required {
		if _, ok := args[field]; !ok {
			return core.NewValidationError(field, nil, "required field is missing")
		}
	}

	properties, _ := schema["properties"].(map[string]any)
	for field, value := range args {
		prop, ok := properties[field].(map[string]any)
		if !ok {
			continue
		}
		want, _ := prop["type"].(string)
		if !typeMatches(value, want) {
			return core.NewValidationError(field, value, fmt.Sprintf("expected type %s, got %T", want, value))
		}
		if enum, ok := prop["enum"].([]string); ok && !enumContains(enum, value) {
			return core.NewValidationError(field, value, fmt.Sprintf("value not in enum %v", enum))
		}
	}
	return nil
}

func enumContains(enum []string, value any) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	for _, e := range enum {
		if e == s {
			return true
		}
	}
	return false
}

func typeMatches(value any, want string) bool {
	if value == nil {
		return true
	}
	switch want {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		switch v := value.(type) {
		case int, int32, int64:
			return true
		case float64: // JSON decoding yields float64 for all numbers
			return v == float64(int64(v))
		}
		return false
	case "number":
		switch value.(type) {
		case int, int32, int64, float32, float64:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}
