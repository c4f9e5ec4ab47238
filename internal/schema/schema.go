// Package schema derives JSON schemas for tool arguments and validates
// decoded arguments against them.
package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/invopop/jsonschema"
)

// ValidationError represents an argument that does not satisfy a schema.
type ValidationError struct {
	Field   string `json:"field"`           // Field that failed validation
	Value   any    `json:"value,omitempty"` // Value that was provided
	Message string `json:"message"`         // Human-readable error message
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

var reflector = &jsonschema.Reflector{
	ExpandedStruct: true,
	DoNotReference: true,
}

// Reflect builds an inline JSON schema map for the struct type of v. Fields
// without omitempty are required and unknown properties are rejected.
// The type must be a named struct.
func Reflect(v any) (map[string]any, error) {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct || t.Name() == "" {
		return nil, fmt.Errorf("schema: %v is not a named struct type", t)
	}

	s := reflector.Reflect(v)

	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	delete(out, "$schema")
	delete(out, "$id")

	if _, ok := out["properties"]; !ok {
		out["properties"] = map[string]any{}
	}

	return out, nil
}

// Validate checks params against an object schema: required fields, declared
// property types, enum membership and, when additionalProperties is false,
// unknown fields. Nested objects and array items are checked recursively.
func Validate(params map[string]any, schema map[string]any) error {
	return validateObject("", params, schema)
}

func validateObject(prefix string, params map[string]any, schema map[string]any) error {
	for _, name := range stringList(schema["required"]) {
		if _, exists := params[name]; !exists {
			return &ValidationError{Field: join(prefix, name), Message: "required field is missing"}
		}
	}

	properties, _ := schema["properties"].(map[string]any)
	closed := schema["additionalProperties"] == false

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		propSchema, exists := properties[name]
		if !exists {
			if closed {
				return &ValidationError{Field: join(prefix, name), Message: "unknown field"}
			}
			continue
		}

		propMap, ok := propSchema.(map[string]any)
		if !ok {
			continue
		}

		if err := validateValue(join(prefix, name), params[name], propMap); err != nil {
			return err
		}
	}

	return nil
}

func validateValue(field string, value any, schema map[string]any) error {
	if value == nil {
		return nil
	}

	expectedType, _ := schema["type"].(string)
	if !isValidType(value, expectedType) {
		return &ValidationError{
			Field:   field,
			Value:   value,
			Message: fmt.Sprintf("expected type %s, got %s", expectedType, jsonTypeOf(value)),
		}
	}

	if enum, ok := schema["enum"].([]any); ok && len(enum) > 0 {
		found := false
		for _, e := range enum {
			if e == value {
				found = true
				break
			}
		}
		if !found {
			return &ValidationError{Field: field, Value: value, Message: fmt.Sprintf("must be one of %v", enum)}
		}
	}

	switch v := value.(type) {
	case map[string]any:
		if _, ok := schema["properties"]; ok {
			return validateObject(field, v, schema)
		}
	case []any:
		if items, ok := schema["items"].(map[string]any); ok {
			for i, item := range v {
				if err := validateValue(fmt.Sprintf("%s[%d]", field, i), item, items); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// isValidType checks if a decoded JSON value matches the schema type.
func isValidType(value any, expectedType string) bool {
	switch expectedType {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		v, ok := value.(float64)
		return ok && v == float64(int64(v))
	case "number":
		_, ok := value.(float64)
		return ok
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
		return true // Unknown or absent types are not checked
	}
}

func jsonTypeOf(value any) string {
	switch value.(type) {
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", value)
	}
}
