package toolkit

import (
	"encoding/json"
	"fmt"
	"math"
)

// Validation is the outcome of checking arguments against a tool's schema.
// Unknown parameters produce warnings, never errors; only missing required
// parameters and type mismatches make the arguments invalid.
type Validation struct {
	Valid    bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// ValidateArguments checks args against the named tool's declared schema.
// An unknown tool is reported as invalid with a single error.
func (r *Registry) ValidateArguments(name string, args json.RawMessage) Validation {
	tool, exists := r.GetTool(name)
	if !exists {
		return Validation{Errors: []string{fmt.Sprintf("unknown tool: %s", name)}}
	}
	return validateAgainstSchema(tool, args)
}

func validateAgainstSchema(tool Tool, args json.RawMessage) Validation {
	v := Validation{Valid: true}

	var parsed map[string]any
	if len(args) == 0 {
		parsed = map[string]any{}
	} else if err := json.Unmarshal(args, &parsed); err != nil {
		return Validation{Errors: []string{fmt.Sprintf("arguments are not a JSON object: %v", err)}}
	}

	schema := tool.GetParameters()
	if schema == nil {
		return v
	}

	for _, required := range schema.Required {
		if _, present := parsed[required]; !present {
			v.Valid = false
			v.Errors = append(v.Errors, fmt.Sprintf("missing required parameter: %s", required))
		}
	}

	for name, value := range parsed {
		prop, declared := schema.Properties[name]
		if !declared {
			v.Warnings = append(v.Warnings, fmt.Sprintf("unrecognized parameter: %s", name))
			continue
		}
		if prop.TypeObject == nil {
			continue
		}
		wantType := simpleTypeOf(prop.TypeObject)
		if wantType == "" {
			continue
		}
		if err := checkType(name, wantType, value); err != "" {
			v.Valid = false
			v.Errors = append(v.Errors, err)
		}
	}

	return v
}

// checkType verifies a decoded JSON value against a schema simple type.
// Returns "" when the value matches.
func checkType(name, wantType string, value any) string {
	mismatch := func(got string) string {
		return fmt.Sprintf("parameter %s: expected %s, got %s", name, wantType, got)
	}

	switch wantType {
	case "string":
		if _, ok := value.(string); !ok {
			return mismatch(jsonTypeName(value))
		}
	case "number":
		if _, ok := value.(float64); !ok {
			return mismatch(jsonTypeName(value))
		}
	case "integer":
		f, ok := value.(float64)
		if !ok || f != math.Trunc(f) {
			return mismatch(jsonTypeName(value))
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return mismatch(jsonTypeName(value))
		}
	case "array":
		if _, ok := value.([]any); !ok {
			return mismatch(jsonTypeName(value))
		}
	case "object":
		if _, ok := value.(map[string]any); !ok {
			return mismatch(jsonTypeName(value))
		}
	}
	return ""
}

func jsonTypeName(value any) string {
	switch value.(type) {
	case nil:
		return "null"
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
