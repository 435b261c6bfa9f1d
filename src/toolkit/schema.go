package toolkit

import (
	jsonschema "github.com/swaggest/jsonschema-go"
)

// Helper functions to create JSON schemas for tool parameters.

// StringSchema creates a JSON schema for a string field.
func StringSchema(description string) *jsonschema.Schema {
	strType := jsonschema.SimpleType("string")
	return &jsonschema.Schema{
		Type:        &jsonschema.Type{SimpleTypes: &strType},
		Description: &description,
	}
}

// StringEnumSchema creates a JSON schema for a string field restricted to
// the given values.
func StringEnumSchema(description string, values []string) *jsonschema.Schema {
	strType := jsonschema.SimpleType("string")
	enum := make([]interface{}, len(values))
	for i, v := range values {
		enum[i] = v
	}
	return &jsonschema.Schema{
		Type:        &jsonschema.Type{SimpleTypes: &strType},
		Description: &description,
		Enum:        enum,
	}
}

// NumberSchema creates a JSON schema for a numeric field.
func NumberSchema(description string) *jsonschema.Schema {
	numType := jsonschema.SimpleType("number")
	return &jsonschema.Schema{
		Type:        &jsonschema.Type{SimpleTypes: &numType},
		Description: &description,
	}
}

// IntegerSchema creates a JSON schema for an integer field.
func IntegerSchema(description string) *jsonschema.Schema {
	intType := jsonschema.SimpleType("integer")
	return &jsonschema.Schema{
		Type:        &jsonschema.Type{SimpleTypes: &intType},
		Description: &description,
	}
}

// BoolSchema creates a JSON schema for a boolean field.
func BoolSchema(description string) *jsonschema.Schema {
	boolType := jsonschema.SimpleType("boolean")
	return &jsonschema.Schema{
		Type:        &jsonschema.Type{SimpleTypes: &boolType},
		Description: &description,
	}
}

// ArraySchema creates a JSON schema for an array field with the given item
// schema.
func ArraySchema(description string, items *jsonschema.Schema) *jsonschema.Schema {
	arrType := jsonschema.SimpleType("array")
	s := &jsonschema.Schema{
		Type:        &jsonschema.Type{SimpleTypes: &arrType},
		Description: &description,
	}
	if items != nil {
		s.Items = &jsonschema.Items{SchemaOrBool: &jsonschema.SchemaOrBool{TypeObject: items}}
	}
	return s
}

// ObjectSchema creates a JSON schema for an object with properties and
// required fields.
func ObjectSchema(properties map[string]*jsonschema.Schema, required []string) *jsonschema.Schema {
	schemaProps := make(map[string]jsonschema.SchemaOrBool, len(properties))
	for name, prop := range properties {
		schemaProps[name] = jsonschema.SchemaOrBool{TypeObject: prop}
	}

	objType := jsonschema.SimpleType("object")
	return &jsonschema.Schema{
		Type:       &jsonschema.Type{SimpleTypes: &objType},
		Properties: schemaProps,
		Required:   required,
	}
}

// simpleTypeOf returns the declared simple type name of a property schema,
// or "" when the schema leaves the type open.
func simpleTypeOf(s *jsonschema.Schema) string {
	if s == nil || s.Type == nil || s.Type.SimpleTypes == nil {
		return ""
	}
	return string(*s.Type.SimpleTypes)
}
