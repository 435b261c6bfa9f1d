package toolkit

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	jsonschema "github.com/swaggest/jsonschema-go"
)

func validationFixture(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	schema := ObjectSchema(map[string]*jsonschema.Schema{
		"title":     StringSchema("task title"),
		"estimate":  NumberSchema("estimated hours"),
		"priority":  IntegerSchema("priority rank"),
		"done":      BoolSchema("completion flag"),
		"tags":      ArraySchema("labels", StringSchema("label")),
		"extra_obj": ObjectSchema(nil, nil),
	}, []string{"title"})
	tool := MustNewFuncTool("update_task", "Update a task", schema, nil,
		func(ctx context.Context, args json.RawMessage) (any, error) { return nil, nil })
	if err := r.RegisterTool(tool); err != nil {
		t.Fatal(err)
	}
	return r
}

func TestValidateArguments(t *testing.T) {
	r := validationFixture(t)

	tests := []struct {
		name          string
		args          string
		wantValid     bool
		wantErrSubstr string
		wantWarnings  int
	}{
		{
			name:      "all valid",
			args:      `{"title":"X","estimate":1.5,"priority":2,"done":false,"tags":["a"],"extra_obj":{}}`,
			wantValid: true,
		},
		{
			name:          "missing required",
			args:          `{"estimate":1.5}`,
			wantValid:     false,
			wantErrSubstr: "title",
		},
		{
			name:         "unknown parameter is a warning only",
			args:         `{"title":"X","surprise":42}`,
			wantValid:    true,
			wantWarnings: 1,
		},
		{
			name:          "string type mismatch",
			args:          `{"title":7}`,
			wantValid:     false,
			wantErrSubstr: "expected string",
		},
		{
			name:          "integer rejects fraction",
			args:          `{"title":"X","priority":1.5}`,
			wantValid:     false,
			wantErrSubstr: "expected integer",
		},
		{
			name:      "integer accepts whole number",
			args:      `{"title":"X","priority":3}`,
			wantValid: true,
		},
		{
			name:          "array type mismatch",
			args:          `{"title":"X","tags":"a"}`,
			wantValid:     false,
			wantErrSubstr: "expected array",
		},
		{
			name:          "object type mismatch",
			args:          `{"title":"X","extra_obj":[1]}`,
			wantValid:     false,
			wantErrSubstr: "expected object",
		},
		{
			name:          "boolean type mismatch",
			args:          `{"title":"X","done":"yes"}`,
			wantValid:     false,
			wantErrSubstr: "expected boolean",
		},
		{
			name:          "not an object",
			args:          `[1,2,3]`,
			wantValid:     false,
			wantErrSubstr: "not a JSON object",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := r.ValidateArguments("update_task", json.RawMessage(tt.args))
			if v.Valid != tt.wantValid {
				t.Fatalf("Valid = %v, want %v (errors: %v)", v.Valid, tt.wantValid, v.Errors)
			}
			if tt.wantErrSubstr != "" {
				found := false
				for _, e := range v.Errors {
					if strings.Contains(e, tt.wantErrSubstr) {
						found = true
					}
				}
				if !found {
					t.Errorf("no error containing %q in %v", tt.wantErrSubstr, v.Errors)
				}
			}
			if len(v.Warnings) != tt.wantWarnings {
				t.Errorf("warnings = %v, want %d", v.Warnings, tt.wantWarnings)
			}
		})
	}
}

func TestValidateArgumentsUnknownTool(t *testing.T) {
	r := NewRegistry()
	v := r.ValidateArguments("missing", json.RawMessage(`{}`))
	if v.Valid {
		t.Error("unknown tool validated as ok")
	}
	if len(v.Errors) != 1 || !strings.Contains(v.Errors[0], "unknown tool") {
		t.Errorf("unexpected errors: %v", v.Errors)
	}
}

func TestValidateArgumentsEmptyArgs(t *testing.T) {
	r := validationFixture(t)
	v := r.ValidateArguments("update_task", nil)
	if v.Valid {
		t.Error("nil args should miss the required parameter")
	}
}
