package validation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// AnalyzeRequestSchema describes the body of POST /analyze. The pattern
// rejects whitespace-only statements.
const AnalyzeRequestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "statement": {
      "type": "string",
      "minLength": 1,
      "pattern": "\\S"
    }
  },
  "required": ["statement"]
}`

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Summary joins all errors into one line suitable for a response message.
func (r *ValidationResult) Summary() string {
	parts := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return strings.Join(parts, "; ")
}

// Validator validates JSON documents against one compiled schema.
type Validator struct {
	schema *gojsonschema.Schema
}

func NewValidator(schemaJSON string) (*Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// ValidateBytes validates a raw JSON document. A body that is not JSON yields
// a single INVALID_JSON error rather than a Go error.
func (v *Validator) ValidateBytes(document []byte) *ValidationResult {
	if len(strings.TrimSpace(string(document))) == 0 {
		return invalid("(root)", "request body is empty", "INVALID_JSON")
	}

	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return invalid("(root)", "request body is not valid JSON", "INVALID_JSON")
	}
	if result.Valid() {
		return &ValidationResult{Valid: true}
	}

	errs := make([]ValidationError, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		field := desc.Field()
		// gojsonschema reports missing properties against the parent object.
		if desc.Type() == "required" {
			if prop, ok := desc.Details()["property"].(string); ok {
				field = prop
			}
		}
		errs = append(errs, ValidationError{
			Field:   field,
			Message: describe(desc),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	return &ValidationResult{Valid: false, Errors: errs}
}

func describe(desc gojsonschema.ResultError) string {
	switch desc.Type() {
	case "required":
		return "required field missing"
	case "string_gte", "pattern":
		return "must not be empty"
	case "invalid_type":
		return fmt.Sprintf("expected %v", desc.Details()["expected"])
	default:
		return desc.Description()
	}
}

func invalid(field, message, code string) *ValidationResult {
	return &ValidationResult{
		Valid:  false,
		Errors: []ValidationError{{Field: field, Message: message, Code: code}},
	}
}

var (
	analyzeOnce      sync.Once
	analyzeValidator *Validator
)

// AnalyzeRequestValidator returns the shared validator for POST /analyze.
func AnalyzeRequestValidator() *Validator {
	analyzeOnce.Do(func() {
		v, err := NewValidator(AnalyzeRequestSchema)
		if err != nil {
			panic(err)
		}
		analyzeValidator = v
	})
	return analyzeValidator
}
