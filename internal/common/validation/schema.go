package validation

import (
	"embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const (
	SchemaCaseInput       = "case_input"
	SchemaApprovalRequest = "approval_request"
	SchemaModelBundle     = "model_bundle"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (e ValidationError) String() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Messages flattens the result into "field: message" strings.
func (r *ValidationResult) Messages() []string {
	out := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		out = append(out, e.String())
	}
	return out
}

var (
	compileOnce sync.Once
	compiled    map[string]*gojsonschema.Schema
	compileErr  error
)

func schemas() (map[string]*gojsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiled = make(map[string]*gojsonschema.Schema)
		for _, name := range []string{SchemaCaseInput, SchemaApprovalRequest, SchemaModelBundle} {
			raw, err := schemaFS.ReadFile("schemas/" + name + ".json")
			if err != nil {
				compileErr = fmt.Errorf("read schema %s: %w", name, err)
				return
			}
			s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
			if err != nil {
				compileErr = fmt.Errorf("compile schema %s: %w", name, err)
				return
			}
			compiled[name] = s
		}
	})
	return compiled, compileErr
}

// Validate checks a raw JSON document against one of the embedded schemas.
// A document that is not valid JSON is reported as a single "(root)" error.
func Validate(schemaName string, document []byte) (*ValidationResult, error) {
	all, err := schemas()
	if err != nil {
		return nil, err
	}
	schema, ok := all[schemaName]
	if !ok {
		return nil, fmt.Errorf("unknown schema %q", schemaName)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "(root)",
				Message: "request body is not valid JSON",
				Code:    "INVALID_JSON",
			}},
		}, nil
	}
	if result.Valid() {
		return &ValidationResult{Valid: true}, nil
	}

	errs := make([]ValidationError, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		errs = append(errs, ValidationError{
			Field:   fieldName(desc),
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
	return &ValidationResult{Valid: false, Errors: errs}, nil
}

// fieldName reports the missing property for "required" errors, which gojsonschema attaches to the parent.
func fieldName(desc gojsonschema.ResultError) string {
	if desc.Type() == "required" {
		if prop, ok := desc.Details()["property"].(string); ok {
			if parent := desc.Field(); parent != "(root)" {
				return parent + "." + prop
			}
			return prop
		}
	}
	return desc.Field()
}

func ValidateCaseInput(document []byte) (*ValidationResult, error) {
	return Validate(SchemaCaseInput, document)
}

func ValidateApprovalRequest(document []byte) (*ValidationResult, error) {
	return Validate(SchemaApprovalRequest, document)
}

// ValidateModelBundle returns an error listing every schema violation in the bundle.
func ValidateModelBundle(document []byte) error {
	res, err := Validate(SchemaModelBundle, document)
	if err != nil {
		return err
	}
	if !res.Valid {
		return fmt.Errorf("bundle validation failed: %s", strings.Join(res.Messages(), "; "))
	}
	return nil
}
