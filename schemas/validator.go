package schemas

import (
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/tombee/dispatch/pkg/errors"
)

// WorkflowValidator validates raw workflow YAML documents against the
// embedded JSON schema. It implements workflow.SchemaValidator.
type WorkflowValidator struct {
	schema *jsonschema.Schema
}

// NewWorkflowValidator compiles the embedded workflow schema.
func NewWorkflowValidator() (*WorkflowValidator, error) {
	schema, err := jsonschema.CompileString("workflow.schema.json", GetWorkflowSchemaString())
	if err != nil {
		return nil, errors.Wrap(err, "compiling workflow schema")
	}
	return &WorkflowValidator{schema: schema}, nil
}

// Validate checks a YAML workflow document against the schema.
func (v *WorkflowValidator) Validate(doc []byte) error {
	var value interface{}
	if err := yaml.Unmarshal(doc, &value); err != nil {
		return errors.Wrap(err, "parsing workflow document")
	}
	if err := v.schema.Validate(normalize(value)); err != nil {
		return &errors.ValidationError{
			Field:      "workflow",
			Message:    err.Error(),
			Suggestion: "compare the document against schemas/workflow.schema.json",
		}
	}
	return nil
}

// normalize converts YAML decodings into the JSON value shapes the
// schema library expects (string map keys, float64 numbers).
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			if key, ok := k.(string); ok {
				out[key] = normalize(val)
			}
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return v
	}
}
