package promptdef

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// GeneratePromptJSONSchema reflects the Prompt struct into a JSON Schema
// document, for the resource_manager "guide" action and the CLI's
// "schema" command.
func GeneratePromptJSONSchema() ([]byte, error) {
	return reflectSchema(&Prompt{})
}

// GenerateGateJSONSchema reflects the Gate struct into a JSON Schema document.
func GenerateGateJSONSchema() ([]byte, error) {
	return reflectSchema(&Gate{})
}

// GenerateMethodologyJSONSchema reflects the Methodology struct.
func GenerateMethodologyJSONSchema() ([]byte, error) {
	return reflectSchema(&Methodology{})
}

func reflectSchema(v any) ([]byte, error) {
	r := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	schema := r.Reflect(v)
	return json.MarshalIndent(schema, "", "  ")
}

// SemanticValidator compiles a resource's JSON Schema once and validates
// decoded documents against it — the "semantic" phase of the three-phase
// structural -> semantic -> domain validation pipeline.
type SemanticValidator struct {
	schema *sjsonschema.Schema
}

// NewSemanticValidator compiles schemaJSON (as produced by Generate*JSONSchema)
// under a synthetic in-memory resource URI.
func NewSemanticValidator(uri string, schemaJSON []byte) (*SemanticValidator, error) {
	var doc any
	if err := json.Unmarshal(schemaJSON, &doc); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	c := sjsonschema.NewCompiler()
	if err := c.AddResource(uri, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	s, err := c.Compile(uri)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &SemanticValidator{schema: s}, nil
}

// Validate decodes raw JSON and checks it against the compiled schema,
// flattening nested causes into a single slice of error strings.
func (v *SemanticValidator) Validate(raw []byte) []string {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return []string{fmt.Sprintf("invalid json: %v", err)}
	}
	if err := v.schema.Validate(doc); err != nil {
		var ve *sjsonschema.ValidationError
		if ok := errorsAs(err, &ve); ok {
			return flattenCauses(ve)
		}
		return []string{err.Error()}
	}
	return nil
}

func flattenCauses(ve *sjsonschema.ValidationError) []string {
	var out []string
	var walk func(e *sjsonschema.ValidationError)
	walk = func(e *sjsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			out = append(out, e.Error())
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return out
}

func errorsAs(err error, target **sjsonschema.ValidationError) bool {
	for err != nil {
		if ve, ok := err.(*sjsonschema.ValidationError); ok {
			*target = ve
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// MarshalForValidation re-marshals a decoded Go value back to JSON so it
// can be run through a SemanticValidator (avoids round-tripping via the
// original YAML bytes, which may contain types the JSON schema disallows).
func MarshalForValidation(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
