package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/nodeflow/pkg/schema"
)

const (
	schemaBase        = "https://nodeflow.dev/schemas/"
	workflowSchemaURL = schemaBase + "workflow.json"
)

// commonSchemaJSON holds definitions shared by the section schemas.
const commonSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://nodeflow.dev/schemas/common.json",
  "$defs": {
    "errorStrategy": {
      "type": "string",
      "enum": ["fail-fast", "continue", "ignore", "tolerate"]
    },
    "timeout": {
      "oneOf": [
        { "type": "integer", "minimum": 0 },
        { "type": "string", "pattern": "^([0-9]+(\\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$" }
      ]
    }
  }
}`

const sequenceSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://nodeflow.dev/schemas/sequence.json",
  "type": "object",
  "properties": {
    "errorStrategy": { "$ref": "common.json#/$defs/errorStrategy" },
    "timeout": { "$ref": "common.json#/$defs/timeout" },
    "passPreviousResult": { "type": "boolean" }
  },
  "additionalProperties": false
}`

const parallelSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://nodeflow.dev/schemas/parallel.json",
  "type": "object",
  "properties": {
    "errorStrategy": { "$ref": "common.json#/$defs/errorStrategy" },
    "timeout": { "$ref": "common.json#/$defs/timeout" },
    "maxConcurrency": { "type": "integer", "minimum": 0 }
  },
  "additionalProperties": false
}`

// conditionSchemaJSON describes the data-only part of a condition section.
// Go handlers are stripped before validation.
const conditionSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://nodeflow.dev/schemas/condition.json",
  "type": "object",
  "properties": {
    "predicate": { "type": "string", "minLength": 1 },
    "expression": { "type": "string", "minLength": 1 },
    "language": { "type": "string", "enum": ["cel", "expr", "jq"] },
    "params": { "type": "object" },
    "gate": { "type": "boolean" }
  },
  "not": { "required": ["predicate", "expression"] },
  "additionalProperties": false
}`

// workflowSchemaJSON is the JSON Schema for WorkflowConfig documents.
const workflowSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://nodeflow.dev/schemas/workflow.json",
  "type": "object",
  "required": ["nodes"],
  "properties": {
    "id": { "type": "string" },
    "name": { "type": "string" },
    "description": { "type": "string" },
    "version": { "type": "string" },
    "root_id": { "type": "string", "minLength": 1 },
    "nodes": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/node" }
    },
    "config": { "type": "object" },
    "metadata": { "type": "object" }
  },
  "additionalProperties": false,
  "$defs": {
    "node": {
      "type": "object",
      "required": ["id", "kind"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "name": { "type": "string" },
        "kind": {
          "type": "string",
          "enum": ["action", "role", "condition", "parallel", "sequence"]
        },
        "config": {
          "type": "object",
          "properties": {
            "sequence": { "$ref": "sequence.json" },
            "parallel": { "$ref": "parallel.json" },
            "condition": { "$ref": "condition.json" },
            "role": { "type": "string", "minLength": 1 },
            "action": { "type": "string", "minLength": 1 },
            "params": { "type": "object" }
          }
        },
        "status": {
          "type": "string",
          "enum": ["pending", "running", "completed", "failed"]
        },
        "result": {},
        "parent_id": { "type": "string" },
        "child_ids": {
          "type": "array",
          "items": { "type": "string", "minLength": 1 }
        }
      },
      "additionalProperties": false
    }
  }
}`

// JSONSchemaValidator validates workflow documents, node config sections and
// action params. It is safe for concurrent use.
type JSONSchemaValidator struct {
	workflowSchema *jsonschema.Schema
	sections       map[schema.NodeKind]*jsonschema.Schema

	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewJSONSchemaValidator compiles the workflow and section schemas.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := newInputCompiler()

	resources := map[string]string{
		"common.json":    commonSchemaJSON,
		"sequence.json":  sequenceSchemaJSON,
		"parallel.json":  parallelSchemaJSON,
		"condition.json": conditionSchemaJSON,
		"workflow.json":  workflowSchemaJSON,
	}
	for name, doc := range resources {
		parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(doc))
		if err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", name, err)
		}
		if err := c.AddResource(schemaBase+name, parsed); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", name, err)
		}
	}

	wfSchema, err := c.Compile(workflowSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile workflow schema: %w", err)
	}

	sections := make(map[schema.NodeKind]*jsonschema.Schema, 3)
	for _, kind := range []schema.NodeKind{schema.NodeKindSequence, schema.NodeKindParallel, schema.NodeKindCondition} {
		s, err := c.Compile(schemaBase + string(kind) + ".json")
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", kind, err)
		}
		sections[kind] = s
	}

	return &JSONSchemaValidator{
		workflowSchema: wfSchema,
		sections:       sections,
		cache:          make(map[string]*jsonschema.Schema),
	}, nil
}

// ValidateDocument validates a raw JSON workflow document.
func (v *JSONSchemaValidator) ValidateDocument(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "workflow document is empty")
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "workflow document is not valid JSON: %s", err.Error()).WithCause(err)
	}
	if err := v.workflowSchema.Validate(doc); err != nil {
		return toFlowError(err)
	}
	return nil
}

// ValidateSection validates the config section of a sequence, parallel or
// condition node. Other kinds have no section schema.
func (v *JSONSchemaValidator) ValidateSection(kind schema.NodeKind, section map[string]any) error {
	s, ok := v.sections[kind]
	if !ok {
		return nil
	}

	data := section
	if _, hasHandler := section["handler"]; hasHandler {
		data = make(map[string]any, len(section))
		for k, val := range section {
			if k != "handler" {
				data[k] = val
			}
		}
	}

	doc, err := toJSONValue(data)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "config.%s is not serializable: %s", kind, err.Error()).WithCause(err)
	}
	if err := s.Validate(doc); err != nil {
		return toFlowError(err)
	}
	return nil
}

// ValidateInput validates input data against a JSON Schema provided as raw bytes.
// The schema is compiled and cached for subsequent calls with the same schema.
func (v *JSONSchemaValidator) ValidateInput(input map[string]any, inputSchema []byte) error {
	if len(inputSchema) == 0 {
		return nil
	}
	if input == nil {
		input = map[string]any{}
	}

	compiled, err := v.getOrCompile(inputSchema)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "invalid input schema").WithCause(err)
	}

	doc, err := toJSONValue(input)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize input").WithCause(err)
	}

	if err := compiled.Validate(doc); err != nil {
		return toFlowError(err)
	}
	return nil
}

func (v *JSONSchemaValidator) getOrCompile(schemaBytes []byte) (*jsonschema.Schema, error) {
	key := string(schemaBytes)

	v.mu.RLock()
	if cached, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	if cached, ok := v.cache[key]; ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	url := fmt.Sprintf("nodeflow://input-schema/%d", len(v.cache))

	// Fresh compiler per dynamic schema so resources never collide.
	c := newInputCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.cache[key] = compiled
	return compiled, nil
}

func newInputCompiler() *jsonschema.Compiler {
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	return c
}

// toJSONValue round-trips a Go value through JSON so numbers become
// json.Number, which the jsonschema library requires.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(b))
}

// toFlowError flattens a jsonschema.ValidationError into a FlowError that
// lists every leaf violation with its instance location.
func toFlowError(err error) *schema.FlowError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}
	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
