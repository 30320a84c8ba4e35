package validation

import "github.com/rendis/nodeflow/pkg/schema"

// WorkflowValidator orchestrates the validation pipeline:
// 1. Structural (JSON Schema, documents only)
// 2. Semantic (sections, option parsing, registry references)
// 3. Tree (references, parents, cycles, root, reachability)
type WorkflowValidator struct {
	jsonSchema *JSONSchemaValidator
	lookups    Lookups
}

// NewWorkflowValidator creates a WorkflowValidator. Zero-valued lookups skip
// the corresponding reference checks.
func NewWorkflowValidator(lookups Lookups) (*WorkflowValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &WorkflowValidator{
		jsonSchema: jsv,
		lookups:    lookups,
	}, nil
}

// Validate runs the semantic and tree stages over an in-memory config.
func (wv *WorkflowValidator) Validate(cfg *schema.WorkflowConfig) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if cfg == nil {
		result.AddError("/", schema.ErrCodeValidation, "workflow config is nil")
		return result
	}
	if len(cfg.Nodes) == 0 {
		result.AddError("nodes", schema.ErrCodeValidation, "workflow has no nodes")
		return result
	}

	result.Merge(validateSemantic(wv.jsonSchema, cfg, wv.lookups))
	result.Merge(validateTree(cfg))
	return result
}

// ValidateWorkflow satisfies the Validator interface.
func (wv *WorkflowValidator) ValidateWorkflow(cfg *schema.WorkflowConfig) error {
	return wv.Validate(cfg).ToError()
}

// ValidateInput delegates to the underlying JSONSchemaValidator.
func (wv *WorkflowValidator) ValidateInput(input map[string]any, inputSchema []byte) error {
	return wv.jsonSchema.ValidateInput(input, inputSchema)
}

// ValidateDocument runs the full pipeline over a JSON document. Structural
// errors short-circuit the later stages. The decoded config is returned when
// the document parses, even if later stages report errors.
func (wv *WorkflowValidator) ValidateDocument(data []byte) (*schema.WorkflowConfig, *schema.ValidationResult) {
	result := validateStructural(wv.jsonSchema, data)
	if !result.Valid() {
		return nil, result
	}

	cfg, err := schema.ParseWorkflowConfig(data)
	if err != nil {
		addErr(result, "/", err)
		return nil, result
	}
	result.Merge(wv.Validate(cfg))
	return cfg, result
}

// Load decodes and validates a JSON document, returning the first failure
// as a FlowError.
func (wv *WorkflowValidator) Load(data []byte) (*schema.WorkflowConfig, error) {
	cfg, result := wv.ValidateDocument(data)
	if err := result.ToError(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateStructural(v *JSONSchemaValidator, data []byte) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	err := v.ValidateDocument(data)
	if err == nil {
		return result
	}

	fe, ok := err.(*schema.FlowError)
	if !ok {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}
	if violations, ok := fe.Details["violations"].([]string); ok {
		for _, msg := range violations {
			result.AddError("/", schema.ErrCodeValidation, msg)
		}
		return result
	}
	result.AddError("/", schema.ErrCodeValidation, fe.Message)
	return result
}

var _ Validator = (*WorkflowValidator)(nil)
