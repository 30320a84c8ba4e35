package validation

import "github.com/rendis/nodeflow/pkg/schema"

// Validator checks workflow configs for correctness before execution.
// Uses JSON Schema Draft 2020-12 for document and section validation.
type Validator interface {
	ValidateWorkflow(cfg *schema.WorkflowConfig) error
	ValidateInput(input map[string]any, inputSchema []byte) error
}

// NameLookup reports whether a name is registered (actions, roles, predicates).
type NameLookup interface {
	Has(name string) bool
}

// ExpressionCompiler checks condition expressions without running them.
type ExpressionCompiler interface {
	Compile(language, expression string) error
}

// Lookups are the registries semantic validation resolves references
// against. A nil field skips that check.
type Lookups struct {
	Actions     NameLookup
	Roles       NameLookup
	Predicates  NameLookup
	Expressions ExpressionCompiler
}
