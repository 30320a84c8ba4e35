package validation

import (
	"errors"
	"fmt"

	"github.com/rendis/nodeflow/pkg/schema"
)

// validateSemantic checks each node's kind-specific configuration: section
// shape, option parsing, and references to actions, roles, predicates and
// expressions.
func validateSemantic(v *JSONSchemaValidator, cfg *schema.WorkflowConfig, lookups Lookups) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	for i, n := range cfg.Nodes {
		path := fmt.Sprintf("nodes[%d]", i)
		if n == nil {
			result.AddError(path, schema.ErrCodeValidation, "node is null")
			continue
		}
		errs, warns := result.Mark()
		validateNodeSemantic(v, n, path, lookups, result)
		result.TagNode(n.ID, errs, warns)
	}
	return result
}

func validateNodeSemantic(v *JSONSchemaValidator, n *schema.Node, path string, lookups Lookups, result *schema.ValidationResult) {
	if n.ID == "" {
		result.AddError(path+".id", schema.ErrCodeValidation, "node id is empty")
	}
	if !n.Kind.Valid() {
		result.AddError(path+".kind", schema.ErrCodeValidation,
			fmt.Sprintf("unknown node kind %q", n.Kind))
		return
	}

	switch n.Kind {
	case schema.NodeKindSequence:
		section, ok := sectionOf(v, n, path, result)
		if !ok {
			return
		}
		if _, err := schema.ParseSequenceOptions(section); err != nil {
			addErr(result, path+".config.sequence", err)
		}
	case schema.NodeKindParallel:
		section, ok := sectionOf(v, n, path, result)
		if !ok {
			return
		}
		if _, err := schema.ParseParallelOptions(section); err != nil {
			addErr(result, path+".config.parallel", err)
		}
	case schema.NodeKindCondition:
		section, ok := sectionOf(v, n, path, result)
		if !ok {
			return
		}
		opts, err := schema.ParseConditionOptions(section)
		if err != nil {
			addErr(result, path+".config.condition", err)
			return
		}
		validateConditionRefs(opts, path+".config.condition", lookups, result)
	case schema.NodeKindRole:
		validateNamedRef(n.Config["role"], "role", path+".config.role", lookups.Roles, result)
	case schema.NodeKindAction:
		validateNamedRef(n.Config["action"], "action", path+".config.action", lookups.Actions, result)
		if p, ok := n.Config["params"]; ok && p != nil {
			if _, isMap := p.(map[string]any); !isMap {
				result.AddError(path+".config.params", schema.ErrCodeValidation,
					fmt.Sprintf("params must be an object, got %T", p))
			}
		}
	}

	if n.Kind.IsComposite() && len(n.ChildIDs) == 0 {
		result.AddWarning(path+".child_ids", schema.ErrCodeValidation,
			fmt.Sprintf("%s node %q has no children", n.Kind, n.ID))
	}
}

// sectionOf extracts config[kind] and validates it against its JSON Schema.
func sectionOf(v *JSONSchemaValidator, n *schema.Node, path string, result *schema.ValidationResult) (map[string]any, bool) {
	sectionPath := fmt.Sprintf("%s.config.%s", path, n.Kind)
	section, err := n.Section(string(n.Kind))
	if err != nil {
		addErr(result, sectionPath, err)
		return nil, false
	}
	if v != nil {
		if err := v.ValidateSection(n.Kind, section); err != nil {
			addErr(result, sectionPath, err)
			return nil, false
		}
	}
	return section, true
}

func validateConditionRefs(opts schema.ConditionOptions, path string, lookups Lookups, result *schema.ValidationResult) {
	if opts.Predicate != "" && lookups.Predicates != nil && !lookups.Predicates.Has(opts.Predicate) {
		result.AddError(path+".predicate", schema.ErrCodeNotFound,
			fmt.Sprintf("predicate %q not registered", opts.Predicate))
	}
	if opts.Expression != "" && lookups.Expressions != nil {
		if err := lookups.Expressions.Compile(opts.Language, opts.Expression); err != nil {
			addErr(result, path+".expression", err)
		}
	}
}

// validateNamedRef checks a role/action reference. String values must name a
// registered entry; any other non-nil value is an instance checked by the
// node executor.
func validateNamedRef(ref any, what, path string, lookup NameLookup, result *schema.ValidationResult) {
	switch r := ref.(type) {
	case nil:
		result.AddError(path, schema.ErrCodeConfiguration, fmt.Sprintf("%s node requires config.%s", what, what))
	case string:
		if r == "" {
			result.AddError(path, schema.ErrCodeConfiguration, fmt.Sprintf("config.%s is empty", what))
			return
		}
		if lookup != nil && !lookup.Has(r) {
			result.AddError(path, schema.ErrCodeNotFound, fmt.Sprintf("%s %q not registered", what, r))
		}
	}
}

func addErr(result *schema.ValidationResult, path string, err error) {
	code := schema.CodeOf(err)
	if code == "" {
		code = schema.ErrCodeValidation
	}
	msg := err.Error()
	var fe *schema.FlowError
	if errors.As(err, &fe) {
		msg = fe.Message
	}
	result.AddError(path, code, msg)
}
