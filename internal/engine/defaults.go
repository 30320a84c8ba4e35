package engine

import (
	"github.com/rendis/nodeflow/internal/actions"
	"github.com/rendis/nodeflow/internal/expressions"
	"github.com/rendis/nodeflow/pkg/schema"
)

// Dependencies are the registries the built-in node executors resolve
// names against. Nil fields fall back to empty registries.
type Dependencies struct {
	Actions        actions.ActionRegistry
	InputValidator InputValidator
	Roles          *RoleRegistry
	Predicates     *expressions.PredicateRegistry
	Engines        *expressions.Engines
}

// RegisterDefaultExecutors binds the built-in executor for every node kind.
func RegisterDefaultExecutors(e *WorkflowExecutor, deps Dependencies) error {
	bindings := []struct {
		kind schema.NodeKind
		exec NodeExecutor
	}{
		{schema.NodeKindSequence, NewSequenceExecutor()},
		{schema.NodeKindParallel, NewParallelExecutor()},
		{schema.NodeKindCondition, NewConditionExecutor(deps.Predicates, deps.Engines)},
		{schema.NodeKindRole, NewRoleExecutor(deps.Roles)},
		{schema.NodeKindAction, NewActionExecutor(deps.Actions, deps.InputValidator)},
	}
	for _, b := range bindings {
		if err := e.RegisterNodeExecutor(b.kind, b.exec); err != nil {
			return err
		}
	}
	return nil
}

// NewDefaultExecutor creates a WorkflowExecutor with the built-in executors.
func NewDefaultExecutor(cfg ExecutorConfig, deps Dependencies) (*WorkflowExecutor, error) {
	e := NewWorkflowExecutor(cfg)
	if err := RegisterDefaultExecutors(e, deps); err != nil {
		return nil, err
	}
	return e, nil
}
