package engine

import (
	"context"
	"errors"
	"maps"

	"github.com/rendis/nodeflow/internal/expressions"
	"github.com/rendis/nodeflow/pkg/schema"
)

// ConditionExecutor evaluates a boolean from a Go handler, a registered
// predicate, or a sandboxed expression.
type ConditionExecutor struct {
	statusTracker
	predicates *expressions.PredicateRegistry
	engines    *expressions.Engines
}

// NewConditionExecutor creates a ConditionExecutor. A nil predicate registry
// gets the builtins; a nil engine set disables expressions.
func NewConditionExecutor(predicates *expressions.PredicateRegistry, engines *expressions.Engines) *ConditionExecutor {
	if predicates == nil {
		predicates = expressions.NewPredicateRegistry()
	}
	return &ConditionExecutor{predicates: predicates, engines: engines}
}

func (c *ConditionExecutor) options(node *schema.Node) (schema.ConditionOptions, error) {
	section, err := node.Section(string(schema.NodeKindCondition))
	if err != nil {
		return schema.ConditionOptions{}, err
	}
	return schema.ParseConditionOptions(section)
}

// Validate checks that exactly one source is set and that it resolves.
func (c *ConditionExecutor) Validate(node *schema.Node) error {
	opts, err := c.options(node)
	if err != nil {
		return err
	}
	switch {
	case opts.Handler != nil:
		if !supportedHandler(opts.Handler) {
			return schema.NewErrorf(schema.ErrCodeValidation, "unsupported condition handler type %T", opts.Handler)
		}
	case opts.Predicate != "":
		if _, err := c.predicates.Get(opts.Predicate); err != nil {
			return err
		}
	default:
		if c.engines == nil {
			return schema.NewError(schema.ErrCodeValidation, "expression conditions are not enabled")
		}
		if err := c.engines.Compile(opts.Language, opts.Expression); err != nil {
			return err
		}
	}
	return nil
}

// Execute returns the condition's boolean value.
func (c *ConditionExecutor) Execute(ctx context.Context, node *schema.Node, ec *ExecutionContext) (any, error) {
	c.begin()
	opts, err := c.options(node)
	if err != nil {
		return c.finish(nil, err)
	}

	var ok bool
	switch {
	case opts.Handler != nil:
		ok, err = callHandler(ctx, opts.Handler, paramsCopy(opts.Params))
	case opts.Predicate != "":
		var p expressions.Predicate
		if p, err = c.predicates.Get(opts.Predicate); err == nil {
			ok, err = p(ctx, c.scope(opts, ec).Data())
		}
	default:
		if c.engines == nil {
			err = schema.NewError(schema.ErrCodeConfiguration, "expression conditions are not enabled")
			break
		}
		ok, err = c.engines.EvaluateBool(ctx, opts.Language, opts.Expression, c.scope(opts, ec).Data())
	}
	if err != nil {
		return c.finish(nil, conditionError(node.ID, err))
	}
	return c.finish(ok, nil)
}

func (c *ConditionExecutor) scope(opts schema.ConditionOptions, ec *ExecutionContext) expressions.Scope {
	return expressions.Scope{
		Params:   opts.Params,
		Previous: ec.PreviousResult,
		Workflow: expressions.WorkflowInfo(ec.Workflow),
		State:    ec.State().ScopeData(),
	}
}

func supportedHandler(h any) bool {
	switch h.(type) {
	case func() bool,
		func(map[string]any) bool,
		func(map[string]any) (bool, error),
		schema.ConditionFunc,
		func(context.Context, map[string]any) (bool, error):
		return true
	}
	return false
}

func callHandler(ctx context.Context, h any, params map[string]any) (bool, error) {
	switch fn := h.(type) {
	case func() bool:
		return fn(), nil
	case func(map[string]any) bool:
		return fn(params), nil
	case func(map[string]any) (bool, error):
		return fn(params)
	case schema.ConditionFunc:
		return fn(ctx, params)
	case func(context.Context, map[string]any) (bool, error):
		return fn(ctx, params)
	default:
		return false, schema.NewErrorf(schema.ErrCodeValidation, "unsupported condition handler type %T", h)
	}
}

func paramsCopy(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{}
	}
	return maps.Clone(params)
}

func conditionError(nodeID string, err error) error {
	var fe *schema.FlowError
	if errors.As(err, &fe) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return schema.NewErrorf(schema.ErrCodeExecution, "condition failed: %s", err.Error()).
		WithNode(nodeID).WithCause(err)
}
