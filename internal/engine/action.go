package engine

import (
	"context"
	"errors"
	"maps"

	"github.com/rendis/nodeflow/internal/actions"
	"github.com/rendis/nodeflow/pkg/schema"
)

// InputValidator checks action params against an action's input schema.
// Satisfied by *validation.JSONSchemaValidator.
type InputValidator interface {
	ValidateInput(input map[string]any, inputSchema []byte) error
}

// ActionExecutor runs action nodes against an ActionRegistry.
type ActionExecutor struct {
	statusTracker
	registry  actions.ActionRegistry
	validator InputValidator
}

// NewActionExecutor creates an ActionExecutor. validator may be nil, in which
// case input schemas are not enforced.
func NewActionExecutor(registry actions.ActionRegistry, validator InputValidator) *ActionExecutor {
	return &ActionExecutor{registry: registry, validator: validator}
}

func (x *ActionExecutor) resolve(node *schema.Node) (actions.Action, error) {
	switch v := node.Config["action"].(type) {
	case nil:
		return nil, schema.NewError(schema.ErrCodeValidation, "config.action is required")
	case actions.Action:
		return v, nil
	case string:
		if x.registry == nil {
			return nil, schema.NewErrorf(schema.ErrCodeNotFound, "action %q: no action registry", v)
		}
		return x.registry.Get(v)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "config.action must be an Action or an action name, got %T", v)
	}
}

func actionParams(node *schema.Node) (map[string]any, error) {
	raw, ok := node.Config["params"]
	if !ok || raw == nil {
		return map[string]any{}, nil
	}
	params, ok := raw.(map[string]any)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "config.params must be an object, got %T", raw)
	}
	return maps.Clone(params), nil
}

// Validate resolves the action and checks its params.
func (x *ActionExecutor) Validate(node *schema.Node) error {
	action, err := x.resolve(node)
	if err != nil {
		return err
	}
	params, err := actionParams(node)
	if err != nil {
		return err
	}
	if s := action.Schema(); x.validator != nil && len(s.InputSchema) > 0 {
		if err := x.validator.ValidateInput(params, s.InputSchema); err != nil {
			return err
		}
	}
	return action.Validate(params)
}

// Execute runs the action and returns its output data.
func (x *ActionExecutor) Execute(ctx context.Context, node *schema.Node, ec *ExecutionContext) (any, error) {
	x.begin()
	action, err := x.resolve(node)
	if err != nil {
		return x.finish(nil, err)
	}
	params, err := actionParams(node)
	if err != nil {
		return x.finish(nil, err)
	}

	input := actions.ActionInput{
		Params: params,
		Context: map[string]any{
			actions.ContextNodeID: node.ID,
			actions.ContextRunID:  ec.RunID,
		},
	}
	if ec.Workflow != nil {
		input.Context[actions.ContextWorkflowID] = ec.Workflow.ID
	}
	if ec.HasPrevious {
		input.Context[actions.ContextPrevious] = ec.PreviousResult
	}

	out, err := action.Execute(ctx, input)
	if err != nil {
		return x.finish(nil, actionError(node.ID, action.Name(), err))
	}
	if out == nil {
		return x.finish(nil, nil)
	}
	return x.finish(out.Data, nil)
}

func actionError(nodeID, name string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var fe *schema.FlowError
	if errors.As(err, &fe) {
		return err
	}
	return schema.NewErrorf(schema.ErrCodeExecution, "action %s: %s", name, err.Error()).
		WithNode(nodeID).
		WithCause(err)
}
