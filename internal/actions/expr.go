package actions

import (
	"context"

	"github.com/rendis/nodeflow/internal/expressions"
	"github.com/rendis/nodeflow/pkg/schema"
)

// ExprActions returns the expression evaluation actions: expr.eval and jq.
func ExprActions() []Action {
	return []Action{
		&exprEvalAction{engine: expressions.NewExprEngine()},
		&jqAction{engine: expressions.NewGoJQEngine()},
	}
}

// evalScope merges the action context (workflow_id, run_id, node_id,
// previous) with explicit data under "data".
func evalScope(input ActionInput) map[string]any {
	scope := make(map[string]any, len(input.Context)+1)
	for k, v := range input.Context {
		scope[k] = v
	}
	if data, ok := input.Params["data"]; ok {
		scope["data"] = data
	}
	return scope
}

func requireExpression(name string, params map[string]any) error {
	expr, ok := params["expression"].(string)
	if !ok || expr == "" {
		return schema.NewErrorf(schema.ErrCodeValidation, "%s requires non-empty 'expression' string parameter", name)
	}
	return nil
}

// --- expr.eval ---

type exprEvalAction struct {
	engine *expressions.ExprEngine
}

func (a *exprEvalAction) Name() string { return "expr.eval" }

func (a *exprEvalAction) Schema() ActionSchema {
	return ActionSchema{
		Description: "Evaluate an Expr expression against the previous result or explicit data",
	}
}

func (a *exprEvalAction) Validate(params map[string]any) error {
	if err := requireExpression(a.Name(), params); err != nil {
		return err
	}
	expression, _ := params["expression"].(string)
	return a.engine.Compile(expression)
}

func (a *exprEvalAction) Execute(ctx context.Context, input ActionInput) (*ActionOutput, error) {
	expression, _ := input.Params["expression"].(string)
	result, err := a.engine.Evaluate(ctx, expression, evalScope(input))
	if err != nil {
		return nil, err
	}
	return &ActionOutput{Data: result}, nil
}

// --- jq ---

type jqAction struct {
	engine *expressions.GoJQEngine
}

func (a *jqAction) Name() string { return "jq" }

func (a *jqAction) Schema() ActionSchema {
	return ActionSchema{
		Description: "Transform the previous result or explicit data with a jq program",
	}
}

func (a *jqAction) Validate(params map[string]any) error {
	if err := requireExpression(a.Name(), params); err != nil {
		return err
	}
	expression, _ := params["expression"].(string)
	return a.engine.Compile(expression)
}

func (a *jqAction) Execute(ctx context.Context, input ActionInput) (*ActionOutput, error) {
	expression, _ := input.Params["expression"].(string)
	result, err := a.engine.Evaluate(ctx, expression, evalScope(input))
	if err != nil {
		return nil, err
	}
	return &ActionOutput{Data: result}, nil
}
