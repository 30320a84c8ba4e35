package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/nodeflow/internal/expressions"
	"github.com/rendis/nodeflow/pkg/schema"
)

func newConditionEnv(t *testing.T, predicates *expressions.PredicateRegistry) *testEnv {
	t.Helper()
	engines, err := expressions.NewEngines()
	require.NoError(t, err)
	te := newTestEnv(t)
	require.NoError(t, te.executor.RegisterNodeExecutor(schema.NodeKindCondition, NewConditionExecutor(predicates, engines)))
	return te
}

func runCondition(t *testing.T, te *testEnv, section map[string]any) (any, error) {
	t.Helper()
	return te.executor.Execute(context.Background(), workflow("cond", conditionNode("cond", section)))
}

func TestCondition_HandlerForms(t *testing.T) {
	params := map[string]any{"limit": 3}
	tests := []struct {
		name    string
		handler any
		want    bool
	}{
		{"no args", func() bool { return true }, true},
		{"params", func(p map[string]any) bool { return p["limit"] == 3 }, true},
		{"params with error", func(p map[string]any) (bool, error) { return p["limit"] != 3, nil }, false},
		{"ConditionFunc", schema.ConditionFunc(func(ctx context.Context, p map[string]any) (bool, error) {
			return ctx != nil && p["limit"] == 3, nil
		}), true},
		{"context func", func(_ context.Context, p map[string]any) (bool, error) { return len(p) == 1, nil }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			te := newTestEnv(t)
			got, err := runCondition(t, te, map[string]any{"handler": tt.handler, "params": params})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCondition_HandlerCannotMutateParams(t *testing.T) {
	te := newTestEnv(t)
	params := map[string]any{"n": 1}
	_, err := runCondition(t, te, map[string]any{
		"handler": func(p map[string]any) bool { p["n"] = 99; return true },
		"params":  params,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, params["n"])
}

func TestCondition_HandlerErrorIsExecutionError(t *testing.T) {
	te := newTestEnv(t)
	cause := errors.New("lookup failed")
	_, err := runCondition(t, te, map[string]any{
		"handler": func(map[string]any) (bool, error) { return false, cause },
	})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeExecution, schema.CodeOf(err))
	assert.ErrorIs(t, err, cause)
}

func TestCondition_UnsupportedHandlerIsConfigurationError(t *testing.T) {
	te := newTestEnv(t)
	_, err := runCondition(t, te, map[string]any{"handler": func(int) bool { return true }})
	require.Error(t, err)
	assert.True(t, schema.IsConfigurationError(err))
}

func TestCondition_RequiresExactlyOneSource(t *testing.T) {
	c := NewConditionExecutor(nil, nil)
	assert.Error(t, c.Validate(conditionNode("c", map[string]any{})))
	assert.Error(t, c.Validate(conditionNode("c", map[string]any{
		"handler":   func() bool { return true },
		"predicate": "always",
	})))
}

func TestCondition_Predicates(t *testing.T) {
	preds := expressions.NewPredicateRegistry()
	require.NoError(t, preds.Register("over_limit", func(_ context.Context, data map[string]any) (bool, error) {
		params := data[expressions.ScopeParams].(map[string]any)
		return params["value"].(int) > params["limit"].(int), nil
	}))
	te := newConditionEnv(t, preds)

	got, err := runCondition(t, te, map[string]any{"predicate": "always"})
	require.NoError(t, err)
	assert.Equal(t, true, got)

	got, err = runCondition(t, te, map[string]any{
		"predicate": "over_limit",
		"params":    map[string]any{"value": 5, "limit": 3},
	})
	require.NoError(t, err)
	assert.Equal(t, true, got)

	_, err = runCondition(t, te, map[string]any{"predicate": "unknown"})
	require.Error(t, err)
	assert.True(t, schema.IsConfigurationError(err))
}

func TestCondition_Expressions(t *testing.T) {
	tests := []struct {
		language   string
		expression string
	}{
		{"", "params.n > 3"},
		{"cel", "params.n > 3 && workflow.id == 'wf-test'"},
		{"expr", "params.n > 3 && workflow.id == 'wf-test'"},
		{"jq", ".params.n > 3 and .workflow.id == \"wf-test\""},
	}
	for _, tt := range tests {
		t.Run(tt.language+":"+tt.expression, func(t *testing.T) {
			te := newConditionEnv(t, nil)
			got, err := runCondition(t, te, map[string]any{
				"expression": tt.expression,
				"language":   tt.language,
				"params":     map[string]any{"n": 5},
			})
			require.NoError(t, err)
			assert.Equal(t, true, got)
		})
	}
}

func TestCondition_ExpressionSeesPreviousAndState(t *testing.T) {
	te := newConditionEnv(t, nil)
	te.leaf.on("a", returns(7))

	cfg := workflow("seq",
		sequenceNode("seq", map[string]any{"passPreviousResult": true}, "a", "check"),
		actionNode("a"),
		conditionNode("check", map[string]any{
			"expression": "previous == 7 && size(state.completed_node_ids) == 1 && state.current_node_id == 'check'",
		}),
	)
	result, err := te.executor.Execute(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, []any{7, true}, result)
}

func TestCondition_NonBooleanExpressionFails(t *testing.T) {
	te := newConditionEnv(t, nil)
	_, err := runCondition(t, te, map[string]any{
		"expression": "params.n + 1",
		"params":     map[string]any{"n": 5},
	})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeExecution, schema.CodeOf(err))
}

func TestCondition_ExpressionValidation(t *testing.T) {
	te := newConditionEnv(t, nil)
	_, err := runCondition(t, te, map[string]any{"expression": "params.n >"})
	require.Error(t, err)
	assert.True(t, schema.IsConfigurationError(err))

	_, err = runCondition(t, te, map[string]any{"expression": "true", "language": "lua"})
	require.Error(t, err)
	assert.True(t, schema.IsConfigurationError(err))
}

func TestCondition_ExpressionsDisabledWithoutEngines(t *testing.T) {
	c := NewConditionExecutor(nil, nil)
	err := c.Validate(conditionNode("c", map[string]any{"expression": "true"}))
	assert.Error(t, err)
}
