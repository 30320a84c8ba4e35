package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/nodeflow/internal/actions"
	"github.com/rendis/nodeflow/internal/validation"
	"github.com/rendis/nodeflow/pkg/schema"
)

// mockAction is a configurable action for testing.
type mockAction struct {
	name   string
	schema actions.ActionSchema
	execFn func(ctx context.Context, input actions.ActionInput) (*actions.ActionOutput, error)
}

func (a *mockAction) Name() string                         { return a.name }
func (a *mockAction) Schema() actions.ActionSchema         { return a.schema }
func (a *mockAction) Validate(params map[string]any) error { return nil }

func (a *mockAction) Execute(ctx context.Context, input actions.ActionInput) (*actions.ActionOutput, error) {
	if a.execFn != nil {
		return a.execFn(ctx, input)
	}
	return &actions.ActionOutput{Data: input.Params}, nil
}

func newActionEnv(t *testing.T, acts ...actions.Action) *testEnv {
	t.Helper()
	reg := actions.NewRegistry()
	for _, a := range acts {
		require.NoError(t, reg.Register(a))
	}
	v, err := validation.NewJSONSchemaValidator()
	require.NoError(t, err)
	require.NoError(t, actions.RegisterBuiltins(reg, v, discardLogger()))

	te := newTestEnv(t)
	require.NoError(t, te.executor.RegisterNodeExecutor(schema.NodeKindAction, NewActionExecutor(reg, v)))
	return te
}

func namedAction(id, name string, params map[string]any, children ...string) *schema.Node {
	cfg := map[string]any{"action": name}
	if params != nil {
		cfg["params"] = params
	}
	return &schema.Node{ID: id, Kind: schema.NodeKindAction, Config: cfg, ChildIDs: children}
}

func TestAction_ContextCarriesIdentifiersAndPrevious(t *testing.T) {
	var got actions.ActionInput
	capture := &mockAction{name: "capture", execFn: func(_ context.Context, in actions.ActionInput) (*actions.ActionOutput, error) {
		got = in
		return &actions.ActionOutput{Data: "captured"}, nil
	}}
	te := newActionEnv(t, capture)

	cfg := workflow("seq",
		sequenceNode("seq", map[string]any{"passPreviousResult": true}, "first", "second"),
		namedAction("first", "expr.eval", map[string]any{"expression": "1 + 2"}),
		namedAction("second", "capture", map[string]any{"k": "v"}),
	)
	result, err := te.executor.Execute(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, []any{3, "captured"}, result)

	assert.Equal(t, map[string]any{"k": "v"}, got.Params)
	assert.Equal(t, "wf-test", got.Context[actions.ContextWorkflowID])
	assert.Equal(t, "second", got.Context[actions.ContextNodeID])
	assert.Equal(t, te.executor.State().RunID, got.Context[actions.ContextRunID])
	assert.Equal(t, 3, got.Context[actions.ContextPrevious])
}

func TestAction_InstanceInConfig(t *testing.T) {
	te := newActionEnv(t)
	node := &schema.Node{ID: "a", Kind: schema.NodeKindAction, Config: map[string]any{
		"action": &mockAction{name: "inline"},
		"params": map[string]any{"x": 1},
	}}

	result, err := te.executor.Execute(context.Background(), workflow("a", node))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": 1}, result)
}

func TestAction_JQOverPreviousResult(t *testing.T) {
	te := newActionEnv(t)
	cfg := workflow("seq",
		sequenceNode("seq", map[string]any{"passPreviousResult": true}, "load", "pick"),
		namedAction("load", "sleep", map[string]any{"duration": 1, "result": map[string]any{"items": []any{"x", "y"}}}),
		namedAction("pick", "jq", map[string]any{"expression": ".previous.items | length"}),
	)
	result, err := te.executor.Execute(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"items": []any{"x", "y"}}, 2}, result)
}

func TestAction_UnknownActionIsConfigurationError(t *testing.T) {
	te := newActionEnv(t)
	_, err := te.executor.Execute(context.Background(), workflow("a", namedAction("a", "ghost", nil)))
	require.Error(t, err)
	assert.True(t, schema.IsConfigurationError(err))
}

func TestAction_InputSchemaEnforced(t *testing.T) {
	te := newActionEnv(t)
	_, err := te.executor.Execute(context.Background(), workflow("a", namedAction("a", "sleep", map[string]any{"duration": true})))
	require.Error(t, err)
	assert.True(t, schema.IsConfigurationError(err))
}

func TestAction_ParamsMustBeObject(t *testing.T) {
	te := newActionEnv(t)
	node := &schema.Node{ID: "a", Kind: schema.NodeKindAction, Config: map[string]any{"action": "log", "params": "oops"}}
	_, err := te.executor.Execute(context.Background(), workflow("a", node))
	require.Error(t, err)
	assert.True(t, schema.IsConfigurationError(err))
}

func TestAction_PlainErrorWrapped(t *testing.T) {
	cause := errors.New("upstream down")
	te := newActionEnv(t, &mockAction{name: "flaky", execFn: func(context.Context, actions.ActionInput) (*actions.ActionOutput, error) {
		return nil, cause
	}})

	_, err := te.executor.Execute(context.Background(), workflow("a", namedAction("a", "flaky", nil)))
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeExecution, schema.CodeOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "flaky")
}

func TestAction_FailBuiltinKeepsItsError(t *testing.T) {
	te := newActionEnv(t)
	_, err := te.executor.Execute(context.Background(), workflow("a", namedAction("a", "fail", map[string]any{"reason": "nope"})))
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeExecution, schema.CodeOf(err))
	assert.Contains(t, err.Error(), "nope")
}

func TestAction_NilOutput(t *testing.T) {
	te := newActionEnv(t, &mockAction{name: "void", execFn: func(context.Context, actions.ActionInput) (*actions.ActionOutput, error) {
		return nil, nil
	}})
	result, err := te.executor.Execute(context.Background(), workflow("a", namedAction("a", "void", nil)))
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestAction_SleepObservesStop(t *testing.T) {
	te := newActionEnv(t)
	done := make(chan error, 1)
	go func() {
		_, err := te.executor.Execute(context.Background(), workflow("a", namedAction("a", "sleep", map[string]any{"duration": "5s"})))
		done <- err
	}()

	require.Eventually(t, func() bool { return te.executor.State().CurrentNodeID == "a" }, time.Second, 5*time.Millisecond)
	te.executor.Stop()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrStopped)
	case <-time.After(2 * time.Second):
		t.Fatal("sleep action did not observe cancellation")
	}
}
