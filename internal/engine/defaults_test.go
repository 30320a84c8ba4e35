package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/nodeflow/internal/actions"
	"github.com/rendis/nodeflow/internal/expressions"
	"github.com/rendis/nodeflow/internal/validation"
	"github.com/rendis/nodeflow/pkg/schema"
)

const pipelineDoc = `{
  "id": "wf-pipeline",
  "name": "pipeline",
  "version": "1",
  "nodes": [
    {"id": "root", "kind": "sequence", "child_ids": ["calc", "double", "check"],
     "config": {"sequence": {"passPreviousResult": true}}},
    {"id": "calc", "kind": "action", "parent_id": "root",
     "config": {"action": "expr.eval", "params": {"expression": "2 + 3"}}},
    {"id": "double", "kind": "action", "parent_id": "root",
     "config": {"action": "jq", "params": {"expression": ".previous * 2"}}},
    {"id": "check", "kind": "condition", "parent_id": "root",
     "config": {"condition": {"expression": "previous > 5", "language": "expr"}}}
  ]
}`

type defaultsEnv struct {
	deps      Dependencies
	validator *validation.WorkflowValidator
}

func newDefaultsEnv(t *testing.T) defaultsEnv {
	t.Helper()
	jsv, err := validation.NewJSONSchemaValidator()
	require.NoError(t, err)
	reg := actions.NewRegistry()
	require.NoError(t, actions.RegisterBuiltins(reg, jsv, discardLogger()))
	engines, err := expressions.NewEngines()
	require.NoError(t, err)

	deps := Dependencies{
		Actions:        reg,
		InputValidator: jsv,
		Roles:          NewRoleRegistry(),
		Predicates:     expressions.NewPredicateRegistry(),
		Engines:        engines,
	}
	wv, err := validation.NewWorkflowValidator(validation.Lookups{
		Actions:     reg,
		Roles:       deps.Roles,
		Predicates:  deps.Predicates,
		Expressions: engines,
	})
	require.NoError(t, err)
	return defaultsEnv{deps: deps, validator: wv}
}

func TestNewDefaultExecutor_RunsLoadedDocument(t *testing.T) {
	env := newDefaultsEnv(t)
	cfg, err := env.validator.Load([]byte(pipelineDoc))
	require.NoError(t, err)

	exec, err := NewDefaultExecutor(ExecutorConfig{Logger: discardLogger()}, env.deps)
	require.NoError(t, err)

	result, err := exec.Execute(context.Background(), cfg)
	require.NoError(t, err)

	results, ok := result.([]any)
	require.True(t, ok)
	require.Len(t, results, 3)
	assert.EqualValues(t, 5, results[0])
	assert.EqualValues(t, 10, results[1])
	assert.Equal(t, true, results[2])

	state := exec.State()
	assert.Equal(t, schema.WorkflowStatusCompleted, state.Status)
	assert.ElementsMatch(t, []string{"calc", "double", "check", "root"}, state.CompletedNodeIDs)
}

func TestNewDefaultExecutor_UnknownActionIsConfigurationError(t *testing.T) {
	env := newDefaultsEnv(t)
	exec, err := NewDefaultExecutor(ExecutorConfig{Logger: discardLogger()}, env.deps)
	require.NoError(t, err)

	cfg := workflow("a", &schema.Node{
		ID: "a", Kind: schema.NodeKindAction,
		Config: map[string]any{"action": "http.get"},
	})
	_, err = exec.Execute(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, schema.IsConfigurationError(err))
	assert.Equal(t, schema.WorkflowStatusFailed, exec.State().Status)
}

func TestNewDefaultExecutor_EmptyDependencies(t *testing.T) {
	exec, err := NewDefaultExecutor(ExecutorConfig{Logger: discardLogger()}, Dependencies{})
	require.NoError(t, err)

	cfg := workflow("c", conditionNode("c", map[string]any{"predicate": "always"}))
	result, err := exec.Execute(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, true, result)
}

func TestRegisterDefaultExecutors_RejectsNilExecutor(t *testing.T) {
	exec := NewWorkflowExecutor(ExecutorConfig{Logger: discardLogger()})
	require.NoError(t, RegisterDefaultExecutors(exec, Dependencies{}))
	err := exec.RegisterNodeExecutor(schema.NodeKindAction, nil)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}
