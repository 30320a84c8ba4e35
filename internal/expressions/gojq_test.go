package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/nodeflow/pkg/schema"
)

func TestGoJQEngine_Name(t *testing.T) {
	assert.Equal(t, "jq", NewGoJQEngine().Name())
}

func TestGoJQEngine_Evaluate(t *testing.T) {
	e := NewGoJQEngine()
	data := map[string]any{
		"params": map[string]any{
			"users": []any{
				map[string]any{"name": "ana", "age": 31},
				map[string]any{"name": "bo", "age": 17},
			},
		},
	}

	out, err := e.Evaluate(context.Background(), `[.params.users[] | select(.age >= 18) | .name]`, data)
	require.NoError(t, err)
	assert.Equal(t, []any{"ana"}, out)

	out, err = e.Evaluate(context.Background(), `.params.users | length > 1`, data)
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestGoJQEngine_MultipleOutputs(t *testing.T) {
	e := NewGoJQEngine()
	out, err := e.Evaluate(context.Background(), `.xs[]`, map[string]any{"xs": []any{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), float64(2)}, out)

	out, err = e.Evaluate(context.Background(), `empty`, nil)
	require.NoError(t, err)
	assert.Nil(t, out)

	all, err := e.EvaluateAll(context.Background(), `.x`, map[string]any{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1)}, all)
}

func TestGoJQEngine_Errors(t *testing.T) {
	e := NewGoJQEngine()

	err := e.Compile(`.[`)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))

	_, err = e.Evaluate(context.Background(), `error("boom")`, nil)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeExecution, schema.CodeOf(err))
}

func TestGoJQEngine_NoEnvironment(t *testing.T) {
	t.Setenv("NODEFLOW_SECRET", "hidden")
	out, err := NewGoJQEngine().Evaluate(context.Background(), `$ENV.NODEFLOW_SECRET`, nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestJQValue(t *testing.T) {
	got := jqValue(map[string]any{
		"i":  1,
		"s":  []string{"a"},
		"nm": []map[string]any{{"k": int64(2)}},
	})
	assert.Equal(t, map[string]any{
		"i":  float64(1),
		"s":  []any{"a"},
		"nm": []any{map[string]any{"k": float64(2)}},
	}, got)
	assert.Nil(t, jqValue(nil))
}
