package actions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/nodeflow/internal/validation"
	"github.com/rendis/nodeflow/pkg/schema"
)

func findAssertAction(t *testing.T, name string) Action {
	t.Helper()
	v, err := validation.NewJSONSchemaValidator()
	require.NoError(t, err)
	for _, a := range AssertActions(v) {
		if a.Name() == name {
			return a
		}
	}
	t.Fatalf("action %s not found", name)
	return nil
}

func execAssert(t *testing.T, name string, input ActionInput) (any, error) {
	t.Helper()
	out, err := findAssertAction(t, name).Execute(context.Background(), input)
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}

func params(p map[string]any) ActionInput { return ActionInput{Params: p} }

// --- assert.equals ---

func TestAssertEquals(t *testing.T) {
	tests := []struct {
		name    string
		input   ActionInput
		wantErr bool
	}{
		{"scalars", params(map[string]any{"expected": "a", "actual": "a"}), false},
		{"numeric types", params(map[string]any{"expected": 1, "actual": float64(1)}), false},
		{"maps", params(map[string]any{
			"expected": map[string]any{"k": []any{1, 2}},
			"actual":   map[string]any{"k": []any{float64(1), float64(2)}},
		}), false},
		{"mismatch", params(map[string]any{"expected": 1, "actual": 2}), true},
		{"previous result", ActionInput{
			Params:  map[string]any{"expected": "done"},
			Context: map[string]any{ContextPrevious: "done"},
		}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := execAssert(t, "assert.equals", tc.input)
			if tc.wantErr {
				require.Error(t, err)
				assert.Equal(t, schema.ErrCodeExecution, schema.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, map[string]any{"pass": true}, out)
		})
	}
}

func TestAssertEquals_CustomMessage(t *testing.T) {
	_, err := execAssert(t, "assert.equals", params(map[string]any{
		"expected": 1, "actual": 2, "message": "score drifted",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "score drifted")
}

func TestAssertEquals_ValidateMissingExpected(t *testing.T) {
	err := findAssertAction(t, "assert.equals").Validate(map[string]any{})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

// --- assert.contains ---

func TestAssertContains(t *testing.T) {
	_, err := execAssert(t, "assert.contains", params(map[string]any{"haystack": "hello world", "needle": "world"}))
	require.NoError(t, err)

	_, err = execAssert(t, "assert.contains", params(map[string]any{"haystack": []any{1, "x"}, "needle": float64(1)}))
	require.NoError(t, err)

	_, err = execAssert(t, "assert.contains", params(map[string]any{"haystack": "hello", "needle": "bye"}))
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeExecution, schema.CodeOf(err))

	_, err = execAssert(t, "assert.contains", params(map[string]any{"haystack": 42, "needle": 4}))
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

// --- assert.matches ---

func TestAssertMatches(t *testing.T) {
	out, err := execAssert(t, "assert.matches", params(map[string]any{"value": "run-42", "pattern": `\d+`}))
	require.NoError(t, err)
	assert.Equal(t, "42", out.(map[string]any)["matches"])

	_, err = execAssert(t, "assert.matches", params(map[string]any{"value": "abc", "pattern": `^\d+$`}))
	require.Error(t, err)

	err = findAssertAction(t, "assert.matches").Validate(map[string]any{"value": "a", "pattern": "("})
	require.Error(t, err)
}

// --- assert.schema ---

func TestAssertSchema(t *testing.T) {
	objSchema := map[string]any{
		"type":     "object",
		"required": []any{"name"},
		"properties": map[string]any{
			"name": map[string]any{"type": "string"},
		},
	}

	_, err := execAssert(t, "assert.schema", params(map[string]any{
		"schema": objSchema,
		"data":   map[string]any{"name": "ana"},
	}))
	require.NoError(t, err)

	_, err = execAssert(t, "assert.schema", ActionInput{
		Params:  map[string]any{"schema": objSchema},
		Context: map[string]any{ContextPrevious: map[string]any{"name": 3}},
	})
	require.Error(t, err)
	fe, ok := err.(*schema.FlowError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeExecution, fe.Code)
	assert.NotEmpty(t, fe.Details["violations"])

	_, err = execAssert(t, "assert.schema", params(map[string]any{"schema": objSchema, "data": "str"}))
	require.Error(t, err)
}

func TestAssertSchema_ValidateRequiresValidator(t *testing.T) {
	a := schemaAssertion(nil)
	err := a.Validate(map[string]any{"schema": map[string]any{}})
	require.Error(t, err)
	assert.True(t, schema.IsConfigurationError(err))
}
