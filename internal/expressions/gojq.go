package expressions

import (
	"context"

	"github.com/itchyny/gojq"
)

// GoJQEngine runs jq filters. The scope map is the input document, so a
// condition reads `.params.limit` or `.previous.count`.
type GoJQEngine struct {
	programs *programCache[*gojq.Code]
}

func NewGoJQEngine() *GoJQEngine {
	return &GoJQEngine{programs: newProgramCache(DefaultCacheSize, compileJQ)}
}

func compileJQ(source string) (*gojq.Code, error) {
	query, err := gojq.Parse(source)
	if err != nil {
		return nil, compileError("jq", source, err)
	}
	// An empty environ keeps $ENV from exposing the host environment.
	code, err := gojq.Compile(query, gojq.WithEnvironLoader(func() []string { return nil }))
	if err != nil {
		return nil, compileError("jq", source, err)
	}
	return code, nil
}

func (e *GoJQEngine) Name() string { return "jq" }

func (e *GoJQEngine) Compile(expression string) error {
	if expression == "" {
		return emptyExpression("jq")
	}
	_, err := e.programs.get(expression)
	return err
}

// Evaluate collapses the filter's outputs: none is nil, one is returned as
// is, several come back as []any.
func (e *GoJQEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	outputs, err := e.EvaluateAll(ctx, expression, data)
	if err != nil {
		return nil, err
	}
	if len(outputs) == 0 {
		return nil, nil
	}
	if len(outputs) == 1 {
		return outputs[0], nil
	}
	return outputs, nil
}

// EvaluateAll returns every value the filter emits, in order.
func (e *GoJQEngine) EvaluateAll(ctx context.Context, expression string, data map[string]any) ([]any, error) {
	if expression == "" {
		return nil, emptyExpression("jq")
	}
	code, err := e.programs.get(expression)
	if err != nil {
		return nil, err
	}

	var input any = map[string]any{}
	if data != nil {
		input = jqValue(data)
	}

	var outputs []any
	iter := code.RunWithContext(ctx, input)
	for v, ok := iter.Next(); ok; v, ok = iter.Next() {
		if runErr, isErr := v.(error); isErr {
			return nil, evalError("jq", expression, runErr)
		}
		outputs = append(outputs, v)
	}
	return outputs, nil
}

// jqValue rewrites a Go value into what gojq accepts: float64 numbers and
// untyped maps and slices.
func jqValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, item := range t {
			m[k] = jqValue(item)
		}
		return m
	case []any:
		return jqSlice(len(t), func(i int) any { return t[i] })
	case []string:
		return jqSlice(len(t), func(i int) any { return t[i] })
	case []map[string]any:
		return jqSlice(len(t), func(i int) any { return t[i] })
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	}
	return v
}

func jqSlice(n int, at func(int) any) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = jqValue(at(i))
	}
	return out
}

var _ Engine = (*GoJQEngine)(nil)
