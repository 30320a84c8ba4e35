package expressions

import (
	"context"
	"fmt"
	"sort"

	"github.com/rendis/nodeflow/pkg/schema"
)

// Engine evaluates expressions against a data scope.
// Three implementations: CEL (default for conditions), GoJQ (transforms), Expr (logic).
type Engine interface {
	Name() string
	// Compile checks that expression is well formed without evaluating it.
	Compile(expression string) error
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// DefaultLanguage is used when a condition does not name one.
const DefaultLanguage = "cel"

// Engines indexes the available expression engines by language name.
type Engines struct {
	byName map[string]Engine
}

// NewEngines builds the standard cel, expr and jq engines.
func NewEngines() (*Engines, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	return NewEnginesWith(celEngine, NewExprEngine(), NewGoJQEngine()), nil
}

// NewEnginesWith indexes the given engines by Name().
func NewEnginesWith(engines ...Engine) *Engines {
	m := make(map[string]Engine, len(engines))
	for _, e := range engines {
		m[e.Name()] = e
	}
	return &Engines{byName: m}
}

// Get returns the engine for language. An empty language selects cel.
func (e *Engines) Get(language string) (Engine, error) {
	if language == "" {
		language = DefaultLanguage
	}
	eng, ok := e.byName[language]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"unknown expression language %q (available: %v)", language, e.Languages())
	}
	return eng, nil
}

// Languages lists the registered language names in sorted order.
func (e *Engines) Languages() []string {
	names := make([]string, 0, len(e.byName))
	for n := range e.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Compile checks expression in the given language.
func (e *Engines) Compile(language, expression string) error {
	eng, err := e.Get(language)
	if err != nil {
		return err
	}
	return eng.Compile(expression)
}

// EvaluateBool evaluates expression and requires a boolean result.
func (e *Engines) EvaluateBool(ctx context.Context, language, expression string, data map[string]any) (bool, error) {
	eng, err := e.Get(language)
	if err != nil {
		return false, err
	}
	out, err := eng.Evaluate(ctx, expression, data)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeExecution,
			"%s expression %q returned %s, want bool", eng.Name(), expression, describe(out)).
			WithDetails(map[string]any{"expression": expression, "language": eng.Name()})
	}
	return b, nil
}

func describe(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%T", v)
}
