package expressions

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
)

// celMaps are the scope sections declared as map(string, dyn). previous is
// declared separately as dyn.
var celMaps = []string{ScopeParams, ScopeWorkflow, ScopeState}

// CELEngine evaluates Common Expression Language conditions. It is the
// default condition language. Only the condition scope is declared, so an
// expression naming anything else fails type-checking at Compile:
//
//	params    map(string, dyn)  node params
//	previous  dyn               previous sibling's result, null when absent
//	workflow  map(string, dyn)  id, name, version, metadata
//	state     map(string, dyn)  run status and progress
type CELEngine struct {
	env      *cel.Env
	programs *programCache[cel.Program]
}

func NewCELEngine() (*CELEngine, error) {
	opts := []cel.EnvOption{cel.Variable(ScopePrevious, cel.DynType)}
	for _, name := range celMaps {
		opts = append(opts, cel.Variable(name, cel.MapType(cel.StringType, cel.DynType)))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	e := &CELEngine{env: env}
	e.programs = newProgramCache(DefaultCacheSize, e.compile)
	return e, nil
}

func (e *CELEngine) compile(source string) (cel.Program, error) {
	ast, issues := e.env.Compile(source)
	if issues != nil && issues.Err() != nil {
		return nil, compileError("cel", source, issues.Err())
	}
	// Interrupt checks let ContextEval stop long comprehensions on cancel.
	prg, err := e.env.Program(ast, cel.InterruptCheckFrequency(100))
	if err != nil {
		return nil, compileError("cel", source, err)
	}
	return prg, nil
}

func (e *CELEngine) Name() string { return "cel" }

func (e *CELEngine) Compile(expression string) error {
	if expression == "" {
		return emptyExpression("cel")
	}
	_, err := e.programs.get(expression)
	return err
}

func (e *CELEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, emptyExpression("cel")
	}
	prg, err := e.programs.get(expression)
	if err != nil {
		return nil, err
	}

	out, _, err := prg.ContextEval(ctx, celActivation(data))
	if err != nil {
		return nil, evalError("cel", expression, err)
	}
	return out.Value(), nil
}

// celActivation binds every declared variable. Absent map sections become
// empty maps so a lookup fails on the missing key rather than the variable.
func celActivation(data map[string]any) map[string]any {
	act := map[string]any{ScopePrevious: data[ScopePrevious]}
	for _, name := range celMaps {
		v := data[name]
		if v == nil {
			v = map[string]any{}
		}
		act[name] = v
	}
	return act
}

var _ Engine = (*CELEngine)(nil)
