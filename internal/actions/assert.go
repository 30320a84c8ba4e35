package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/rendis/nodeflow/internal/validation"
	"github.com/rendis/nodeflow/pkg/schema"
)

// AssertActions returns the assert.* family. A failed assertion is an
// EXECUTION error, so the enclosing composite's error strategy decides what
// happens next; malformed params are VALIDATION errors.
func AssertActions(validator *validation.JSONSchemaValidator) []Action {
	return []Action{
		equalsAssertion(),
		containsAssertion(),
		matchesAssertion(),
		schemaAssertion(validator),
	}
}

// assertion is an Action built from a param check and a test. check returns
// the node result on success.
type assertion struct {
	name     string
	desc     string
	validate func(params map[string]any) error
	check    func(input ActionInput) (any, error)
}

func (a *assertion) Name() string { return a.name }

func (a *assertion) Schema() ActionSchema { return ActionSchema{Description: a.desc} }

func (a *assertion) Validate(params map[string]any) error { return a.validate(params) }

func (a *assertion) Execute(ctx context.Context, input ActionInput) (*ActionOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := a.check(input)
	if err != nil {
		return nil, err
	}
	return &ActionOutput{Data: data}, nil
}

func passed() map[string]any { return map[string]any{"pass": true} }

func requireParams(action string, params map[string]any, keys ...string) error {
	for _, k := range keys {
		if _, ok := params[k]; !ok {
			return schema.NewErrorf(schema.ErrCodeValidation, "%s: missing %q param", action, k)
		}
	}
	return nil
}

func requireString(action string, params map[string]any, key string) (string, error) {
	s, ok := params[key].(string)
	if !ok {
		return "", schema.NewErrorf(schema.ErrCodeValidation, "%s: %q must be a string", action, key)
	}
	return s, nil
}

// failure builds the EXECUTION error for a failed assertion, preferring the
// node's own "message" param over the default text.
func failure(params map[string]any, text string, details map[string]any) *schema.FlowError {
	if m, _ := params["message"].(string); m != "" {
		text = m
	}
	return schema.NewError(schema.ErrCodeExecution, text).WithDetails(details)
}

// subject returns params[key], or the previous sibling's result when the
// param is absent.
func subject(input ActionInput, key string) any {
	if v, ok := input.Params[key]; ok {
		return v
	}
	return input.Context[ContextPrevious]
}

// jsonComparable rewrites numbers to float64 so values built in Go compare
// equal to values decoded from JSON.
func jsonComparable(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, item := range t {
			m[k] = jsonComparable(item)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, item := range t {
			s[i] = jsonComparable(item)
		}
		return s
	}
	return v
}

func sameValue(a, b any) bool { return reflect.DeepEqual(jsonComparable(a), jsonComparable(b)) }

func equalsAssertion() Action {
	return &assertion{
		name: "assert.equals",
		desc: "Fail unless actual (or the previous result) deeply equals expected",
		validate: func(params map[string]any) error {
			return requireParams("assert.equals", params, "expected")
		},
		check: func(in ActionInput) (any, error) {
			expected, actual := in.Params["expected"], subject(in, "actual")
			if !sameValue(expected, actual) {
				return nil, failure(in.Params, "assertion failed: values are not equal",
					map[string]any{"expected": expected, "actual": actual})
			}
			return passed(), nil
		},
	}
}

func containsAssertion() Action {
	return &assertion{
		name: "assert.contains",
		desc: "Fail unless a string or array haystack contains needle",
		validate: func(params map[string]any) error {
			return requireParams("assert.contains", params, "haystack", "needle")
		},
		check: func(in ActionInput) (any, error) {
			haystack, needle := in.Params["haystack"], in.Params["needle"]
			var found bool
			switch h := haystack.(type) {
			case string:
				found = strings.Contains(h, fmt.Sprint(needle))
			case []any:
				for _, item := range h {
					if sameValue(item, needle) {
						found = true
						break
					}
				}
			default:
				return nil, schema.NewErrorf(schema.ErrCodeValidation,
					"assert.contains: haystack must be a string or an array, got %T", haystack)
			}
			if !found {
				return nil, failure(in.Params, "assertion failed: value not found",
					map[string]any{"haystack": haystack, "needle": needle})
			}
			return passed(), nil
		},
	}
}

func matchesAssertion() Action {
	compile := func(params map[string]any) (*regexp.Regexp, error) {
		pattern, err := requireString("assert.matches", params, "pattern")
		if err != nil {
			return nil, err
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "assert.matches: bad pattern: %s", err).WithCause(err)
		}
		return re, nil
	}
	return &assertion{
		name: "assert.matches",
		desc: "Fail unless value matches a regular expression",
		validate: func(params map[string]any) error {
			if _, err := requireString("assert.matches", params, "value"); err != nil {
				return err
			}
			_, err := compile(params)
			return err
		},
		check: func(in ActionInput) (any, error) {
			re, err := compile(in.Params)
			if err != nil {
				return nil, err
			}
			value, _ := in.Params["value"].(string)
			match := re.FindStringIndex(value)
			if match == nil {
				return nil, failure(in.Params, "assertion failed: value does not match pattern",
					map[string]any{"value": value, "pattern": re.String()})
			}
			return map[string]any{"pass": true, "matches": value[match[0]:match[1]]}, nil
		},
	}
}

// schemaAssertion validates an object against an inline JSON Schema. It
// needs the shared validator; without one Validate reports CONFIGURATION.
func schemaAssertion(validator *validation.JSONSchemaValidator) Action {
	return &assertion{
		name: "assert.schema",
		desc: "Fail unless data (or the previous result) conforms to a JSON Schema",
		validate: func(params map[string]any) error {
			if validator == nil {
				return schema.NewError(schema.ErrCodeConfiguration, "assert.schema has no validator")
			}
			if _, ok := params["schema"].(map[string]any); !ok {
				return schema.NewError(schema.ErrCodeValidation, "assert.schema: \"schema\" must be an object")
			}
			return nil
		},
		check: func(in ActionInput) (any, error) {
			if validator == nil {
				return nil, schema.NewError(schema.ErrCodeConfiguration, "assert.schema has no validator")
			}
			data := subject(in, "data")
			obj, ok := data.(map[string]any)
			if !ok {
				return nil, schema.NewErrorf(schema.ErrCodeValidation, "assert.schema: data must be an object, got %T", data)
			}
			raw, err := json.Marshal(in.Params["schema"])
			if err != nil {
				return nil, schema.NewErrorf(schema.ErrCodeValidation, "assert.schema: encode schema: %s", err)
			}

			verr := validator.ValidateInput(obj, raw)
			if verr == nil {
				return passed(), nil
			}
			details := map[string]any{"error": verr.Error()}
			var fe *schema.FlowError
			if errors.As(verr, &fe) && fe.Details != nil {
				details["violations"] = fe.Details["violations"]
			}
			return nil, failure(in.Params, "assertion failed: data does not match schema", details).WithCause(verr)
		},
	}
}
