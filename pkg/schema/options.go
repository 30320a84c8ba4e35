package schema

import (
	"encoding/json"
	"math"
	"time"
)

// ErrorStrategy governs how a composite node reacts to a failing child.
type ErrorStrategy string

const (
	// ErrorStrategyFailFast aborts on the first child failure.
	ErrorStrategyFailFast ErrorStrategy = "fail-fast"
	// ErrorStrategyContinue runs every child, then fails with an aggregate
	// error if any child failed. Failed children contribute nil results.
	ErrorStrategyContinue ErrorStrategy = "continue"
	// ErrorStrategyIgnore drops failed children's results and never fails.
	ErrorStrategyIgnore ErrorStrategy = "ignore"
	// ErrorStrategyTolerate keeps nil placeholders for failed children and
	// never fails.
	ErrorStrategyTolerate ErrorStrategy = "tolerate"
)

// Valid reports whether s is a known strategy. The empty value is valid and
// means fail-fast.
func (s ErrorStrategy) Valid() bool {
	switch s {
	case "", ErrorStrategyFailFast, ErrorStrategyContinue, ErrorStrategyIgnore, ErrorStrategyTolerate:
		return true
	}
	return false
}

// SequenceOptions is the parsed config.sequence section.
type SequenceOptions struct {
	ErrorStrategy      ErrorStrategy
	Timeout            time.Duration
	PassPreviousResult bool
}

// ParallelOptions is the parsed config.parallel section.
type ParallelOptions struct {
	ErrorStrategy  ErrorStrategy
	Timeout        time.Duration
	MaxConcurrency int
}

// ConditionOptions is the parsed config.condition section.
type ConditionOptions struct {
	Handler    any
	Predicate  string
	Expression string
	Language   string
	Params     map[string]any
	Gate       bool
}

// ParseSequenceOptions reads the sequence section of a node config.
func ParseSequenceOptions(section map[string]any) (SequenceOptions, error) {
	opts := SequenceOptions{ErrorStrategy: ErrorStrategyFailFast}
	strategy, timeout, err := parseCommon(section)
	if err != nil {
		return opts, err
	}
	if strategy != "" {
		opts.ErrorStrategy = strategy
	}
	opts.Timeout = timeout
	if v, ok := section["passPreviousResult"]; ok && v != nil {
		b, ok := v.(bool)
		if !ok {
			return opts, NewErrorf(ErrCodeValidation, "passPreviousResult must be a boolean, got %T", v)
		}
		opts.PassPreviousResult = b
	}
	return opts, nil
}

// ParseParallelOptions reads the parallel section of a node config.
func ParseParallelOptions(section map[string]any) (ParallelOptions, error) {
	opts := ParallelOptions{ErrorStrategy: ErrorStrategyFailFast}
	strategy, timeout, err := parseCommon(section)
	if err != nil {
		return opts, err
	}
	if strategy != "" {
		opts.ErrorStrategy = strategy
	}
	opts.Timeout = timeout
	if v, ok := section["maxConcurrency"]; ok && v != nil {
		n, ok := toInt(v)
		if !ok || n < 0 {
			return opts, NewErrorf(ErrCodeValidation, "maxConcurrency must be a non-negative integer, got %v", v)
		}
		opts.MaxConcurrency = n
	}
	return opts, nil
}

// ParseConditionOptions reads the condition section of a node config.
// Exactly one of handler, predicate, or expression must be set.
func ParseConditionOptions(section map[string]any) (ConditionOptions, error) {
	var opts ConditionOptions
	opts.Handler = section["handler"]

	var ok bool
	if v, present := section["predicate"]; present && v != nil {
		if opts.Predicate, ok = v.(string); !ok {
			return opts, NewErrorf(ErrCodeValidation, "predicate must be a string, got %T", v)
		}
	}
	if v, present := section["expression"]; present && v != nil {
		if opts.Expression, ok = v.(string); !ok {
			return opts, NewErrorf(ErrCodeValidation, "expression must be a string, got %T", v)
		}
	}
	if v, present := section["language"]; present && v != nil {
		if opts.Language, ok = v.(string); !ok {
			return opts, NewErrorf(ErrCodeValidation, "language must be a string, got %T", v)
		}
	}
	if v, present := section["params"]; present && v != nil {
		if opts.Params, ok = v.(map[string]any); !ok {
			return opts, NewErrorf(ErrCodeValidation, "params must be an object, got %T", v)
		}
	}
	if v, present := section["gate"]; present && v != nil {
		if opts.Gate, ok = v.(bool); !ok {
			return opts, NewErrorf(ErrCodeValidation, "gate must be a boolean, got %T", v)
		}
	}

	sources := 0
	if opts.Handler != nil {
		sources++
	}
	if opts.Predicate != "" {
		sources++
	}
	if opts.Expression != "" {
		sources++
	}
	if sources != 1 {
		return opts, NewErrorf(ErrCodeValidation, "condition requires exactly one of handler, predicate, or expression (got %d)", sources)
	}
	return opts, nil
}

func parseCommon(section map[string]any) (ErrorStrategy, time.Duration, error) {
	var strategy ErrorStrategy
	if v, ok := section["errorStrategy"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return "", 0, NewErrorf(ErrCodeValidation, "errorStrategy must be a string, got %T", v)
		}
		strategy = ErrorStrategy(s)
		if !strategy.Valid() {
			return "", 0, NewErrorf(ErrCodeValidation, "unknown errorStrategy %q", s)
		}
	}
	timeout, err := ParseTimeout(section["timeout"])
	if err != nil {
		return "", 0, err
	}
	return strategy, timeout, nil
}

// ParseTimeout accepts a number of milliseconds or a Go duration string.
// nil and zero mean unbounded.
func ParseTimeout(v any) (time.Duration, error) {
	if v == nil {
		return 0, nil
	}
	if s, ok := v.(string); ok {
		if s == "" {
			return 0, nil
		}
		d, err := time.ParseDuration(s)
		if err != nil || d < 0 {
			return 0, NewErrorf(ErrCodeValidation, "invalid timeout %q", s)
		}
		return d, nil
	}
	ms, ok := toInt(v)
	if !ok || ms < 0 {
		return 0, NewErrorf(ErrCodeValidation, "timeout must be non-negative milliseconds or a duration string, got %v", v)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}
