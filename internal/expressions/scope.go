package expressions

import (
	"encoding/json"

	"github.com/rendis/nodeflow/pkg/schema"
)

// Scope variable names visible to condition expressions and predicates.
const (
	ScopeParams   = "params"
	ScopePrevious = "previous"
	ScopeWorkflow = "workflow"
	ScopeState    = "state"
)

// Scope is the read-only data a condition evaluates against.
type Scope struct {
	Params   map[string]any
	Previous any
	Workflow map[string]any
	State    map[string]any
}

// Data flattens the scope into the map handed to engines and predicates.
// Every value is deep-copied so an expression cannot mutate caller state.
func (s Scope) Data() map[string]any {
	params := deepCopyMap(s.Params)
	if params == nil {
		params = map[string]any{}
	}
	workflow := deepCopyMap(s.Workflow)
	if workflow == nil {
		workflow = map[string]any{}
	}
	state := deepCopyMap(s.State)
	if state == nil {
		state = map[string]any{}
	}
	return map[string]any{
		ScopeParams:   params,
		ScopePrevious: deepCopyAny(s.Previous),
		ScopeWorkflow: workflow,
		ScopeState:    state,
	}
}

// WorkflowInfo extracts the workflow fields exposed under "workflow".
func WorkflowInfo(cfg *schema.WorkflowConfig) map[string]any {
	if cfg == nil {
		return map[string]any{}
	}
	info := map[string]any{
		"id":      cfg.ID,
		"name":    cfg.Name,
		"version": cfg.Version,
	}
	if cfg.Description != "" {
		info["description"] = cfg.Description
	}
	if cfg.Metadata != nil {
		info["metadata"] = deepCopyMap(cfg.Metadata)
	}
	if cfg.Config != nil {
		info["config"] = deepCopyMap(cfg.Config)
	}
	return info
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = deepCopyAny(v)
	}
	return cp
}

// deepCopyAny recursively copies maps and slices. Other values are shared.
func deepCopyAny(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cp := make([]any, len(val))
		for i, item := range val {
			cp[i] = deepCopyAny(item)
		}
		return cp
	case []string:
		return append([]string(nil), val...)
	case json.RawMessage:
		if val == nil {
			return nil
		}
		cp := make(json.RawMessage, len(val))
		copy(cp, val)
		return cp
	default:
		return v
	}
}
