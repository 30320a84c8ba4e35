package actions

import (
	"context"
	"encoding/json"
)

// Action is an executable unit of work behind an action node.
type Action interface {
	Name() string
	Schema() ActionSchema
	Execute(ctx context.Context, input ActionInput) (*ActionOutput, error)
	Validate(params map[string]any) error
}

// ActionRegistry manages the lookup of available actions.
type ActionRegistry interface {
	Register(action Action) error
	Get(name string) (Action, error)
	List() []ActionInfo
}

// ActionSchema describes the input/output contract of an action.
type ActionSchema struct {
	InputSchema  json.RawMessage `json:"input_schema,omitempty"`
	OutputSchema json.RawMessage `json:"output_schema,omitempty"`
	Description  string          `json:"description,omitempty"`
}

// Keys set on ActionInput.Context by the action node executor.
const (
	ContextWorkflowID = "workflow_id"
	ContextRunID      = "run_id"
	ContextNodeID     = "node_id"
	ContextPrevious   = "previous"
)

// ActionInput is the data provided to an action at execution time.
type ActionInput struct {
	Params  map[string]any `json:"params"`
	Context map[string]any `json:"context,omitempty"`
}

// ActionOutput is the result of an action execution. Data becomes the
// node's result.
type ActionOutput struct {
	Data any `json:"data,omitempty"`
}

// ActionInfo is a summary of a registered action for listing.
type ActionInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}
