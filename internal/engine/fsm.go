package engine

import (
	"slices"

	"github.com/rendis/nodeflow/pkg/schema"
)

// ValidWorkflowTransitions defines the allowed state transitions for runs.
// pending -> failed covers runs that never found a start node.
var ValidWorkflowTransitions = map[schema.WorkflowStatus][]schema.WorkflowStatus{
	schema.WorkflowStatusPending:   {schema.WorkflowStatusRunning, schema.WorkflowStatusFailed},
	schema.WorkflowStatusRunning:   {schema.WorkflowStatusCompleted, schema.WorkflowStatusFailed},
	schema.WorkflowStatusCompleted: {},
	schema.WorkflowStatusFailed:    {},
}

// ValidNodeTransitions defines the allowed state transitions for nodes.
// pending -> failed covers a child whose parent timed out before it started.
var ValidNodeTransitions = map[schema.NodeStatus][]schema.NodeStatus{
	schema.NodeStatusPending:   {schema.NodeStatusRunning, schema.NodeStatusFailed},
	schema.NodeStatusRunning:   {schema.NodeStatusCompleted, schema.NodeStatusFailed},
	schema.NodeStatusCompleted: {},
	schema.NodeStatusFailed:    {},
}

// FSM validates lifecycle transitions against a table. It holds no
// per-subject state; callers own the current status.
type FSM[S ~string] struct {
	kind  string
	table map[S][]S
}

// NewWorkflowFSM returns the run lifecycle machine.
func NewWorkflowFSM() *FSM[schema.WorkflowStatus] {
	return &FSM[schema.WorkflowStatus]{kind: "workflow", table: ValidWorkflowTransitions}
}

// NewNodeFSM returns the node lifecycle machine.
func NewNodeFSM() *FSM[schema.NodeStatus] {
	return &FSM[schema.NodeStatus]{kind: "node", table: ValidNodeTransitions}
}

// Can reports whether from -> to is allowed.
func (f *FSM[S]) Can(from, to S) bool {
	allowed, ok := f.table[from]
	return ok && slices.Contains(allowed, to)
}

// Transition validates from -> to for subject.
func (f *FSM[S]) Transition(subject string, from, to S) error {
	if !f.Can(from, to) {
		err := schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid %s transition: %s -> %s", f.kind, from, to).
			WithDetails(map[string]any{"subject": subject, "from": string(from), "to": string(to)})
		if f.kind == "node" {
			err = err.WithNode(subject)
		}
		return err
	}
	return nil
}

func workflowEventType(to schema.WorkflowStatus) schema.EventType {
	switch to {
	case schema.WorkflowStatusRunning:
		return schema.EventWorkflowStart
	case schema.WorkflowStatusCompleted:
		return schema.EventWorkflowComplete
	case schema.WorkflowStatusFailed:
		return schema.EventWorkflowFail
	default:
		return ""
	}
}

func nodeTerminal(s schema.NodeStatus) bool {
	return s == schema.NodeStatusCompleted || s == schema.NodeStatusFailed
}

func nodeEventType(to schema.NodeStatus) schema.EventType {
	switch to {
	case schema.NodeStatusRunning:
		return schema.EventNodeStart
	case schema.NodeStatusCompleted:
		return schema.EventNodeComplete
	case schema.NodeStatusFailed:
		return schema.EventNodeFail
	default:
		return ""
	}
}
