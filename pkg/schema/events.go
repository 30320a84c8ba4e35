package schema

import "time"

// EventType identifies a lifecycle transition broadcast on the event stream.
type EventType string

// Event types emitted by the workflow executor.
const (
	EventWorkflowStart    EventType = "workflow:start"
	EventWorkflowComplete EventType = "workflow:complete"
	EventWorkflowFail     EventType = "workflow:fail"
	EventWorkflowPause    EventType = "workflow:pause"
	EventWorkflowResume   EventType = "workflow:resume"
	EventWorkflowStop     EventType = "workflow:stop"

	EventNodeStart    EventType = "node:start"
	EventNodeComplete EventType = "node:complete"
	EventNodeFail     EventType = "node:fail"

	EventError EventType = "error"
)

// WorkflowEvent is an immutable record of a lifecycle transition.
type WorkflowEvent struct {
	Type         EventType `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	WorkflowID   string    `json:"workflow_id"`
	RunID        string    `json:"run_id,omitempty"`
	NodeID       string    `json:"node_id,omitempty"`
	Data         any       `json:"data,omitempty"`
	Error        error     `json:"-"`
	ErrorMessage string    `json:"error,omitempty"`
}

// WorkflowStatus represents the lifecycle state of a workflow run.
type WorkflowStatus string

const (
	WorkflowStatusPending   WorkflowStatus = "pending"
	WorkflowStatusRunning   WorkflowStatus = "running"
	WorkflowStatusCompleted WorkflowStatus = "completed"
	WorkflowStatusFailed    WorkflowStatus = "failed"
)

// NodeStatus represents the lifecycle state of a node.
type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusFailed    NodeStatus = "failed"
)
