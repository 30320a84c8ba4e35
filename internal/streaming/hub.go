package streaming

import (
	"context"
	"slices"

	"github.com/rendis/nodeflow/pkg/schema"
)

// EventFilter specifies which events a subscriber wants to receive.
// Zero-valued fields match everything.
type EventFilter struct {
	WorkflowID string             `json:"workflow_id,omitempty"`
	RunID      string             `json:"run_id,omitempty"`
	NodeID     string             `json:"node_id,omitempty"`
	Types      []schema.EventType `json:"types,omitempty"`
}

// Match returns true if the event passes the filter criteria.
func (f EventFilter) Match(e schema.WorkflowEvent) bool {
	if f.WorkflowID != "" && f.WorkflowID != e.WorkflowID {
		return false
	}
	if f.RunID != "" && f.RunID != e.RunID {
		return false
	}
	if f.NodeID != "" && f.NodeID != e.NodeID {
		return false
	}
	return len(f.Types) == 0 || slices.Contains(f.Types, e.Type)
}

// EventHub provides pub/sub for workflow lifecycle events.
type EventHub interface {
	Publish(ctx context.Context, event schema.WorkflowEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan schema.WorkflowEvent, func(), error)
}
