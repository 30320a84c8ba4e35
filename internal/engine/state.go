package engine

import (
	"time"

	"github.com/rendis/nodeflow/pkg/schema"
)

// HistoryEntry is one line of a run's append-only history.
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	NodeID    string    `json:"node_id,omitempty"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
}

// WorkflowState is the observable progress of a single Execute call.
type WorkflowState struct {
	RunID            string                `json:"run_id,omitempty"`
	WorkflowID       string                `json:"workflow_id,omitempty"`
	Status           schema.WorkflowStatus `json:"status"`
	CurrentNodeID    string                `json:"current_node_id,omitempty"`
	CompletedNodeIDs []string              `json:"completed_node_ids"`
	FailedNodeIDs    []string              `json:"failed_node_ids"`
	History          []HistoryEntry        `json:"history"`
	Paused           bool                  `json:"paused"`
	Stopped          bool                  `json:"stopped"`
	StartedAt        time.Time             `json:"started_at,omitzero"`
	FinishedAt       *time.Time            `json:"finished_at,omitempty"`
}

// Clone returns a deep copy that shares no slices with s.
func (s WorkflowState) Clone() WorkflowState {
	cp := s
	cp.CompletedNodeIDs = append([]string{}, s.CompletedNodeIDs...)
	cp.FailedNodeIDs = append([]string{}, s.FailedNodeIDs...)
	cp.History = append([]HistoryEntry{}, s.History...)
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		cp.FinishedAt = &t
	}
	return cp
}

// Terminal reports whether the run reached completed or failed.
func (s WorkflowState) Terminal() bool {
	return s.Status == schema.WorkflowStatusCompleted || s.Status == schema.WorkflowStatusFailed
}

// ScopeData renders the state as plain data for expression scopes.
func (s WorkflowState) ScopeData() map[string]any {
	return map[string]any{
		"run_id":             s.RunID,
		"status":             string(s.Status),
		"current_node_id":    s.CurrentNodeID,
		"completed_node_ids": toAnySlice(s.CompletedNodeIDs),
		"failed_node_ids":    toAnySlice(s.FailedNodeIDs),
		"paused":             s.Paused,
		"stopped":            s.Stopped,
	}
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
