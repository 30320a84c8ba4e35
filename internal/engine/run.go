package engine

import (
	"sync"
	"time"

	"github.com/rendis/nodeflow/pkg/schema"
)

// run holds the per-Execute node tree and state. Goroutines detached by a
// timeout keep writing to their own run, never to a later one.
type run struct {
	id      string
	cfg     *schema.WorkflowConfig
	wfFSM   *FSM[schema.WorkflowStatus]
	nodeFSM *FSM[schema.NodeStatus]

	mu    sync.Mutex // guards nodes' Status/Result and state
	nodes map[string]*schema.Node
	state WorkflowState
}

func newRun(id string, cfg *schema.WorkflowConfig) (*run, error) {
	nodes := make(map[string]*schema.Node, len(cfg.Nodes))
	for i, n := range cfg.Nodes {
		if n == nil {
			return nil, schema.NewErrorf(schema.ErrCodeConfiguration, "nodes[%d] is nil", i)
		}
		if _, dup := nodes[n.ID]; dup {
			return nil, schema.NewErrorf(schema.ErrCodeConfiguration, "duplicate node id %q", n.ID).WithNode(n.ID)
		}
		cp := n.Clone()
		cp.Status = schema.NodeStatusPending
		cp.Result = nil
		nodes[n.ID] = cp
	}
	return &run{
		id:      id,
		cfg:     cfg,
		wfFSM:   NewWorkflowFSM(),
		nodeFSM: NewNodeFSM(),
		nodes:   nodes,
		state: WorkflowState{
			RunID:            id,
			WorkflowID:       cfg.ID,
			Status:           schema.WorkflowStatusPending,
			CompletedNodeIDs: []string{},
			FailedNodeIDs:    []string{},
			History:          []HistoryEntry{},
			StartedAt:        time.Now().UTC(),
		},
	}, nil
}

func (r *run) node(id string) *schema.Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nodes[id]
}

// record appends a history line. Caller holds r.mu.
func (r *run) record(nodeID, status, message string) {
	r.state.History = append(r.state.History, HistoryEntry{
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
		Status:    status,
		Message:   message,
	})
}

// nodeError returns the error a failed node recorded.
func (r *run) nodeError(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := r.nodes[id]; n != nil {
		if err, ok := n.Result.(error); ok {
			return err
		}
	}
	return schema.NewErrorf(schema.ErrCodeExecution, "node %q was abandoned", id).WithNode(id)
}

func (r *run) snapshot() WorkflowState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone()
}
