package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rendis/nodeflow/pkg/schema"
)

// NodeExecutor runs nodes of one kind.
type NodeExecutor interface {
	Execute(ctx context.Context, node *schema.Node, ec *ExecutionContext) (any, error)
	Validate(node *schema.Node) error
	// Status and Result describe the most recent Execute call.
	Status() schema.NodeStatus
	Result() any
}

// Dispatcher runs a node by ID through the full lifecycle. Composite
// executors use it to run their children.
type Dispatcher interface {
	Dispatch(ctx context.Context, nodeID string, ec *ExecutionContext) (any, error)
	State() WorkflowState
}

// ExecutionContext is passed to every NodeExecutor call.
type ExecutionContext struct {
	Workflow       *schema.WorkflowConfig
	Dispatcher     Dispatcher
	RunID          string
	PreviousResult any
	HasPrevious    bool
	Logger         *slog.Logger

	run  *run
	exec *WorkflowExecutor
}

// State returns a snapshot of the run's state.
func (ec *ExecutionContext) State() WorkflowState {
	if ec.Dispatcher == nil {
		return WorkflowState{}
	}
	return ec.Dispatcher.State()
}

// WithPreviousResult returns a copy of ec carrying v as the previous result.
func (ec *ExecutionContext) WithPreviousResult(v any) *ExecutionContext {
	cp := *ec
	cp.PreviousResult = v
	cp.HasPrevious = true
	return &cp
}

// WithoutPreviousResult returns a copy of ec with no previous result.
func (ec *ExecutionContext) WithoutPreviousResult() *ExecutionContext {
	cp := *ec
	cp.PreviousResult = nil
	cp.HasPrevious = false
	return &cp
}

func (ec *ExecutionContext) logger() *slog.Logger {
	if ec.Logger != nil {
		return ec.Logger
	}
	return slog.Default()
}

// statusTracker gives executors the Status/Result half of NodeExecutor.
type statusTracker struct {
	mu     sync.Mutex
	status schema.NodeStatus
	result any
}

func (t *statusTracker) begin() {
	t.mu.Lock()
	t.status = schema.NodeStatusRunning
	t.result = nil
	t.mu.Unlock()
}

// finish records the outcome and passes it through.
func (t *statusTracker) finish(result any, err error) (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.status = schema.NodeStatusFailed
		t.result = err
		return nil, err
	}
	t.status = schema.NodeStatusCompleted
	t.result = result
	return result, nil
}

func (t *statusTracker) Status() schema.NodeStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == "" {
		return schema.NodeStatusPending
	}
	return t.status
}

func (t *statusTracker) Result() any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}
