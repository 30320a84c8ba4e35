package engine

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/nodeflow/internal/logging"
	"github.com/rendis/nodeflow/internal/streaming"
	"github.com/rendis/nodeflow/pkg/schema"
)

// ErrStopped is returned by Execute and Dispatch once Stop has been called.
var ErrStopped = schema.NewError(schema.ErrCodeCancelled, "workflow stopped")

// ExecutorConfig holds configuration for a WorkflowExecutor.
type ExecutorConfig struct {
	Logger *slog.Logger
	// Hub receives lifecycle events. Nil creates a private MemoryHub.
	Hub streaming.EventHub
}

// WorkflowExecutor runs one workflow tree at a time: it resolves the root,
// dispatches nodes to the executor registered for their kind, tracks state
// and publishes lifecycle events.
type WorkflowExecutor struct {
	logger *slog.Logger
	hub    streaming.EventHub
	gate   gate

	stopped atomic.Bool

	execMu    sync.RWMutex
	executors map[schema.NodeKind]NodeExecutor

	mu          sync.Mutex // guards current, active, cancel, stopPending
	current     *run
	active      bool
	cancel      context.CancelFunc
	stopPending bool // Stop arrived while no run was active
}

// NewWorkflowExecutor creates an executor with no node executors registered.
func NewWorkflowExecutor(cfg ExecutorConfig) *WorkflowExecutor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Hub == nil {
		cfg.Hub = streaming.NewMemoryHub()
	}
	return &WorkflowExecutor{
		logger:    cfg.Logger,
		hub:       cfg.Hub,
		executors: make(map[schema.NodeKind]NodeExecutor),
	}
}

// RegisterNodeExecutor binds exec to kind, replacing any previous binding.
func (e *WorkflowExecutor) RegisterNodeExecutor(kind schema.NodeKind, exec NodeExecutor) error {
	if !kind.Valid() {
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown node kind %q", kind)
	}
	if exec == nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "nil executor for kind %q", kind)
	}
	e.execMu.Lock()
	defer e.execMu.Unlock()
	e.executors[kind] = exec
	return nil
}

func (e *WorkflowExecutor) executorFor(kind schema.NodeKind) NodeExecutor {
	e.execMu.RLock()
	defer e.execMu.RUnlock()
	return e.executors[kind]
}

// Execute runs cfg to completion under a fresh run ID.
func (e *WorkflowExecutor) Execute(ctx context.Context, cfg *schema.WorkflowConfig) (any, error) {
	return e.ExecuteRun(ctx, uuid.NewString(), cfg)
}

// ExecuteRun runs cfg under runID. The caller's config is never mutated.
// A second call while a run is active fails with CONFLICT.
func (e *WorkflowExecutor) ExecuteRun(ctx context.Context, runID string, cfg *schema.WorkflowConfig) (any, error) {
	if cfg == nil {
		return nil, schema.NewError(schema.ErrCodeConfiguration, "workflow config is nil")
	}
	r, err := newRun(runID, cfg)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.active {
		running := e.current.cfg.ID
		e.mu.Unlock()
		return nil, schema.NewErrorf(schema.ErrCodeConflict, "executor is already running workflow %q", running)
	}
	runCtx, cancel := context.WithCancel(logging.WithIDs(ctx, cfg.ID, "", runID))
	e.active = true
	e.current = r
	e.cancel = cancel
	e.stopped.Store(e.stopPending)
	e.stopPending = false
	r.state.Paused = e.gate.IsClosed()
	e.mu.Unlock()

	defer func() {
		cancel()
		e.mu.Lock()
		e.active = false
		e.cancel = nil
		e.mu.Unlock()
	}()

	if e.stopped.Load() {
		e.markControl(r, func(s *WorkflowState) { s.Stopped = true }, "stopped", schema.EventWorkflowStop)
		e.logger.InfoContext(runCtx, "workflow stopped before start")
		return nil, ErrStopped
	}

	root, err := cfg.ResolveRoot()
	if err != nil {
		e.finishRun(runCtx, r, schema.WorkflowStatusFailed, nil, err)
		return nil, err
	}

	if err := e.transitionRun(runCtx, r, schema.WorkflowStatusRunning, map[string]any{"root_id": root}, nil); err != nil {
		return nil, err
	}
	e.logger.InfoContext(runCtx, "workflow started", "root", root, "nodes", len(cfg.Nodes))

	ec := &ExecutionContext{
		Workflow:   cfg,
		Dispatcher: e,
		RunID:      runID,
		Logger:     e.logger,
		run:        r,
		exec:       e,
	}
	result, err := e.Dispatch(runCtx, root, ec)
	if err != nil {
		if errors.Is(err, ErrStopped) {
			e.logger.InfoContext(runCtx, "workflow stopped")
			return nil, ErrStopped
		}
		e.finishRun(runCtx, r, schema.WorkflowStatusFailed, nil, err)
		e.logger.ErrorContext(runCtx, "workflow failed", "error", err)
		return nil, err
	}

	e.finishRun(runCtx, r, schema.WorkflowStatusCompleted, result, nil)
	e.logger.InfoContext(runCtx, "workflow completed")
	return result, nil
}

func (e *WorkflowExecutor) transitionRun(ctx context.Context, r *run, to schema.WorkflowStatus, data any, cause error) error {
	r.mu.Lock()
	if err := r.wfFSM.Transition(r.id, r.state.Status, to); err != nil {
		r.mu.Unlock()
		return err
	}
	r.state.Status = to
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	r.record("", string(to), msg)
	if r.state.Terminal() {
		now := time.Now().UTC()
		r.state.FinishedAt = &now
	}
	r.mu.Unlock()

	e.emit(ctx, r, schema.WorkflowEvent{Type: workflowEventType(to), Data: data, Error: cause})
	return nil
}

func (e *WorkflowExecutor) finishRun(ctx context.Context, r *run, to schema.WorkflowStatus, result any, cause error) {
	if err := e.transitionRun(ctx, r, to, result, cause); err != nil {
		e.logger.WarnContext(ctx, "finish run", "status", string(to), "error", err)
	}
}

// Dispatch runs one node through its lifecycle and, for leaf kinds, its
// children in declaration order.
func (e *WorkflowExecutor) Dispatch(ctx context.Context, nodeID string, ec *ExecutionContext) (any, error) {
	r := e.runOf(ec)
	if r == nil {
		return nil, schema.NewError(schema.ErrCodeConfiguration, "dispatch outside of a run")
	}
	node := r.node(nodeID)
	if node == nil {
		return nil, schema.NewErrorf(schema.ErrCodeConfiguration, "unresolved node id %q", nodeID).WithNode(nodeID)
	}

	if err := e.awaitTurn(ctx); err != nil {
		return nil, err
	}

	nodeCtx := logging.WithNodeID(ctx, nodeID)

	r.mu.Lock()
	if node.Status == schema.NodeStatusCompleted {
		result := node.Result
		r.mu.Unlock()
		return result, nil
	}
	if err := r.nodeFSM.Transition(nodeID, node.Status, schema.NodeStatusRunning); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	node.Status = schema.NodeStatusRunning
	r.state.CurrentNodeID = nodeID
	r.record(nodeID, string(schema.NodeStatusRunning), "")
	r.mu.Unlock()
	e.emit(nodeCtx, r, schema.WorkflowEvent{Type: nodeEventType(schema.NodeStatusRunning), NodeID: nodeID, Data: map[string]any{"kind": string(node.Kind)}})

	exec := e.executorFor(node.Kind)
	if exec == nil {
		err := schema.NewErrorf(schema.ErrCodeConfiguration, "no executor registered for node kind %q", node.Kind).WithNode(nodeID)
		e.failNode(nodeCtx, r, node, err)
		return nil, err
	}
	if verr := exec.Validate(node); verr != nil {
		err := schema.NewErrorf(schema.ErrCodeConfiguration, "invalid %s node: %s", node.Kind, verr.Error()).
			WithNode(nodeID).WithCause(verr)
		e.failNode(nodeCtx, r, node, err)
		return nil, err
	}

	result, err := e.invoke(nodeCtx, exec, node, ec)
	if err != nil {
		if errors.Is(err, ErrStopped) || (e.stopped.Load() && errors.Is(err, context.Canceled)) {
			return nil, ErrStopped
		}
		e.failNode(nodeCtx, r, node, err)
		return nil, err
	}
	if !e.completeNode(nodeCtx, r, node, result) {
		// Abandoned by its parent's timeout while still running.
		return nil, r.nodeError(nodeID)
	}

	if node.Kind.IsComposite() || len(node.ChildIDs) == 0 {
		return result, nil
	}
	if node.Kind == schema.NodeKindCondition && conditionGated(node) && result != true {
		r.mu.Lock()
		r.record(nodeID, "skipped", "condition is false, children skipped")
		r.mu.Unlock()
		e.logger.DebugContext(nodeCtx, "condition gate closed", "children", len(node.ChildIDs))
		return result, nil
	}

	childEC := ec.WithPreviousResult(result)
	for _, childID := range node.ChildIDs {
		if _, err := e.Dispatch(ctx, childID, childEC); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (e *WorkflowExecutor) runOf(ec *ExecutionContext) *run {
	if ec != nil && ec.run != nil {
		return ec.run
	}
	return e.currentRun()
}

// awaitTurn blocks while the run is paused, then reports ErrStopped or the
// context error if the next node must not start.
func (e *WorkflowExecutor) awaitTurn(ctx context.Context) error {
	if err := e.gate.Wait(ctx); err != nil {
		if e.stopped.Load() {
			return ErrStopped
		}
		return err
	}
	if e.stopped.Load() {
		return ErrStopped
	}
	return ctx.Err()
}

// abandon fails a child its parent stopped waiting for. The child's own
// goroutine may still finish later; its outcome is then dropped.
func (e *WorkflowExecutor) abandon(ctx context.Context, ec *ExecutionContext, nodeID string, cause error) {
	r := e.runOf(ec)
	if r == nil {
		return
	}
	node := r.node(nodeID)
	if node == nil {
		return
	}
	e.failNode(logging.WithNodeID(ctx, nodeID), r, node, cause)
}

func (e *WorkflowExecutor) invoke(ctx context.Context, exec NodeExecutor, node *schema.Node, ec *ExecutionContext) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = schema.NewErrorf(schema.ErrCodeExecution, "node panicked: %v", rec).
				WithNode(node.ID).
				WithDetails(map[string]any{"stack": string(debug.Stack())})
		}
	}()
	return exec.Execute(ctx, node, ec)
}

// completeNode records result unless the node already reached a terminal
// status, and reports whether it did.
func (e *WorkflowExecutor) completeNode(ctx context.Context, r *run, node *schema.Node, result any) bool {
	r.mu.Lock()
	if nodeTerminal(node.Status) {
		r.mu.Unlock()
		e.logger.DebugContext(ctx, "late node result dropped", "status", string(node.Status))
		return false
	}
	if err := r.nodeFSM.Transition(node.ID, node.Status, schema.NodeStatusCompleted); err != nil {
		r.mu.Unlock()
		e.logger.WarnContext(ctx, "complete node", "error", err)
		return false
	}
	node.Status = schema.NodeStatusCompleted
	node.Result = result
	r.state.CompletedNodeIDs = append(r.state.CompletedNodeIDs, node.ID)
	r.record(node.ID, string(schema.NodeStatusCompleted), "")
	r.mu.Unlock()

	e.emit(ctx, r, schema.WorkflowEvent{Type: nodeEventType(schema.NodeStatusCompleted), NodeID: node.ID, Data: result})
	e.logger.DebugContext(ctx, "node completed", "kind", string(node.Kind))
	return true
}

func (e *WorkflowExecutor) failNode(ctx context.Context, r *run, node *schema.Node, cause error) {
	r.mu.Lock()
	if nodeTerminal(node.Status) {
		r.mu.Unlock()
		e.logger.DebugContext(ctx, "late node failure dropped", "status", string(node.Status), "error", cause)
		return
	}
	if err := r.nodeFSM.Transition(node.ID, node.Status, schema.NodeStatusFailed); err != nil {
		r.mu.Unlock()
		e.logger.WarnContext(ctx, "fail node", "error", err)
		return
	}
	node.Status = schema.NodeStatusFailed
	node.Result = cause
	r.state.FailedNodeIDs = append(r.state.FailedNodeIDs, node.ID)
	r.record(node.ID, string(schema.NodeStatusFailed), cause.Error())
	r.mu.Unlock()

	e.emit(ctx, r, schema.WorkflowEvent{Type: nodeEventType(schema.NodeStatusFailed), NodeID: node.ID, Error: cause})
	e.logger.WarnContext(ctx, "node failed", "kind", string(node.Kind), "error", cause)
}

func (e *WorkflowExecutor) emit(ctx context.Context, r *run, evt schema.WorkflowEvent) {
	evt.Timestamp = time.Now().UTC()
	evt.WorkflowID = r.cfg.ID
	evt.RunID = r.id
	if evt.Error != nil {
		evt.ErrorMessage = evt.Error.Error()
	}
	if err := e.hub.Publish(context.WithoutCancel(ctx), evt); err != nil {
		e.logger.DebugContext(ctx, "publish event", "type", string(evt.Type), "error", err)
	}
}

func (e *WorkflowExecutor) currentRun() *run {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

func (e *WorkflowExecutor) activeRun() *run {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return nil
	}
	return e.current
}

// Pause closes the gate: the node in flight keeps running and dispatch
// blocks before the next node starts.
func (e *WorkflowExecutor) Pause() {
	if !e.gate.Close() {
		return
	}
	if r := e.activeRun(); r != nil {
		e.markControl(r, func(s *WorkflowState) { s.Paused = true }, "paused", schema.EventWorkflowPause)
	}
}

// Resume opens the gate. Blocked dispatch continues at the node it was
// about to start.
func (e *WorkflowExecutor) Resume() {
	if !e.gate.Open() {
		return
	}
	if r := e.activeRun(); r != nil {
		e.markControl(r, func(s *WorkflowState) { s.Paused = false }, "resumed", schema.EventWorkflowResume)
	}
}

// Stop halts the active run: in-flight leaf work sees its context cancelled
// and no further node starts. The state status is left as is. Called with no
// run active, Stop applies to the next run, which then starts no node.
func (e *WorkflowExecutor) Stop() {
	e.mu.Lock()
	e.stopped.Store(true)
	if !e.active {
		e.stopPending = true
	}
	cancel := e.cancel
	r := e.current
	active := e.active
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if r != nil && active {
		e.markControl(r, func(s *WorkflowState) { s.Stopped = true }, "stopped", schema.EventWorkflowStop)
	}
}

// Stopped reports whether the latest run was stopped, or a Stop is waiting
// for the next one.
func (e *WorkflowExecutor) Stopped() bool {
	return e.stopped.Load()
}

// Paused reports whether the pause gate is closed.
func (e *WorkflowExecutor) Paused() bool {
	return e.gate.IsClosed()
}

func (e *WorkflowExecutor) markControl(r *run, apply func(*WorkflowState), status string, evt schema.EventType) {
	r.mu.Lock()
	apply(&r.state)
	r.record("", status, "")
	r.mu.Unlock()

	ctx := logging.WithIDs(context.Background(), r.cfg.ID, "", r.id)
	e.emit(ctx, r, schema.WorkflowEvent{Type: evt})
	e.logger.InfoContext(ctx, "workflow control", "action", status)
}

// State returns a deep-copied snapshot of the latest run's state.
func (e *WorkflowExecutor) State() WorkflowState {
	r := e.currentRun()
	if r == nil {
		return WorkflowState{
			Status:           schema.WorkflowStatusPending,
			CompletedNodeIDs: []string{},
			FailedNodeIDs:    []string{},
			History:          []HistoryEntry{},
			Paused:           e.gate.IsClosed(),
		}
	}
	return r.snapshot()
}

// Node returns a copy of the latest run's node with its status and result.
func (e *WorkflowExecutor) Node(id string) (*schema.Node, bool) {
	r := e.currentRun()
	if r == nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if !ok {
		return nil, false
	}
	return n.Clone(), true
}

// Subscribe streams this executor's lifecycle events matching filter.
func (e *WorkflowExecutor) Subscribe(ctx context.Context, filter streaming.EventFilter) (<-chan schema.WorkflowEvent, func(), error) {
	return e.hub.Subscribe(ctx, filter)
}

func conditionGated(node *schema.Node) bool {
	section, err := node.Section(string(schema.NodeKindCondition))
	if err != nil {
		return false
	}
	gated, _ := section["gate"].(bool)
	return gated
}
