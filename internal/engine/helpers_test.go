package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rendis/nodeflow/internal/streaming"
	"github.com/rendis/nodeflow/pkg/schema"
)

// --- Mock implementations ---

type scriptFn func(ctx context.Context, ec *ExecutionContext) (any, error)

// scriptedExecutor runs action nodes from per-node scripts. Nodes without a
// script return their own ID.
type scriptedExecutor struct {
	statusTracker

	mu          sync.Mutex
	scripts     map[string]scriptFn
	calls       []string
	validateErr error
}

func newScriptedExecutor() *scriptedExecutor {
	return &scriptedExecutor{scripts: make(map[string]scriptFn)}
}

func (s *scriptedExecutor) on(nodeID string, fn scriptFn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[nodeID] = fn
}

func (s *scriptedExecutor) Validate(_ *schema.Node) error {
	return s.validateErr
}

func (s *scriptedExecutor) Execute(ctx context.Context, node *schema.Node, ec *ExecutionContext) (any, error) {
	s.begin()
	s.mu.Lock()
	s.calls = append(s.calls, node.ID)
	fn := s.scripts[node.ID]
	s.mu.Unlock()
	if fn == nil {
		return s.finish(node.ID, nil)
	}
	return s.finish(fn(ctx, ec))
}

func (s *scriptedExecutor) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *scriptedExecutor) called(nodeID string) bool {
	for _, c := range s.Calls() {
		if c == nodeID {
			return true
		}
	}
	return false
}

func fail(err error) scriptFn {
	return func(context.Context, *ExecutionContext) (any, error) { return nil, err }
}

func returns(v any) scriptFn {
	return func(context.Context, *ExecutionContext) (any, error) { return v, nil }
}

func sleeps(d time.Duration, v any) scriptFn {
	return func(ctx context.Context, _ *ExecutionContext) (any, error) {
		select {
		case <-time.After(d):
			return v, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// blocksUntilCancelled signals started and waits for its context.
func blocksUntilCancelled(started chan<- struct{}) scriptFn {
	return func(ctx context.Context, _ *ExecutionContext) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

// --- Helper to create a test executor ---

type testEnv struct {
	hub      *streaming.MemoryHub
	leaf     *scriptedExecutor
	roles    *RoleRegistry
	executor *WorkflowExecutor
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	hub := streaming.NewMemoryHubWithBuffer(256)
	exec := NewWorkflowExecutor(ExecutorConfig{Logger: discardLogger(), Hub: hub})
	leaf := newScriptedExecutor()
	roles := NewRoleRegistry()

	require.NoError(t, exec.RegisterNodeExecutor(schema.NodeKindAction, leaf))
	require.NoError(t, exec.RegisterNodeExecutor(schema.NodeKindSequence, NewSequenceExecutor()))
	require.NoError(t, exec.RegisterNodeExecutor(schema.NodeKindParallel, NewParallelExecutor()))
	require.NoError(t, exec.RegisterNodeExecutor(schema.NodeKindCondition, NewConditionExecutor(nil, nil)))
	require.NoError(t, exec.RegisterNodeExecutor(schema.NodeKindRole, NewRoleExecutor(roles)))

	return &testEnv{hub: hub, leaf: leaf, roles: roles, executor: exec}
}

// subscribe collects every event of the executor until the returned func is
// called, which then yields the collected events.
func (te *testEnv) subscribe(t *testing.T) func() []schema.WorkflowEvent {
	t.Helper()
	ch, cancel, err := te.executor.Subscribe(context.Background(), streaming.EventFilter{})
	require.NoError(t, err)

	var (
		mu     sync.Mutex
		events []schema.WorkflowEvent
		done   = make(chan struct{})
	)
	go func() {
		defer close(done)
		for evt := range ch {
			mu.Lock()
			events = append(events, evt)
			mu.Unlock()
		}
	}()
	return func() []schema.WorkflowEvent {
		time.Sleep(20 * time.Millisecond)
		cancel()
		<-done
		mu.Lock()
		defer mu.Unlock()
		return events
	}
}

func eventTypes(events []schema.WorkflowEvent) []schema.EventType {
	out := make([]schema.EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

// --- Workflow builders ---

func actionNode(id string, children ...string) *schema.Node {
	return &schema.Node{ID: id, Kind: schema.NodeKindAction, ChildIDs: children}
}

func sequenceNode(id string, section map[string]any, children ...string) *schema.Node {
	return compositeNode(id, schema.NodeKindSequence, section, children)
}

func parallelNode(id string, section map[string]any, children ...string) *schema.Node {
	return compositeNode(id, schema.NodeKindParallel, section, children)
}

func compositeNode(id string, kind schema.NodeKind, section map[string]any, children []string) *schema.Node {
	n := &schema.Node{ID: id, Kind: kind, ChildIDs: children}
	if section != nil {
		n.Config = map[string]any{string(kind): section}
	}
	return n
}

func conditionNode(id string, section map[string]any, children ...string) *schema.Node {
	return compositeNode(id, schema.NodeKindCondition, section, children)
}

func workflow(root string, nodes ...*schema.Node) *schema.WorkflowConfig {
	byID := make(map[string]*schema.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	for _, n := range nodes {
		for _, c := range n.ChildIDs {
			if child, ok := byID[c]; ok {
				child.ParentID = n.ID
			}
		}
	}
	return &schema.WorkflowConfig{
		ID:      "wf-test",
		Name:    "test",
		Version: "1",
		RootID:  root,
		Nodes:   nodes,
	}
}
