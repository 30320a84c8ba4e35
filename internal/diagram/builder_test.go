package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/nodeflow/internal/engine"
	"github.com/rendis/nodeflow/pkg/schema"
)

// --- Test workflow builders ---

func pipelineConfig() *schema.WorkflowConfig {
	return &schema.WorkflowConfig{
		ID:      "etl",
		Name:    "ETL Pipeline",
		Version: "1.0.0",
		Nodes: []*schema.Node{
			{ID: "root", Kind: schema.NodeKindSequence, ChildIDs: []string{"fetch", "check", "fan-out"}},
			{ID: "fetch", Name: "Fetch data", Kind: schema.NodeKindAction, ParentID: "root",
				Config: map[string]any{"action": "expr.eval"}},
			{ID: "check", Kind: schema.NodeKindCondition, ParentID: "root", ChildIDs: []string{"notify"},
				Config: map[string]any{"condition": map[string]any{"expression": "previous > 5", "gate": true}}},
			{ID: "notify", Kind: schema.NodeKindAction, ParentID: "check",
				Config: map[string]any{"action": "log"}},
			{ID: "fan-out", Kind: schema.NodeKindParallel, ParentID: "root", ChildIDs: []string{"a", "b"}},
			{ID: "a", Kind: schema.NodeKindRole, ParentID: "fan-out", Config: map[string]any{"role": "writer"}},
			{ID: "b", Kind: schema.NodeKindAction, ParentID: "fan-out", Config: map[string]any{"action": "log"}},
		},
	}
}

func history(entries ...[2]string) *engine.WorkflowState {
	st := &engine.WorkflowState{}
	for _, e := range entries {
		st.History = append(st.History, engine.HistoryEntry{NodeID: e[0], Status: e[1]})
	}
	return st
}

// --- Tests ---

func TestBuildTree(t *testing.T) {
	model, err := Build(pipelineConfig(), nil)
	require.NoError(t, err)

	assert.Equal(t, "ETL Pipeline v1.0.0", model.Title)
	require.NotNil(t, model.Root)
	assert.Equal(t, "root", model.Root.ID)
	require.Len(t, model.Root.Children, 3)

	fetch := model.Root.Children[0]
	assert.Equal(t, "Fetch data", fetch.Label)
	assert.Equal(t, "expr.eval", fetch.Detail)
	assert.Empty(t, fetch.Status)

	check := model.Root.Children[1]
	assert.Equal(t, "previous > 5", check.Detail)
	require.Len(t, check.Children, 1)

	fan := model.Root.Children[2]
	require.Len(t, fan.Children, 2)
	assert.Equal(t, "writer", fan.Children[0].Detail)

	var order []string
	model.Walk(func(n *Node, _ int) { order = append(order, n.ID) })
	assert.Equal(t, []string{"root", "fetch", "check", "notify", "fan-out", "a", "b"}, order)
}

func TestBuildEdges(t *testing.T) {
	model, err := Build(pipelineConfig(), nil)
	require.NoError(t, err)

	edges := model.Edges()
	assert.Contains(t, edges, Edge{From: "root", To: "fetch", Label: "1"})
	assert.Contains(t, edges, Edge{From: "root", To: "fan-out", Label: "3"})
	assert.Contains(t, edges, Edge{From: "check", To: "notify", Label: "then"})
	assert.Contains(t, edges, Edge{From: "fan-out", To: "a"})
	assert.Len(t, edges, 6)
}

func TestBuildWithStateOverlay(t *testing.T) {
	state := history(
		[2]string{"root", "running"},
		[2]string{"fetch", "running"},
		[2]string{"fetch", "completed"},
		[2]string{"check", "running"},
		[2]string{"check", "completed"},
		[2]string{"check", "skipped"},
		[2]string{"fan-out", "running"},
		[2]string{"a", "failed"},
	)
	model, err := Build(pipelineConfig(), state)
	require.NoError(t, err)

	statuses := map[string]string{}
	model.Walk(func(n *Node, _ int) { statuses[n.ID] = n.Status })

	assert.Equal(t, StatusRunning, statuses["root"])
	assert.Equal(t, StatusCompleted, statuses["fetch"])
	assert.Equal(t, StatusCompleted, statuses["check"], "a closed gate keeps the condition's own status")
	assert.Equal(t, StatusSkipped, statuses["notify"])
	assert.Equal(t, StatusFailed, statuses["a"])
	assert.Empty(t, statuses["b"])
}

func TestBuildErrors(t *testing.T) {
	_, err := Build(nil, nil)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))

	missing := &schema.WorkflowConfig{ID: "w", Nodes: []*schema.Node{
		{ID: "root", Kind: schema.NodeKindSequence, ChildIDs: []string{"ghost"}},
	}}
	_, err = Build(missing, nil)
	assert.Equal(t, schema.ErrCodeConfiguration, schema.CodeOf(err))

	cyclic := &schema.WorkflowConfig{ID: "w", RootID: "a", Nodes: []*schema.Node{
		{ID: "a", Kind: schema.NodeKindSequence, ChildIDs: []string{"b"}},
		{ID: "b", Kind: schema.NodeKindSequence, ChildIDs: []string{"a"}},
	}}
	_, err = Build(cyclic, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}
