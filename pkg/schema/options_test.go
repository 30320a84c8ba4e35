package schema

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSequenceOptions_Defaults(t *testing.T) {
	opts, err := ParseSequenceOptions(map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, ErrorStrategyFailFast, opts.ErrorStrategy)
	assert.Zero(t, opts.Timeout)
	assert.False(t, opts.PassPreviousResult)
}

func TestParseSequenceOptions_Values(t *testing.T) {
	opts, err := ParseSequenceOptions(map[string]any{
		"errorStrategy":      "ignore",
		"timeout":            float64(250),
		"passPreviousResult": true,
	})
	require.NoError(t, err)
	assert.Equal(t, ErrorStrategyIgnore, opts.ErrorStrategy)
	assert.Equal(t, 250*time.Millisecond, opts.Timeout)
	assert.True(t, opts.PassPreviousResult)
}

func TestParseSequenceOptions_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		section map[string]any
	}{
		{"unknown strategy", map[string]any{"errorStrategy": "retry"}},
		{"strategy not string", map[string]any{"errorStrategy": 3}},
		{"negative timeout", map[string]any{"timeout": -1}},
		{"fractional timeout", map[string]any{"timeout": 1.5}},
		{"bad duration", map[string]any{"timeout": "soon"}},
		{"pass previous not bool", map[string]any{"passPreviousResult": "yes"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseSequenceOptions(tc.section)
			require.Error(t, err)
			assert.Equal(t, ErrCodeValidation, CodeOf(err))
		})
	}
}

func TestParseParallelOptions(t *testing.T) {
	opts, err := ParseParallelOptions(map[string]any{
		"maxConcurrency": json.Number("2"),
		"errorStrategy":  "continue",
		"timeout":        "1s",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, opts.MaxConcurrency)
	assert.Equal(t, ErrorStrategyContinue, opts.ErrorStrategy)
	assert.Equal(t, time.Second, opts.Timeout)

	_, err = ParseParallelOptions(map[string]any{"maxConcurrency": -2})
	require.Error(t, err)
}

func TestParseConditionOptions_ExactlyOneSource(t *testing.T) {
	_, err := ParseConditionOptions(map[string]any{})
	require.Error(t, err)

	_, err = ParseConditionOptions(map[string]any{
		"predicate":  "always",
		"expression": "true",
	})
	require.Error(t, err)

	opts, err := ParseConditionOptions(map[string]any{
		"expression": "params.count > 2",
		"language":   "cel",
		"params":     map[string]any{"count": 3},
		"gate":       true,
	})
	require.NoError(t, err)
	assert.Equal(t, "params.count > 2", opts.Expression)
	assert.Equal(t, "cel", opts.Language)
	assert.True(t, opts.Gate)
	assert.Equal(t, 3, opts.Params["count"])
}

func TestNodeSection(t *testing.T) {
	n := &Node{ID: "seq", Config: map[string]any{"sequence": map[string]any{"errorStrategy": "ignore"}}}
	sec, err := n.Section("sequence")
	require.NoError(t, err)
	assert.Equal(t, "ignore", sec["errorStrategy"])

	sec, err = n.Section("parallel")
	require.NoError(t, err)
	assert.Empty(t, sec)

	n.Config["parallel"] = "nope"
	_, err = n.Section("parallel")
	require.Error(t, err)
}

func TestNodeClone_Independent(t *testing.T) {
	n := &Node{ID: "a", ChildIDs: []string{"b"}, Config: map[string]any{"k": 1}}
	cp := n.Clone()
	cp.ChildIDs[0] = "c"
	cp.Config["k"] = 2
	cp.Status = NodeStatusCompleted

	assert.Equal(t, "b", n.ChildIDs[0])
	assert.Equal(t, 1, n.Config["k"])
	assert.Empty(t, n.Status)
}

func TestParseWorkflowConfig(t *testing.T) {
	cfg, err := ParseWorkflowConfig([]byte(`{
		"id": "wf", "name": "demo", "version": "1",
		"nodes": [
			{"id": "root", "kind": "sequence", "child_ids": ["a"]},
			{"id": "a", "kind": "action", "parent_id": "root", "config": {"action": "sleep"}}
		]
	}`))
	require.NoError(t, err)
	require.Len(t, cfg.Nodes, 2)
	assert.Equal(t, NodeKindSequence, cfg.Node("root").Kind)
	assert.Equal(t, "root", cfg.Node("a").ParentID)
	assert.Nil(t, cfg.Node("missing"))

	_, err = ParseWorkflowConfig([]byte(`{"nodes": [null]}`))
	require.Error(t, err)
}

func TestResolveRoot(t *testing.T) {
	tests := []struct {
		name    string
		cfg     WorkflowConfig
		want    string
		wantErr bool
	}{
		{
			name: "single parentless node",
			cfg: WorkflowConfig{Nodes: []*Node{
				{ID: "root", ChildIDs: []string{"a"}},
				{ID: "a", ParentID: "root"},
			}},
			want: "root",
		},
		{
			name: "child without parent id is not a root",
			cfg: WorkflowConfig{Nodes: []*Node{
				{ID: "root", ChildIDs: []string{"a"}},
				{ID: "a"},
			}},
			want: "root",
		},
		{
			name: "explicit root id wins",
			cfg: WorkflowConfig{RootID: "b", Nodes: []*Node{
				{ID: "a"}, {ID: "b"},
			}},
			want: "b",
		},
		{
			name:    "ambiguous",
			cfg:     WorkflowConfig{Nodes: []*Node{{ID: "a"}, {ID: "b"}}},
			wantErr: true,
		},
		{
			name:    "empty",
			cfg:     WorkflowConfig{},
			wantErr: true,
		},
		{
			name:    "unknown root id",
			cfg:     WorkflowConfig{RootID: "x", Nodes: []*Node{{ID: "a"}}},
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.cfg.ResolveRoot()
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, IsConfigurationError(err))
				assert.Contains(t, err.Error(), "no start node")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
