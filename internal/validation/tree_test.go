package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/nodeflow/pkg/schema"
)

func treeOf(rootID string, nodes ...*schema.Node) *schema.ValidationResult {
	return validateTree(&schema.WorkflowConfig{RootID: rootID, Nodes: nodes})
}

func TestTree_Valid(t *testing.T) {
	result := treeOf("",
		&schema.Node{ID: "root", ChildIDs: []string{"a", "b"}},
		&schema.Node{ID: "a", ParentID: "root", ChildIDs: []string{"c"}},
		&schema.Node{ID: "b", ParentID: "root"},
		&schema.Node{ID: "c"},
	)
	assert.True(t, result.Valid(), "%+v", result.Errors)
	assert.Empty(t, result.Warnings)
}

func TestTree_DuplicateID(t *testing.T) {
	result := treeOf("",
		&schema.Node{ID: "a"},
		&schema.Node{ID: "a"},
	)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0].Message, `duplicate node id "a"`)
}

func TestTree_DanglingChild(t *testing.T) {
	result := treeOf("", &schema.Node{ID: "root", ChildIDs: []string{"ghost"}})
	require.Len(t, result.Errors, 1)
	assert.Equal(t, schema.ErrCodeConfiguration, result.Errors[0].Code)
	assert.Equal(t, "nodes[0].child_ids[0]", result.Errors[0].Path)
}

func TestTree_DanglingParent(t *testing.T) {
	result := treeOf("root",
		&schema.Node{ID: "root"},
		&schema.Node{ID: "a", ParentID: "ghost"},
	)
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, "nodes[1].parent_id", result.Errors[0].Path)
}

func TestTree_TwoParents(t *testing.T) {
	result := treeOf("",
		&schema.Node{ID: "root", ChildIDs: []string{"a", "b"}},
		&schema.Node{ID: "a", ChildIDs: []string{"c"}},
		&schema.Node{ID: "b", ChildIDs: []string{"c"}},
		&schema.Node{ID: "c"},
	)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "two parents")
}

func TestTree_ParentMismatch(t *testing.T) {
	result := treeOf("",
		&schema.Node{ID: "root", ChildIDs: []string{"a", "b"}},
		&schema.Node{ID: "a"},
		&schema.Node{ID: "b", ParentID: "a"},
	)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, `declares parent "a"`)
}

func TestTree_Cycle(t *testing.T) {
	result := treeOf("",
		&schema.Node{ID: "a", ChildIDs: []string{"b"}},
		&schema.Node{ID: "b", ChildIDs: []string{"a"}},
	)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, schema.ErrCodeCycleDetected, result.Errors[0].Code)
}

func TestTree_SelfCycle(t *testing.T) {
	result := treeOf("", &schema.Node{ID: "a", ChildIDs: []string{"a"}})
	require.Len(t, result.Errors, 1)
	assert.Equal(t, schema.ErrCodeCycleDetected, result.Errors[0].Code)
}

func TestTree_AmbiguousRoot(t *testing.T) {
	result := treeOf("", &schema.Node{ID: "a"}, &schema.Node{ID: "b"})
	require.Len(t, result.Errors, 1)
	assert.Equal(t, schema.ErrCodeConfiguration, result.Errors[0].Code)
	assert.Equal(t, "root_id", result.Errors[0].Path)
}

func TestTree_UnreachableWarning(t *testing.T) {
	result := treeOf("root",
		&schema.Node{ID: "root", ChildIDs: []string{"a"}},
		&schema.Node{ID: "a"},
		&schema.Node{ID: "orphan"},
	)
	assert.True(t, result.Valid())
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0].Message, `"orphan" is unreachable`)
}
