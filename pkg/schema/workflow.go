package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// NodeKind enumerates the kinds of nodes in a workflow tree.
type NodeKind string

const (
	NodeKindAction    NodeKind = "action"
	NodeKindRole      NodeKind = "role"
	NodeKindCondition NodeKind = "condition"
	NodeKindParallel  NodeKind = "parallel"
	NodeKindSequence  NodeKind = "sequence"
)

// Valid reports whether k is one of the closed set of node kinds.
func (k NodeKind) Valid() bool {
	switch k {
	case NodeKindAction, NodeKindRole, NodeKindCondition, NodeKindParallel, NodeKindSequence:
		return true
	}
	return false
}

// IsComposite reports whether nodes of this kind drive their own children.
func (k NodeKind) IsComposite() bool {
	return k == NodeKindSequence || k == NodeKindParallel
}

// Node is a single typed unit of work in the workflow tree.
type Node struct {
	ID       string         `json:"id"`
	Name     string         `json:"name,omitempty"`
	Kind     NodeKind       `json:"kind"`
	Config   map[string]any `json:"config,omitempty"`
	Status   NodeStatus     `json:"status,omitempty"`
	Result   any            `json:"result,omitempty"`
	ParentID string         `json:"parent_id,omitempty"`
	ChildIDs []string       `json:"child_ids,omitempty"`
}

// Clone returns a copy of the node that shares no slices or top-level maps
// with the original. Config values themselves (roles, handlers) are shared.
func (n *Node) Clone() *Node {
	cp := *n
	if n.Config != nil {
		cp.Config = make(map[string]any, len(n.Config))
		for k, v := range n.Config {
			cp.Config[k] = v
		}
	}
	cp.ChildIDs = append([]string(nil), n.ChildIDs...)
	return &cp
}

// Section returns the kind-specific config map stored under key, e.g.
// Config["sequence"]. A missing section yields an empty map.
func (n *Node) Section(key string) (map[string]any, error) {
	raw, ok := n.Config[key]
	if !ok || raw == nil {
		return map[string]any{}, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, NewErrorf(ErrCodeValidation, "config.%s must be an object, got %T", key, raw).WithNode(n.ID)
	}
	return m, nil
}

// WorkflowConfig is the immutable input to a workflow run.
type WorkflowConfig struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Version     string         `json:"version"`
	RootID      string         `json:"root_id,omitempty"`
	Nodes       []*Node        `json:"nodes"`
	Config      map[string]any `json:"config,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Node returns the config node with the given ID, or nil.
func (c *WorkflowConfig) Node(id string) *Node {
	for _, n := range c.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// ResolveRoot returns the ID of the node execution starts from: RootID when
// set, otherwise the single node that has no parent and is nobody's child.
func (c *WorkflowConfig) ResolveRoot() (string, error) {
	if c.RootID != "" {
		if c.Node(c.RootID) == nil {
			return "", NewErrorf(ErrCodeConfiguration, "no start node: root_id %q does not match any node", c.RootID)
		}
		return c.RootID, nil
	}

	referenced := make(map[string]bool, len(c.Nodes))
	for _, n := range c.Nodes {
		for _, child := range n.ChildIDs {
			referenced[child] = true
		}
	}
	var roots []string
	for _, n := range c.Nodes {
		if n.ParentID == "" && !referenced[n.ID] {
			roots = append(roots, n.ID)
		}
	}
	switch len(roots) {
	case 1:
		return roots[0], nil
	case 0:
		return "", NewError(ErrCodeConfiguration, "no start node: every node has a parent")
	default:
		return "", NewErrorf(ErrCodeConfiguration, "no start node: %d parentless nodes (%s), set root_id",
			len(roots), strings.Join(roots, ", ")).
			WithDetails(map[string]any{"candidates": roots})
	}
}

// ConditionFunc is the context-aware handler form accepted by condition nodes.
type ConditionFunc func(ctx context.Context, params map[string]any) (bool, error)

// ParseWorkflowConfig decodes a JSON workflow document.
func ParseWorkflowConfig(data []byte) (*WorkflowConfig, error) {
	var cfg WorkflowConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, NewErrorf(ErrCodeValidation, "decode workflow config: %s", err.Error()).WithCause(err)
	}
	for i, n := range cfg.Nodes {
		if n == nil {
			return nil, NewErrorf(ErrCodeValidation, "nodes[%d] is null", i)
		}
	}
	return &cfg, nil
}

// Message is what a role produces from one observe/think/act cycle.
type Message struct {
	Role     string         `json:"role"`
	Content  string         `json:"content"`
	CauseBy  string         `json:"cause_by,omitempty"`
	SentFrom string         `json:"sent_from,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (m *Message) String() string {
	return fmt.Sprintf("%s: %s", m.Role, m.Content)
}
