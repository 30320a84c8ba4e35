package diagram

import (
	"github.com/rendis/nodeflow/internal/engine"
	"github.com/rendis/nodeflow/pkg/schema"
)

// Build constructs a Model from a workflow config, starting at its resolved
// root. When state is non-nil each node carries its latest run status, and
// children of a closed condition gate are marked skipped.
func Build(cfg *schema.WorkflowConfig, state *engine.WorkflowState) (*Model, error) {
	if cfg == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "diagram: workflow config is nil")
	}
	rootID, err := cfg.ResolveRoot()
	if err != nil {
		return nil, err
	}

	statuses, gated := overlay(state)
	visiting := make(map[string]bool, len(cfg.Nodes))

	var build func(id string, skipped bool) (*Node, error)
	build = func(id string, skipped bool) (*Node, error) {
		src := cfg.Node(id)
		if src == nil {
			return nil, schema.NewErrorf(schema.ErrCodeConfiguration, "diagram: node %q not found", id)
		}
		if visiting[id] {
			return nil, schema.NewErrorf(schema.ErrCodeConfiguration, "diagram: cycle through node %q", id).WithNode(id)
		}
		visiting[id] = true
		defer delete(visiting, id)

		n := &Node{
			ID:     src.ID,
			Label:  nodeLabel(src),
			Kind:   src.Kind,
			Detail: nodeDetail(src),
			Status: statuses[id],
		}
		if skipped && n.Status == "" {
			n.Status = StatusSkipped
		}
		childSkipped := skipped || gated[id]
		for _, childID := range src.ChildIDs {
			child, err := build(childID, childSkipped)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, child)
		}
		return n, nil
	}

	root, err := build(rootID, false)
	if err != nil {
		return nil, err
	}
	return &Model{Title: titleFromConfig(cfg), Root: root}, nil
}

// overlay reduces a run's history to the last status per node, plus the set
// of condition nodes whose gate closed.
func overlay(state *engine.WorkflowState) (map[string]string, map[string]bool) {
	statuses := make(map[string]string)
	gated := make(map[string]bool)
	if state == nil {
		return statuses, gated
	}
	for _, h := range state.History {
		if h.NodeID == "" {
			continue
		}
		if h.Status == StatusSkipped {
			gated[h.NodeID] = true
			continue
		}
		statuses[h.NodeID] = h.Status
	}
	return statuses, gated
}

func nodeLabel(n *schema.Node) string {
	if n.Name != "" {
		return n.Name
	}
	return n.ID
}

// nodeDetail names what the node runs, when the config says so by name.
func nodeDetail(n *schema.Node) string {
	switch n.Kind {
	case schema.NodeKindAction:
		name, _ := n.Config["action"].(string)
		return name
	case schema.NodeKindRole:
		name, _ := n.Config["role"].(string)
		return name
	case schema.NodeKindCondition:
		section, err := n.Section(string(schema.NodeKindCondition))
		if err != nil {
			return ""
		}
		if p, ok := section["predicate"].(string); ok && p != "" {
			return p
		}
		expr, _ := section["expression"].(string)
		return expr
	}
	return ""
}

func titleFromConfig(cfg *schema.WorkflowConfig) string {
	title := cfg.Name
	if title == "" {
		title = cfg.ID
	}
	if cfg.Version != "" && title != "" {
		title += " v" + cfg.Version
	}
	return title
}
