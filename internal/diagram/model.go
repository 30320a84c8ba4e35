package diagram

import (
	"strconv"

	"github.com/rendis/nodeflow/pkg/schema"
)

// Statuses shown on diagram nodes. The first four mirror schema.NodeStatus.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// Model is the intermediate representation used by all renderers.
type Model struct {
	Title string
	Root  *Node
}

// Node is one workflow node in the diagram tree.
type Node struct {
	ID       string
	Label    string
	Kind     schema.NodeKind
	Detail   string // action or role name, condition predicate or expression
	Status   string // empty when no run state was overlaid
	Children []*Node
}

// Edge links a parent to one of its children.
type Edge struct {
	From  string
	To    string
	Label string
}

// Walk visits every node depth-first in child order.
func (m *Model) Walk(fn func(n *Node, depth int)) {
	if m == nil || m.Root == nil {
		return
	}
	var visit func(n *Node, depth int)
	visit = func(n *Node, depth int) {
		fn(n, depth)
		for _, c := range n.Children {
			visit(c, depth+1)
		}
	}
	visit(m.Root, 0)
}

// Edges returns parent to child edges. Sequence children are numbered in
// execution order and condition children are labelled "then".
func (m *Model) Edges() []Edge {
	var edges []Edge
	m.Walk(func(n *Node, _ int) {
		for i, c := range n.Children {
			e := Edge{From: n.ID, To: c.ID}
			switch n.Kind {
			case schema.NodeKindSequence:
				e.Label = strconv.Itoa(i + 1)
			case schema.NodeKindCondition:
				e.Label = "then"
			}
			edges = append(edges, e)
		}
	})
	return edges
}
