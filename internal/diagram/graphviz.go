package diagram

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

var skippedStyle = cgraph.NodeStyle(string(cgraph.FilledNodeStyle) + "," + string(cgraph.DashedNodeStyle))

// RenderImage lays the model out with dot and returns it as PNG bytes.
func RenderImage(ctx context.Context, model *Model) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("diagram: start graphviz: %w", err)
	}
	defer gv.Close()
	gv.SetLayout(graphviz.DOT)

	graph, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("diagram: new graph: %w", err)
	}
	defer graph.Close()
	graph.SetRankDir(cgraph.TBRank)
	if model.Title != "" {
		graph.SetLabel(model.Title)
	}

	nodes := make(map[string]*cgraph.Node)
	if model.Root != nil {
		if err := addGraphNode(graph, model.Root, nodes); err != nil {
			return nil, err
		}
	}
	for _, e := range model.Edges() {
		edge, err := graph.CreateEdgeByName("", nodes[e.From], nodes[e.To])
		if err != nil {
			return nil, fmt.Errorf("diagram: edge %s -> %s: %w", e.From, e.To, err)
		}
		if e.Label != "" {
			edge.SetLabel(e.Label)
		}
	}

	var out bytes.Buffer
	if err := gv.Render(ctx, graph, graphviz.PNG, &out); err != nil {
		return nil, fmt.Errorf("diagram: render png: %w", err)
	}
	return out.Bytes(), nil
}

// addGraphNode creates n and its subtree, recording each graphviz node by id.
func addGraphNode(graph *cgraph.Graph, n *Node, nodes map[string]*cgraph.Node) error {
	gn, err := graph.CreateNodeByName(n.ID)
	if err != nil {
		return fmt.Errorf("diagram: node %s: %w", n.ID, err)
	}
	nodes[n.ID] = gn

	label := firstLine(n.Label)
	if n.Detail != "" {
		label += "\n" + firstLine(n.Detail)
	}
	gn.SetLabel(label)
	gn.SetShape(shapeOf(n.Kind).gv)

	if st, ok := palette[n.Status]; ok {
		gn.SetStyle(cgraph.FilledNodeStyle)
		if st.dashed {
			gn.SetStyle(skippedStyle)
		}
		gn.SetFillColor(st.fill)
		gn.SetColor(st.stroke)
		gn.SetFontColor(st.font)
	}

	for _, child := range n.Children {
		if err := addGraphNode(graph, child, nodes); err != nil {
			return err
		}
	}
	return nil
}
