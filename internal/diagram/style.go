package diagram

import (
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/rendis/nodeflow/pkg/schema"
)

// statusStyle is how one status is painted in both Mermaid and graphviz.
type statusStyle struct {
	fill   string
	stroke string
	font   string
	dashed bool
}

// statusOrder fixes the order classDefs are emitted in.
var statusOrder = []string{StatusCompleted, StatusFailed, StatusRunning, StatusPending, StatusSkipped}

var palette = map[string]statusStyle{
	StatusCompleted: {fill: "#2d6a2d", stroke: "#1a4a1a", font: "#ffffff"},
	StatusFailed:    {fill: "#8b1a1a", stroke: "#5c0e0e", font: "#ffffff"},
	StatusRunning:   {fill: "#1a5276", stroke: "#0e3a52", font: "#ffffff"},
	StatusPending:   {fill: "#d3d3d3", stroke: "#9a9a9a", font: "#000000"},
	StatusSkipped:   {fill: "#e8e8e8", stroke: "#888888", font: "#888888", dashed: true},
}

// kindShape pairs the Mermaid brackets and graphviz shape of a node kind.
type kindShape struct {
	open, close string
	gv          cgraph.Shape
}

var shapes = map[schema.NodeKind]kindShape{
	schema.NodeKindCondition: {"{", "}", cgraph.DiamondShape},
	schema.NodeKindRole:      {"{{", "}}", cgraph.HexagonShape},
	schema.NodeKindParallel:  {"[[", "]]", cgraph.BoxShape},
	schema.NodeKindSequence:  {"([", "])", cgraph.EllipseShape},
	schema.NodeKindAction:    {"[", "]", cgraph.BoxShape},
}

func shapeOf(kind schema.NodeKind) kindShape {
	if s, ok := shapes[kind]; ok {
		return s
	}
	return shapes[schema.NodeKindAction]
}
