package diagram

import (
	"fmt"
	"strings"
)

// statusTag returns a short ASCII indicator for a status string.
func statusTag(status string) string {
	switch status {
	case StatusCompleted:
		return "[OK]"
	case StatusFailed:
		return "[FAIL]"
	case StatusRunning:
		return "[RUN]"
	case StatusSkipped:
		return "[SKIP]"
	case StatusPending:
		return "[PEND]"
	default:
		return ""
	}
}

// RenderASCII renders a Model as an indented tree drawn with box-drawing
// characters, one node per line.
func RenderASCII(model *Model) string {
	var b strings.Builder

	if model.Title != "" {
		fmt.Fprintf(&b, "=== %s ===\n\n", model.Title)
	}
	if model.Root == nil {
		return b.String()
	}

	b.WriteString(asciiLine(model.Root))
	b.WriteByte('\n')
	renderChildren(&b, model.Root, "")
	return b.String()
}

func renderChildren(b *strings.Builder, n *Node, prefix string) {
	for i, c := range n.Children {
		last := i == len(n.Children)-1
		branch, indent := "├── ", "│   "
		if last {
			branch, indent = "└── ", "    "
		}
		b.WriteString(prefix + branch + asciiLine(c))
		b.WriteByte('\n')
		renderChildren(b, c, prefix+indent)
	}
}

// asciiLine formats a node as "label (kind: detail) [TAG]".
func asciiLine(n *Node) string {
	kind := string(n.Kind)
	if n.Detail != "" {
		kind += ": " + firstLine(n.Detail)
	}
	line := fmt.Sprintf("%s (%s)", firstLine(n.Label), kind)
	if tag := statusTag(n.Status); tag != "" {
		line += " " + tag
	}
	return line
}
