package diagram

import (
	"fmt"
	"strings"
)

var mermaidIDReplacer = strings.NewReplacer(".", "_", "-", "_", " ", "_")

// RenderMermaid draws the model as a top-down Mermaid flowchart. Nodes with
// an overlaid status get the matching class.
func RenderMermaid(model *Model) string {
	var b strings.Builder
	line := func(format string, args ...any) {
		b.WriteString("    ")
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	b.WriteString("graph TD\n")
	if model.Title != "" {
		line("%%%% %s", model.Title)
	}

	var classed []*Node
	model.Walk(func(n *Node, _ int) {
		s := shapeOf(n.Kind)
		line("%s%s%q%s", mermaidSafeID(n.ID), s.open, mermaidLabel(n), s.close)
		if _, ok := palette[n.Status]; ok {
			classed = append(classed, n)
		}
	})

	for _, e := range model.Edges() {
		arrow := "-->"
		if e.Label != "" {
			arrow += "|" + e.Label + "|"
		}
		line("%s %s %s", mermaidSafeID(e.From), arrow, mermaidSafeID(e.To))
	}

	b.WriteByte('\n')
	for _, status := range statusOrder {
		st := palette[status]
		def := fmt.Sprintf("fill:%s,stroke:%s,color:%s", st.fill, st.stroke, st.font)
		if st.dashed {
			def += ",stroke-dasharray:5 5"
		}
		line("classDef %s %s", status, def)
	}
	for _, n := range classed {
		line("class %s %s", mermaidSafeID(n.ID), n.Status)
	}
	return b.String()
}

// mermaidLabel is "label: detail" on one line, with double quotes swapped
// for the Mermaid entity since labels are emitted quoted.
func mermaidLabel(n *Node) string {
	label := firstLine(n.Label)
	if n.Detail != "" {
		label += ": " + firstLine(n.Detail)
	}
	return strings.ReplaceAll(label, `"`, "#quot;")
}

func mermaidSafeID(id string) string { return mermaidIDReplacer.Replace(id) }

func firstLine(s string) string {
	head, _, _ := strings.Cut(s, "\n")
	return head
}
