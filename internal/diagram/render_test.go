package diagram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/nodeflow/pkg/schema"
)

func TestRenderMermaid(t *testing.T) {
	model, err := Build(pipelineConfig(), history([2]string{"fetch", "completed"}))
	require.NoError(t, err)

	output := RenderMermaid(model)

	assert.True(t, strings.HasPrefix(output, "graph TD\n"))
	assert.Contains(t, output, "%% ETL Pipeline v1.0.0")

	// Shapes per kind.
	assert.Contains(t, output, `root(["root"])`)
	assert.Contains(t, output, `fetch["Fetch data: expr.eval"]`)
	assert.Contains(t, output, `check{"check: previous > 5"}`)
	assert.Contains(t, output, `fan_out[["fan-out"]]`)
	assert.Contains(t, output, `a{{"a: writer"}}`)

	// Edges.
	assert.Contains(t, output, "root -->|1| fetch")
	assert.Contains(t, output, "check -->|then| notify")
	assert.Contains(t, output, "fan_out --> b")

	assert.Contains(t, output, "classDef completed")
	assert.Contains(t, output, "class fetch completed")
	assert.NotContains(t, output, "class root ")
}

func TestMermaidEscapesQuotes(t *testing.T) {
	cfg := &schema.WorkflowConfig{ID: "w", Nodes: []*schema.Node{
		{ID: "only", Name: `say "hi"`, Kind: schema.NodeKindAction},
	}}
	model, err := Build(cfg, nil)
	require.NoError(t, err)
	assert.Contains(t, RenderMermaid(model), `only["say #quot;hi#quot;"]`)
}

func TestRenderASCII(t *testing.T) {
	model, err := Build(pipelineConfig(), history(
		[2]string{"fetch", "completed"},
		[2]string{"check", "completed"},
		[2]string{"check", "skipped"},
	))
	require.NoError(t, err)

	want := strings.Join([]string{
		"=== ETL Pipeline v1.0.0 ===",
		"",
		"root (sequence)",
		"├── Fetch data (action: expr.eval) [OK]",
		"├── check (condition: previous > 5) [OK]",
		"│   └── notify (action: log) [SKIP]",
		"└── fan-out (parallel)",
		"    ├── a (role: writer)",
		"    └── b (action: log)",
		"",
	}, "\n")
	assert.Equal(t, want, RenderASCII(model))
}

func TestRenderFormats(t *testing.T) {
	model, err := Build(pipelineConfig(), nil)
	require.NoError(t, err)

	out, err := Render(model, "")
	require.NoError(t, err)
	assert.Equal(t, RenderMermaid(model), out)

	out, err = Render(model, FormatASCII)
	require.NoError(t, err)
	assert.Equal(t, RenderASCII(model), out)

	_, err = Render(model, "graphviz")
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}
