package diagram

import "github.com/rendis/nodeflow/pkg/schema"

// Output formats accepted by Render.
const (
	FormatMermaid = "mermaid"
	FormatASCII   = "ascii"
)

// Render renders model in the named format. An empty format means Mermaid.
func Render(model *Model, format string) (string, error) {
	switch format {
	case "", FormatMermaid:
		return RenderMermaid(model), nil
	case FormatASCII:
		return RenderASCII(model), nil
	default:
		return "", schema.NewErrorf(schema.ErrCodeValidation, "unknown diagram format %q (want mermaid or ascii)", format)
	}
}
