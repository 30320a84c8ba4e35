package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rendis/nodeflow/internal/diagram"
	"github.com/rendis/nodeflow/internal/logging"
)

// runDiagram renders a workflow document as a Mermaid flowchart or an ASCII tree.
func runDiagram(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("diagram", flag.ContinueOnError)
	fs.SetOutput(stderr)
	format := fs.String("format", diagram.FormatMermaid, "output format: mermaid, ascii or png")
	outPath := fs.String("o", "", "write to this file instead of stdout (.md wraps mermaid in a code fence)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: nodeflow diagram [-format mermaid|ascii|png] [-o file] <file.json>")
		return 2
	}

	a, err := newApp(logging.NewLogger(stderr, "warn", "text"))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	cfg, err := a.loader.Load(data)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	model, err := diagram.Build(cfg, nil)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if *format == "png" {
		return writeImage(model, *outPath, stdout, stderr)
	}
	out, err := diagram.Render(model, *format)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if *outPath == "" {
		fmt.Fprint(stdout, out)
		return 0
	}
	if filepath.Ext(*outPath) == ".md" && *format != diagram.FormatASCII {
		out = "```mermaid\n" + out + "```\n"
	}
	if err := os.WriteFile(*outPath, []byte(out), 0o644); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Written: %s (%d bytes)\n", *outPath, len(out))
	return 0
}

func writeImage(model *diagram.Model, outPath string, stdout, stderr io.Writer) int {
	if outPath == "" {
		fmt.Fprintln(stderr, "Error: -format png requires -o")
		return 2
	}
	png, err := diagram.RenderImage(context.Background(), model)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := os.WriteFile(outPath, png, 0o644); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Written: %s (%d bytes)\n", outPath, len(png))
	return 0
}
