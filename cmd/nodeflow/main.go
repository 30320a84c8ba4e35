package main

import (
	"fmt"
	"os"
)

const usage = `nodeflow: workflow execution engine

Usage:
  nodeflow [serve] [-no-mcp]       start the MCP server, scheduler and definitions loader
  nodeflow init [flags]            write ~/.nodeflow/settings.json
  nodeflow validate <file.json>... check workflow documents
  nodeflow run [-events] <file>    execute one workflow document and print the result
  nodeflow diagram [flags] <file>  draw a workflow document (mermaid, ascii, png)
  nodeflow version                 print the version
`

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		runServe(nil)
		return
	}

	switch args[0] {
	case "serve":
		runServe(args[1:])
	case "init":
		runInit(args[1:])
	case "validate":
		os.Exit(runValidate(args[1:], os.Stdout, os.Stderr))
	case "run":
		os.Exit(runOnce(args[1:], os.Stdout, os.Stderr))
	case "diagram":
		os.Exit(runDiagram(args[1:], os.Stdout, os.Stderr))
	case "version", "-v", "--version":
		printVersion()
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", args[0], usage)
		os.Exit(2)
	}
}
