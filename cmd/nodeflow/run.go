package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rendis/nodeflow/internal/logging"
	"github.com/rendis/nodeflow/internal/streaming"
	"github.com/rendis/nodeflow/pkg/schema"
)

// runValidate checks workflow documents without running them.
func runValidate(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "usage: nodeflow validate <file.json>...")
		return 2
	}

	a, err := newApp(logging.NewLogger(stderr, "warn", "text"))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	code := 0
	for _, path := range fs.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", path, err)
			code = 1
			continue
		}
		cfg, result := a.loader.ValidateDocument(data)
		if !result.Valid() {
			fmt.Fprintf(stdout, "%s: invalid\n", path)
			for _, issue := range result.Errors {
				fmt.Fprintf(stdout, "  %s\n", issue)
			}
			code = 1
			continue
		}
		fmt.Fprintf(stdout, "%s: ok (%d nodes)\n", path, len(cfg.Nodes))
	}
	return code
}

// runOnce executes one workflow document in-process and prints the result
// as JSON.
func runOnce(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	logLevel := fs.String("log-level", "warn", "log level: debug, info, warn, error")
	events := fs.Bool("events", false, "print lifecycle events to stderr")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: nodeflow run [-events] <file.json>")
		return 2
	}

	logger := logging.NewLogger(stderr, *logLevel, "text")
	a, err := newApp(logger)
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

	exec, err := a.newExecutor()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if *events {
		ch, cancel, err := exec.Subscribe(context.Background(), streaming.EventFilter{})
		if err == nil {
			done := make(chan struct{})
			go func() {
				defer close(done)
				printEvents(ch, stderr)
			}()
			defer func() {
				cancel()
				<-done
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		exec.Stop()
	}()

	result, runErr := exec.Execute(ctx, cfg)
	out := map[string]any{"state": exec.State()}
	if runErr != nil {
		out["error"] = runErr.Error()
		out["error_code"] = schema.CodeOf(runErr)
	} else {
		out["result"] = result
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if runErr != nil {
		return 1
	}
	return 0
}

func printEvents(ch <-chan schema.WorkflowEvent, w io.Writer) {
	for evt := range ch {
		line := fmt.Sprintf("%s %s", evt.Timestamp.Format("15:04:05.000"), evt.Type)
		if evt.NodeID != "" {
			line += " " + evt.NodeID
		}
		if evt.ErrorMessage != "" {
			line += ": " + evt.ErrorMessage
		}
		fmt.Fprintln(w, line)
	}
}
