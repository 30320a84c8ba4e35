package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

func runInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	logFormat := fs.String("log-format", "text", "log format: text, json")
	defsDir := fs.String("definitions-dir", "", "workflow definitions directory (default: ~/.nodeflow/definitions)")
	schedulerOn := fs.Bool("scheduler", true, "enable the cron scheduler")
	interval := fs.String("scheduler-interval", "60s", "how often the scheduler looks for due jobs")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := writeSettings(Config{
		LogLevel:          *logLevel,
		LogFormat:         *logFormat,
		DefinitionsDir:    *defsDir,
		SchedulerEnabled:  *schedulerOn,
		SchedulerInterval: *interval,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Config written to %s\n", settingsPath())
	fmt.Printf("Definitions directory: %s\n", cfg.DefinitionsDir)

	if signalRunningServer() {
		return
	}
	fmt.Println("Run `nodeflow serve` to start the server")
}

// writeSettings fills defaults, creates the state and definitions
// directories and writes settings.json.
func writeSettings(cfg Config) (Config, error) {
	dir := nodeflowDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return cfg, fmt.Errorf("cannot create %s: %w", dir, err)
	}
	if cfg.DefinitionsDir == "" {
		cfg.DefinitionsDir = defaultConfig().DefinitionsDir
	}
	if err := os.MkdirAll(cfg.DefinitionsDir, 0o755); err != nil {
		return cfg, fmt.Errorf("cannot create %s: %w", cfg.DefinitionsDir, err)
	}

	data, _ := json.MarshalIndent(cfg, "", "  ")
	if err := os.WriteFile(settingsPath(), data, 0o644); err != nil {
		return cfg, fmt.Errorf("cannot write %s: %w", settingsPath(), err)
	}
	return cfg, nil
}

// signalRunningServer sends SIGHUP to a running nodeflow server (via pidfile).
// Returns true if the server was signaled.
func signalRunningServer() bool {
	data, err := os.ReadFile(pidPath())
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Check if process is alive.
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return false
	}
	if err := proc.Signal(syscall.SIGHUP); err != nil {
		return false
	}
	fmt.Printf("Signaled running server (PID %d) to reload configuration\n", pid)
	return true
}
