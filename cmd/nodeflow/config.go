package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/rendis/nodeflow/internal/engine"
)

// ScheduleConfig binds a cron expression to a definition at startup.
type ScheduleConfig struct {
	Definition string `json:"definition"`
	Cron       string `json:"cron"`
}

// Config holds all nodeflow server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	LogLevel          string           `json:"log_level"`
	LogFormat         string           `json:"log_format"`
	DefinitionsDir    string           `json:"definitions_dir"`
	SchedulerEnabled  bool             `json:"scheduler_enabled"`
	SchedulerInterval string           `json:"scheduler_interval"`
	Schedules         []ScheduleConfig `json:"schedules,omitempty"`
	MaxFinishedRuns   int              `json:"max_finished_runs"`
	RunRetention      string           `json:"run_retention"`
}

func defaultConfig() Config {
	return Config{
		LogLevel:          "info",
		LogFormat:         "text",
		DefinitionsDir:    filepath.Join(nodeflowDir(), "definitions"),
		SchedulerEnabled:  true,
		SchedulerInterval: "60s",
		MaxFinishedRuns:   engine.DefaultMaxFinishedRuns,
		RunRetention:      "24h",
	}
}

func nodeflowDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nodeflow"
	}
	return filepath.Join(home, ".nodeflow")
}

func settingsPath() string {
	return filepath.Join(nodeflowDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("NODEFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("NODEFLOW_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("NODEFLOW_DEFINITIONS_DIR"); v != "" {
		cfg.DefinitionsDir = v
	}
	if v := os.Getenv("NODEFLOW_SCHEDULER"); v != "" {
		cfg.SchedulerEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("NODEFLOW_SCHEDULER_INTERVAL"); v != "" {
		cfg.SchedulerInterval = v
	}
	if v := os.Getenv("NODEFLOW_MAX_FINISHED_RUNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxFinishedRuns = n
		}
	}
	if v := os.Getenv("NODEFLOW_RUN_RETENTION"); v != "" {
		cfg.RunRetention = v
	}

	return cfg
}

// schedulerInterval parses SchedulerInterval, falling back to 60s.
func (c Config) schedulerInterval() time.Duration {
	d, err := time.ParseDuration(c.SchedulerInterval)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// retention maps the run retention settings. An unparsable or non-positive
// RunRetention disables the age limit.
func (c Config) retention() engine.Retention {
	r := engine.Retention{MaxFinished: c.MaxFinishedRuns}
	if d, err := time.ParseDuration(c.RunRetention); err == nil && d > 0 {
		r.TTL = d
	}
	return r
}

// configDiff describes what changed between two configurations.
type configDiff struct {
	LogLevelChanged    bool
	DefinitionsChanged bool
	SchedulesChanged   bool
	RetentionChanged   bool
	RestartNeeded      []string // fields that require a server restart
}

func diffConfigs(old, new Config) configDiff {
	var d configDiff
	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
	}
	if old.DefinitionsDir != new.DefinitionsDir {
		d.DefinitionsChanged = true
	}
	if !slices.Equal(old.Schedules, new.Schedules) {
		d.SchedulesChanged = true
	}
	if old.retention() != new.retention() {
		d.RetentionChanged = true
	}
	if old.LogFormat != new.LogFormat {
		d.RestartNeeded = append(d.RestartNeeded, "log_format")
	}
	if old.SchedulerEnabled != new.SchedulerEnabled {
		d.RestartNeeded = append(d.RestartNeeded, "scheduler_enabled")
	}
	if old.SchedulerInterval != new.SchedulerInterval {
		d.RestartNeeded = append(d.RestartNeeded, "scheduler_interval")
	}
	return d
}

func pidPath() string {
	return filepath.Join(nodeflowDir(), "nodeflow.pid")
}
