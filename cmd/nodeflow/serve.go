package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rendis/nodeflow/internal/logging"
	"github.com/rendis/nodeflow/internal/scheduler"
	"github.com/rendis/nodeflow/pkg/mcp"
)

const shutdownTimeout = 10 * time.Second

// daemon is the long-running serve process.
type daemon struct {
	cfg    Config
	level  *slog.LevelVar
	logger *slog.Logger
	app    *app
	defs   *definitionSet
	sched  *scheduler.Scheduler

	scheduleJobs []string // job IDs created from cfg.Schedules
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	noMCP := fs.Bool("no-mcp", false, "run definitions and schedules without the stdio MCP server")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg := loadConfig()
	level := new(slog.LevelVar)
	level.Set(logging.ParseLevel(cfg.LogLevel))
	// stdout carries the MCP transport; logs go to stderr.
	logger := logging.NewLoggerWithLevel(os.Stderr, level, cfg.LogFormat)

	d, err := newDaemon(cfg, level, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	writePID(logger)
	defer os.Remove(pidPath())

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				d.reload(loadConfig())
			}
		}
	}()

	if *noMCP {
		<-ctx.Done()
	} else {
		srv := mcp.NewServer(mcp.ServerDeps{
			Runs:      d.app.runs,
			Loader:    d.app.loader,
			Scheduler: d.sched,
			Hub:       d.app.hub,
			Logger:    logger,
		})
		if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
			logger.Error("mcp server stopped", slog.String("error", err.Error()))
		}
	}

	d.shutdown()
}

func newDaemon(cfg Config, level *slog.LevelVar, logger *slog.Logger) (*daemon, error) {
	a, err := newApp(logger)
	if err != nil {
		return nil, err
	}
	d := &daemon{
		cfg:    cfg,
		level:  level,
		logger: logger,
		app:    a,
		defs:   newDefinitionSet(a.loader, a.runs, logger),
	}
	a.runs.SetRetention(cfg.retention())
	if cfg.SchedulerEnabled {
		d.sched = scheduler.NewScheduler(a.runs, scheduler.Config{
			Logger:   logger,
			Interval: cfg.schedulerInterval(),
		})
	}
	return d, nil
}

// start loads definitions and config schedules, then starts the scheduler.
func (d *daemon) start(ctx context.Context) error {
	if err := d.loadDefinitions(d.cfg.DefinitionsDir); err != nil {
		return err
	}
	if d.sched == nil {
		return nil
	}
	d.applySchedules(d.cfg.Schedules)
	return d.sched.Start(ctx)
}

func (d *daemon) loadDefinitions(dir string) error {
	res, err := d.defs.loadDir(dir)
	if err != nil {
		return fmt.Errorf("load definitions from %s: %w", dir, err)
	}
	d.logger.Info("definitions loaded",
		slog.String("dir", dir),
		slog.Any("loaded", res.Loaded),
		slog.Int("unchanged", len(res.Unchanged)),
		slog.Int("failed", len(res.Failed)),
	)
	return nil
}

// applySchedules replaces the jobs created from a previous config.
func (d *daemon) applySchedules(schedules []ScheduleConfig) {
	for _, id := range d.scheduleJobs {
		_ = d.sched.Remove(id)
	}
	d.scheduleJobs = d.scheduleJobs[:0]
	for _, sc := range schedules {
		job, err := d.sched.Add(sc.Definition, sc.Cron)
		if err != nil {
			d.logger.Error("schedule rejected",
				slog.String("definition", sc.Definition),
				slog.String("cron", sc.Cron),
				slog.String("error", err.Error()),
			)
			continue
		}
		d.scheduleJobs = append(d.scheduleJobs, job.ID)
	}
}

// reload applies a re-read configuration (SIGHUP).
func (d *daemon) reload(next Config) {
	diff := diffConfigs(d.cfg, next)
	if diff.LogLevelChanged {
		d.level.Set(logging.ParseLevel(next.LogLevel))
	}
	if err := d.loadDefinitions(next.DefinitionsDir); err != nil {
		d.logger.Error("reload definitions", slog.String("error", err.Error()))
	}
	if diff.SchedulesChanged && d.sched != nil {
		d.applySchedules(next.Schedules)
	}
	if diff.RetentionChanged {
		d.app.runs.SetRetention(next.retention())
	}
	if len(diff.RestartNeeded) > 0 {
		d.logger.Warn("configuration changes need a restart", slog.Any("fields", diff.RestartNeeded))
	}
	d.cfg = next
	d.logger.Info("configuration reloaded")
}

func (d *daemon) shutdown() {
	if d.sched != nil {
		_ = d.sched.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.app.runs.Shutdown(ctx); err != nil {
		d.logger.Warn("runs still active at shutdown", slog.String("error", err.Error()))
	}
	d.logger.Info("nodeflow stopped")
}

func writePID(logger *slog.Logger) {
	if err := os.MkdirAll(nodeflowDir(), 0o700); err != nil {
		logger.Warn("cannot create state dir", slog.String("error", err.Error()))
		return
	}
	if err := os.WriteFile(pidPath(), []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		logger.Warn("cannot write pidfile", slog.String("error", err.Error()))
	}
}
