package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/rendis/nodeflow/pkg/schema"
)

// DefaultInterval is how often the loop looks for due jobs.
const DefaultInterval = 60 * time.Second

// Job statuses recorded after each trigger.
const (
	StatusStarted = "started"
	StatusError   = "error"
)

// DefinitionRunner starts runs of named workflow definitions.
// Satisfied by engine.RunManager.
type DefinitionRunner interface {
	StartDefinition(ctx context.Context, name string) (string, error)
}

// Job binds a cron expression to a workflow definition.
type Job struct {
	ID             string     `json:"id"`
	Definition     string     `json:"definition"`
	CronExpression string     `json:"cron_expression"`
	Enabled        bool       `json:"enabled"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	LastRunStatus  string     `json:"last_run_status,omitempty"`
	LastRunID      string     `json:"last_run_id,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (j *Job) clone() *Job {
	cp := *j
	if j.NextRunAt != nil {
		t := *j.NextRunAt
		cp.NextRunAt = &t
	}
	if j.LastRunAt != nil {
		t := *j.LastRunAt
		cp.LastRunAt = &t
	}
	return &cp
}

// Config holds configuration for a Scheduler.
type Config struct {
	Logger   *slog.Logger
	Interval time.Duration
}

// Scheduler triggers due jobs on a ticker.
type Scheduler struct {
	runner   DefinitionRunner
	parser   cron.Parser
	logger   *slog.Logger
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex

	jobsMu sync.RWMutex
	jobs   map[string]*Job

	inflightMu sync.Mutex
	inflight   map[string]struct{} // job IDs currently triggering (dedup)
}

// NewScheduler creates a new Scheduler.
func NewScheduler(runner DefinitionRunner, cfg Config) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Scheduler{
		runner:   runner,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:   cfg.Logger,
		interval: cfg.Interval,
		jobs:     make(map[string]*Job),
		inflight: make(map[string]struct{}),
	}
}

// Add registers an enabled job for definition and returns a copy of it.
func (s *Scheduler) Add(definition, cronExpr string) (*Job, error) {
	if definition == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "definition name is required")
	}
	now := time.Now().UTC()
	next, err := s.CalculateNextRun(cronExpr, now)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid cron expression %q", cronExpr).WithCause(err)
	}
	job := &Job{
		ID:             uuid.NewString(),
		Definition:     definition,
		CronExpression: cronExpr,
		Enabled:        true,
		NextRunAt:      &next,
		CreatedAt:      now,
	}

	s.jobsMu.Lock()
	s.jobs[job.ID] = job
	s.jobsMu.Unlock()

	s.logger.Info("scheduled job added",
		slog.String("job_id", job.ID),
		slog.String("definition", definition),
		slog.String("cron", cronExpr),
		slog.Time("next_run_at", next),
	)
	return job.clone(), nil
}

// Remove deletes a job.
func (s *Scheduler) Remove(jobID string) error {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "scheduled job %q not found", jobID)
	}
	delete(s.jobs, jobID)
	return nil
}

// SetEnabled toggles a job. Re-enabling recomputes its next run.
func (s *Scheduler) SetEnabled(jobID string, enabled bool) error {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "scheduled job %q not found", jobID)
	}
	if enabled && !job.Enabled {
		next, err := s.CalculateNextRun(job.CronExpression, time.Now().UTC())
		if err != nil {
			return err
		}
		job.NextRunAt = &next
	}
	job.Enabled = enabled
	return nil
}

// Job returns a copy of one job.
func (s *Scheduler) Job(jobID string) (*Job, error) {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "scheduled job %q not found", jobID)
	}
	return job.clone(), nil
}

// Jobs returns copies of every job, oldest first.
func (s *Scheduler) Jobs() []*Job {
	s.jobsMu.RLock()
	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.clone())
	}
	s.jobsMu.RUnlock()

	sort.Slice(out, func(i, k int) bool {
		if out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].ID < out[k].ID
		}
		return out[i].CreatedAt.Before(out[k].CreatedAt)
	})
	return out
}

// Start launches the background scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started", slog.Duration("interval", s.interval))
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// dueJobs returns copies of enabled jobs whose next run is at or before now.
func (s *Scheduler) dueJobs(now time.Time) []*Job {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()
	var due []*Job
	for _, j := range s.jobs {
		if !j.Enabled {
			continue
		}
		if j.NextRunAt == nil || !j.NextRunAt.After(now) {
			due = append(due, j.clone())
		}
	}
	return due
}

// tick triggers every due job once.
func (s *Scheduler) tick(ctx context.Context) int {
	now := time.Now().UTC()
	triggered := 0
	for _, job := range s.dueJobs(now) {
		if !s.tryAcquire(job.ID) {
			continue // already triggering (dedup)
		}
		s.runJob(ctx, job, now)
		s.releaseJob(job.ID)
		triggered++
	}
	return triggered
}

// runJob starts the job's definition and records the outcome.
func (s *Scheduler) runJob(ctx context.Context, job *Job, now time.Time) {
	s.logger.Info("running scheduled job",
		slog.String("job_id", job.ID),
		slog.String("definition", job.Definition),
	)

	runID, err := s.runner.StartDefinition(ctx, job.Definition)
	if err != nil {
		s.logger.Error("scheduled job execution failed",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
	s.updateJobStatus(job.ID, now, runID, err)
}

func (s *Scheduler) updateJobStatus(jobID string, now time.Time, runID string, runErr error) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return // removed while running
	}

	job.LastRunAt = &now
	job.LastRunID = runID
	job.LastRunStatus = StatusStarted
	job.LastError = ""
	if runErr != nil {
		job.LastRunStatus = StatusError
		job.LastError = runErr.Error()
	}

	next, err := s.CalculateNextRun(job.CronExpression, now)
	if err != nil {
		s.logger.Error("calculate next run", slog.String("job_id", jobID), slog.String("error", err.Error()))
		job.Enabled = false
		return
	}
	job.NextRunAt = &next
}

// tryAcquire returns true and marks the job as in-flight if it is not already running.
func (s *Scheduler) tryAcquire(jobID string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[jobID]; ok {
		return false
	}
	s.inflight[jobID] = struct{}{}
	return true
}

// releaseJob removes the job from the in-flight set.
func (s *Scheduler) releaseJob(jobID string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, jobID)
}

// CalculateNextRun computes the next run time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}
