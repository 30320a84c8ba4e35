package engine

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/nodeflow/internal/logging"
	"github.com/rendis/nodeflow/pkg/schema"
)

// ExecutorFactory builds a fresh WorkflowExecutor for one run.
type ExecutorFactory func() (*WorkflowExecutor, error)

// WorkflowValidator checks a definition before it is stored.
type WorkflowValidator interface {
	ValidateWorkflow(cfg *schema.WorkflowConfig) error
}

// DefaultMaxFinishedRuns is how many finished runs a RunManager keeps when
// Retention.MaxFinished is zero.
const DefaultMaxFinishedRuns = 256

// Retention bounds the finished runs a RunManager remembers. Unfinished runs
// are never dropped.
type Retention struct {
	// MaxFinished caps finished runs, dropping the oldest first. Zero means
	// DefaultMaxFinishedRuns; negative means no cap.
	MaxFinished int
	// TTL drops a run that finished longer ago. Zero keeps runs until the cap.
	TTL time.Duration
}

func (r Retention) withDefaults() Retention {
	if r.MaxFinished == 0 {
		r.MaxFinished = DefaultMaxFinishedRuns
	}
	return r
}

// RunManagerConfig holds configuration for a RunManager.
type RunManagerConfig struct {
	Logger    *slog.Logger
	Validator WorkflowValidator
	Retention Retention
}

// RunInfo is a point-in-time view of one run.
type RunInfo struct {
	ID         string        `json:"run_id"`
	Definition string        `json:"definition,omitempty"`
	WorkflowID string        `json:"workflow_id"`
	Done       bool          `json:"done"`
	Result     any           `json:"result,omitempty"`
	Error      string        `json:"error,omitempty"`
	ErrorCode  string        `json:"error_code,omitempty"`
	State      WorkflowState `json:"state"`
}

type managedRun struct {
	id         string
	definition string
	workflowID string
	config     *schema.WorkflowConfig
	startedAt  time.Time
	executor   *WorkflowExecutor
	done       chan struct{}

	// set once before done is closed
	result     any
	err        error
	finishedAt time.Time
}

// RunManager holds named definitions and the runs started from them. Every
// run gets its own executor, so runs never share state.
type RunManager struct {
	factory   ExecutorFactory
	validator WorkflowValidator
	logger    *slog.Logger

	mu     sync.RWMutex
	defs   map[string]*schema.WorkflowConfig
	runs   map[string]*managedRun
	retain Retention
}

// NewRunManager creates a RunManager.
func NewRunManager(factory ExecutorFactory, cfg RunManagerConfig) *RunManager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &RunManager{
		factory:   factory,
		validator: cfg.Validator,
		logger:    cfg.Logger,
		defs:      make(map[string]*schema.WorkflowConfig),
		runs:      make(map[string]*managedRun),
		retain:    cfg.Retention.withDefaults(),
	}
}

// SetRetention replaces the retention policy and applies it at once.
func (m *RunManager) SetRetention(r Retention) {
	m.mu.Lock()
	m.retain = r.withDefaults()
	m.mu.Unlock()
	m.prune(time.Now().UTC())
}

// prune forgets finished runs past the TTL, then the oldest finished runs
// beyond the cap.
func (m *RunManager) prune(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var finished []*managedRun
	for id, mr := range m.runs {
		select {
		case <-mr.done:
		default:
			continue
		}
		if m.retain.TTL > 0 && now.Sub(mr.finishedAt) > m.retain.TTL {
			delete(m.runs, id)
			continue
		}
		finished = append(finished, mr)
	}
	if m.retain.MaxFinished < 0 || len(finished) <= m.retain.MaxFinished {
		return
	}
	sort.Slice(finished, func(i, j int) bool {
		if finished[i].finishedAt.Equal(finished[j].finishedAt) {
			return finished[i].id < finished[j].id
		}
		return finished[i].finishedAt.Before(finished[j].finishedAt)
	})
	for _, mr := range finished[:len(finished)-m.retain.MaxFinished] {
		delete(m.runs, mr.id)
	}
}

// Define stores cfg under name, replacing any previous definition.
func (m *RunManager) Define(name string, cfg *schema.WorkflowConfig) error {
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "definition name is required")
	}
	if cfg == nil {
		return schema.NewError(schema.ErrCodeValidation, "workflow config is nil")
	}
	if m.validator != nil {
		if err := m.validator.ValidateWorkflow(cfg); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.defs[name] = cfg
	m.mu.Unlock()
	m.logger.Info("workflow defined", "definition", name, "workflow_id", cfg.ID, "nodes", len(cfg.Nodes))
	return nil
}

// Definition returns the definition stored under name.
func (m *RunManager) Definition(name string) (*schema.WorkflowConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.defs[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "definition %q not found", name)
	}
	return cfg, nil
}

// Definitions returns the stored definition names, sorted.
func (m *RunManager) Definitions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.defs))
	for n := range m.defs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// StartDefinition starts the definition stored under name.
func (m *RunManager) StartDefinition(ctx context.Context, name string) (string, error) {
	cfg, err := m.Definition(name)
	if err != nil {
		return "", err
	}
	return m.start(ctx, name, cfg)
}

// Start runs cfg in the background and returns its run ID. The run outlives
// ctx's cancellation but keeps its values.
func (m *RunManager) Start(ctx context.Context, cfg *schema.WorkflowConfig) (string, error) {
	if cfg == nil {
		return "", schema.NewError(schema.ErrCodeValidation, "workflow config is nil")
	}
	return m.start(ctx, "", cfg)
}

func (m *RunManager) start(ctx context.Context, definition string, cfg *schema.WorkflowConfig) (string, error) {
	exec, err := m.factory()
	if err != nil {
		return "", err
	}
	mr := &managedRun{
		id:         uuid.NewString(),
		definition: definition,
		workflowID: cfg.ID,
		config:     cfg,
		startedAt:  time.Now().UTC(),
		executor:   exec,
		done:       make(chan struct{}),
	}

	m.prune(mr.startedAt)
	m.mu.Lock()
	m.runs[mr.id] = mr
	m.mu.Unlock()

	runCtx := logging.WithRunID(context.WithoutCancel(ctx), mr.id)
	go func() {
		defer func() {
			mr.finishedAt = time.Now().UTC()
			close(mr.done)
			m.prune(mr.finishedAt)
		}()
		mr.result, mr.err = exec.ExecuteRun(runCtx, mr.id, cfg)
	}()

	m.logger.InfoContext(runCtx, "run started", "definition", definition, "workflow_id", cfg.ID)
	return mr.id, nil
}

func (m *RunManager) lookup(runID string) (*managedRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mr, ok := m.runs[runID]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "run %q not found", runID)
	}
	return mr, nil
}

func (mr *managedRun) info() RunInfo {
	info := RunInfo{
		ID:         mr.id,
		Definition: mr.definition,
		WorkflowID: mr.workflowID,
		State:      mr.executor.State(),
	}
	select {
	case <-mr.done:
		info.Done = true
		info.Result = mr.result
		if mr.err != nil {
			info.Error = mr.err.Error()
			info.ErrorCode = schema.CodeOf(mr.err)
		}
	default:
	}
	return info
}

// Get returns a snapshot of the run.
func (m *RunManager) Get(runID string) (RunInfo, error) {
	mr, err := m.lookup(runID)
	if err != nil {
		return RunInfo{}, err
	}
	return mr.info(), nil
}

// RunConfig returns the workflow config the run was started with.
func (m *RunManager) RunConfig(runID string) (*schema.WorkflowConfig, error) {
	mr, err := m.lookup(runID)
	if err != nil {
		return nil, err
	}
	return mr.config, nil
}

// Wait blocks until the run finishes or ctx is done.
func (m *RunManager) Wait(ctx context.Context, runID string) (RunInfo, error) {
	mr, err := m.lookup(runID)
	if err != nil {
		return RunInfo{}, err
	}
	select {
	case <-mr.done:
		return mr.info(), nil
	case <-ctx.Done():
		return mr.info(), ctx.Err()
	}
}

// Pause pauses the run.
func (m *RunManager) Pause(runID string) error {
	return m.control(runID, (*WorkflowExecutor).Pause)
}

// Resume resumes the run.
func (m *RunManager) Resume(runID string) error {
	return m.control(runID, (*WorkflowExecutor).Resume)
}

// Stop stops the run.
func (m *RunManager) Stop(runID string) error {
	return m.control(runID, (*WorkflowExecutor).Stop)
}

func (m *RunManager) control(runID string, fn func(*WorkflowExecutor)) error {
	mr, err := m.lookup(runID)
	if err != nil {
		return err
	}
	select {
	case <-mr.done:
		return schema.NewErrorf(schema.ErrCodeInvalidTransition, "run %q already finished", runID)
	default:
	}
	fn(mr.executor)
	return nil
}

// Runs returns every run still held, oldest first. Finished runs are
// forgotten per the Retention policy.
func (m *RunManager) Runs() []RunInfo {
	m.mu.RLock()
	runs := make([]*managedRun, 0, len(m.runs))
	for _, mr := range m.runs {
		runs = append(runs, mr)
	}
	m.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].startedAt.Equal(runs[j].startedAt) {
			return runs[i].id < runs[j].id
		}
		return runs[i].startedAt.Before(runs[j].startedAt)
	})
	out := make([]RunInfo, len(runs))
	for i, mr := range runs {
		out[i] = mr.info()
	}
	return out
}

// Shutdown stops every unfinished run and waits for them or ctx.
func (m *RunManager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	runs := make([]*managedRun, 0, len(m.runs))
	for _, mr := range m.runs {
		runs = append(runs, mr)
	}
	m.mu.RUnlock()

	for _, mr := range runs {
		select {
		case <-mr.done:
			continue
		default:
		}
		mr.executor.Stop()
	}
	for _, mr := range runs {
		select {
		case <-mr.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
