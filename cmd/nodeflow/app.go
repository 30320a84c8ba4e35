package main

import (
	"log/slog"

	"github.com/rendis/nodeflow/internal/actions"
	"github.com/rendis/nodeflow/internal/engine"
	"github.com/rendis/nodeflow/internal/expressions"
	"github.com/rendis/nodeflow/internal/streaming"
	"github.com/rendis/nodeflow/internal/validation"
)

// app is the process-wide object graph shared by every subcommand.
type app struct {
	logger *slog.Logger
	deps   engine.Dependencies
	loader *validation.WorkflowValidator
	hub    *streaming.MemoryHub
	runs   *engine.RunManager
}

func newApp(logger *slog.Logger) (*app, error) {
	jsv, err := validation.NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	reg := actions.NewRegistry()
	if err := actions.RegisterBuiltins(reg, jsv, logger); err != nil {
		return nil, err
	}
	engines, err := expressions.NewEngines()
	if err != nil {
		return nil, err
	}

	a := &app{
		logger: logger,
		deps: engine.Dependencies{
			Actions:        reg,
			InputValidator: jsv,
			Roles:          engine.NewRoleRegistry(),
			Predicates:     expressions.NewPredicateRegistry(),
			Engines:        engines,
		},
		hub: streaming.NewMemoryHubWithBuffer(256),
	}
	a.loader, err = validation.NewWorkflowValidator(validation.Lookups{
		Actions:     reg,
		Roles:       a.deps.Roles,
		Predicates:  a.deps.Predicates,
		Expressions: engines,
	})
	if err != nil {
		return nil, err
	}
	a.runs = engine.NewRunManager(a.newExecutor, engine.RunManagerConfig{
		Logger:    logger,
		Validator: a.loader,
	})

	logger.Debug("runtime ready",
		slog.Int("actions", reg.Count()),
		slog.Any("languages", engines.Languages()),
		slog.Any("predicates", a.deps.Predicates.Names()),
	)
	return a, nil
}

// newExecutor builds one executor per run; all of them publish to the
// shared hub.
func (a *app) newExecutor() (*engine.WorkflowExecutor, error) {
	return engine.NewDefaultExecutor(engine.ExecutorConfig{Logger: a.logger, Hub: a.hub}, a.deps)
}
