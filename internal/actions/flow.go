package actions

import (
	"context"
	"log/slog"
	"time"

	"github.com/rendis/nodeflow/pkg/schema"
)

// FlowActions returns the control actions: sleep, log and fail.
func FlowActions(logger *slog.Logger) []Action {
	if logger == nil {
		logger = slog.Default()
	}
	return []Action{
		&sleepAction{},
		&logAction{logger: logger},
		&failAction{},
	}
}

func stringParam(m map[string]any, key, fallback string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// --- sleep ---

type sleepAction struct{}

func (a *sleepAction) Name() string { return "sleep" }

func (a *sleepAction) Schema() ActionSchema {
	return ActionSchema{
		Description: "Wait for a duration (milliseconds or Go duration string); honours cancellation",
		InputSchema: []byte(`{"type":"object","required":["duration"],"properties":{"duration":{"type":["integer","string"]},"result":{}}}`),
	}
}

func (a *sleepAction) Validate(params map[string]any) error {
	d, err := schema.ParseTimeout(params["duration"])
	if err != nil {
		return err
	}
	if d == 0 {
		if _, present := params["duration"]; !present {
			return schema.NewError(schema.ErrCodeValidation, "sleep requires 'duration' parameter")
		}
	}
	return nil
}

// Execute returns params.result (or the slept duration) once the timer fires.
func (a *sleepAction) Execute(ctx context.Context, input ActionInput) (*ActionOutput, error) {
	d, err := schema.ParseTimeout(input.Params["duration"])
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	if result, ok := input.Params["result"]; ok {
		return &ActionOutput{Data: result}, nil
	}
	return &ActionOutput{Data: map[string]any{"slept_ms": d.Milliseconds()}}, nil
}

// --- log ---

type logAction struct {
	logger *slog.Logger
}

func (a *logAction) Name() string { return "log" }

func (a *logAction) Schema() ActionSchema {
	return ActionSchema{Description: "Write a structured log entry with workflow context"}
}

func (a *logAction) Validate(params map[string]any) error {
	if stringParam(params, "message", "") == "" {
		return schema.NewError(schema.ErrCodeValidation, "log: missing required param 'message'")
	}
	return nil
}

func (a *logAction) Execute(ctx context.Context, input ActionInput) (*ActionOutput, error) {
	p := input.Params
	message := stringParam(p, "message", "")

	attrs := []any{
		slog.String("workflow_id", stringParam(input.Context, ContextWorkflowID, "")),
		slog.String("node_id", stringParam(input.Context, ContextNodeID, "")),
	}
	if data, ok := p["data"]; ok {
		attrs = append(attrs, slog.Any("data", data))
	}

	switch stringParam(p, "level", "info") {
	case "debug":
		a.logger.DebugContext(ctx, message, attrs...)
	case "warn":
		a.logger.WarnContext(ctx, message, attrs...)
	case "error":
		a.logger.ErrorContext(ctx, message, attrs...)
	default:
		a.logger.InfoContext(ctx, message, attrs...)
	}

	return &ActionOutput{Data: map[string]any{"logged": true}}, nil
}

// --- fail ---

type failAction struct{}

func (a *failAction) Name() string { return "fail" }

func (a *failAction) Schema() ActionSchema {
	return ActionSchema{Description: "Fail the node with a reason"}
}

func (a *failAction) Validate(params map[string]any) error {
	if stringParam(params, "reason", "") == "" {
		return schema.NewError(schema.ErrCodeValidation, "fail: missing required param 'reason'")
	}
	return nil
}

func (a *failAction) Execute(_ context.Context, input ActionInput) (*ActionOutput, error) {
	reason := stringParam(input.Params, "reason", "fail invoked")
	return nil, schema.NewError(schema.ErrCodeExecution, reason).
		WithDetails(map[string]any{"node_id": stringParam(input.Context, ContextNodeID, "")})
}
