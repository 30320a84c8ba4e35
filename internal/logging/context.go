package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

type ctxKey int

const (
	workflowIDKey ctxKey = iota
	runIDKey
	nodeIDKey
)

// correlationKeys lists the context keys in the order their attributes are
// emitted, with the attribute name each one is logged under.
var correlationKeys = [...]struct {
	key  ctxKey
	attr string
}{
	{workflowIDKey, "workflow_id"},
	{runIDKey, "run_id"},
	{nodeIDKey, "node_id"},
}

func WithWorkflowID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workflowIDKey, id)
}

func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// WithNodeID tags ctx with the node currently executing. Composite executors
// overwrite it for every child they dispatch.
func WithNodeID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, nodeIDKey, id)
}

func WorkflowID(ctx context.Context) string { return lookup(ctx, workflowIDKey) }

func RunID(ctx context.Context) string { return lookup(ctx, runIDKey) }

func NodeID(ctx context.Context) string { return lookup(ctx, nodeIDKey) }

func lookup(ctx context.Context, key ctxKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

// WithIDs sets the workflow, node and run ids in one call.
func WithIDs(ctx context.Context, workflowID, nodeID, runID string) context.Context {
	return WithRunID(WithNodeID(WithWorkflowID(ctx, workflowID), nodeID), runID)
}

func correlationAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	for _, c := range correlationKeys {
		if v := lookup(ctx, c.key); v != "" {
			attrs = append(attrs, slog.String(c.attr, v))
		}
	}
	return attrs
}

// LogWith binds the ids on ctx to logger, for call sites that log without a
// context.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	attrs := correlationAttrs(ctx)
	if len(attrs) == 0 {
		return logger
	}
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return logger.With(args...)
}

// CorrelationHandler adds the context's workflow, run and node ids to every
// record passed to the wrapped handler.
type CorrelationHandler struct {
	inner slog.Handler
}

func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(correlationAttrs(ctx)...)
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}

// ParseLevel maps debug|info|warn|error to a slog level. Unknown values fall
// back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a correlation-aware logger writing text or json records.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	return NewLoggerWithLevel(w, ParseLevel(level), format)
}

// NewLoggerWithLevel is NewLogger with a caller-owned level, typically a
// *slog.LevelVar that can change at runtime.
func NewLoggerWithLevel(w io.Writer, level slog.Leveler, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var inner slog.Handler
	if strings.EqualFold(format, "json") {
		inner = slog.NewJSONHandler(w, opts)
	} else {
		inner = slog.NewTextHandler(w, opts)
	}
	return slog.New(NewCorrelationHandler(inner))
}
