package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/rendis/nodeflow/pkg/schema"
)

// ErrorHandlerResult describes how a composite treats one failed child.
type ErrorHandlerResult struct {
	// Abort stops the composite and propagates the error unchanged.
	Abort bool
	// Placeholder records a nil result in the child's slot.
	Placeholder bool
	// Collect adds the error to the aggregate raised after all children ran.
	Collect bool
}

// HandleChildError applies strategy to a child failure. Configuration errors,
// stop, and cancellation of the run always abort.
func HandleChildError(ctx context.Context, logger *slog.Logger, strategy schema.ErrorStrategy, parentID, childID string, err error) ErrorHandlerResult {
	if isAbortError(err) {
		return ErrorHandlerResult{Abort: true}
	}

	var res ErrorHandlerResult
	switch strategy {
	case schema.ErrorStrategyContinue:
		res = ErrorHandlerResult{Placeholder: true, Collect: true}
	case schema.ErrorStrategyIgnore:
		res = ErrorHandlerResult{}
	case schema.ErrorStrategyTolerate:
		res = ErrorHandlerResult{Placeholder: true}
	default:
		return ErrorHandlerResult{Abort: true}
	}

	if logger != nil {
		logger.DebugContext(ctx, "child error handled",
			"parent", parentID, "child", childID,
			"strategy", string(strategy), "error", err.Error())
	}
	return res
}

func isAbortError(err error) bool {
	return schema.IsConfigurationError(err) ||
		errors.Is(err, ErrStopped) ||
		errors.Is(err, context.Canceled)
}
