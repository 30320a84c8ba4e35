package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for structured error reporting.
const (
	ErrCodeConfiguration     = "CONFIGURATION_ERROR"
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeExecution         = "EXECUTION_ERROR"
	ErrCodeTimeout           = "TIMEOUT_ERROR"
	ErrCodeAggregate         = "AGGREGATE_ERROR"
	ErrCodeCancelled         = "CANCELLED"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeCycleDetected     = "CYCLE_DETECTED"
)

// FlowError is the structured error type for all engine operations.
type FlowError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	NodeID  string         `json:"node_id,omitempty"`
	Cause   error          `json:"-"`

	// errs holds the member failures of an aggregate error.
	errs []error
}

func (e *FlowError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the cause and, for aggregate errors, every member error so
// errors.Is and errors.As can see through the aggregation.
func (e *FlowError) Unwrap() []error {
	out := make([]error, 0, len(e.errs)+1)
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return append(out, e.errs...)
}

// Is matches another FlowError with the same code and message, which is what
// sentinel comparisons such as errors.Is(err, ErrStopped) need.
func (e *FlowError) Is(target error) bool {
	t, ok := target.(*FlowError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == e.Message && t.NodeID == e.NodeID
}

// Errors returns the member errors of an aggregate error.
func (e *FlowError) Errors() []error {
	out := make([]error, len(e.errs))
	copy(out, e.errs)
	return out
}

// NewError creates a new FlowError.
func NewError(code, message string) *FlowError {
	return &FlowError{Code: code, Message: message}
}

// NewErrorf creates a new FlowError with a formatted message.
func NewErrorf(code, format string, args ...any) *FlowError {
	return &FlowError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewAggregateError combines the failures collected by a composite node.
func NewAggregateError(nodeID string, errs []error) *FlowError {
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}
	e := NewErrorf(ErrCodeAggregate, "%d child node(s) failed: %s", len(errs), strings.Join(msgs, "; "))
	e.NodeID = nodeID
	e.errs = append([]error(nil), errs...)
	e.Details = map[string]any{"error_count": len(errs)}
	return e
}

// WithNode attaches a node ID to the error.
func (e *FlowError) WithNode(nodeID string) *FlowError {
	e.NodeID = nodeID
	return e
}

// WithCause attaches an underlying cause.
func (e *FlowError) WithCause(err error) *FlowError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *FlowError) WithDetails(details map[string]any) *FlowError {
	e.Details = details
	return e
}

// CodeOf returns the code of the outermost FlowError in err's chain, or "".
func CodeOf(err error) string {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// IsConfigurationError reports whether err is (or wraps) a configuration error.
// Configuration errors are never absorbed by a composite's error strategy.
func IsConfigurationError(err error) bool {
	return hasCode(err, ErrCodeConfiguration)
}

// IsTimeout reports whether err is (or wraps) a node timeout.
func IsTimeout(err error) bool {
	return hasCode(err, ErrCodeTimeout)
}

func hasCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var fe *FlowError
	if errors.As(err, &fe) && fe.Code == code {
		return true
	}
	// Aggregates may carry the code on a member only.
	if errors.As(err, &fe) && fe.Code == ErrCodeAggregate {
		for _, member := range fe.errs {
			if hasCode(member, code) {
				return true
			}
		}
	}
	return false
}
