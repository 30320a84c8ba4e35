package actions

import (
	"log/slog"

	"github.com/rendis/nodeflow/internal/validation"
)

// RegisterBuiltins registers all built-in actions in the given registry.
// logger may be nil (slog.Default is used).
func RegisterBuiltins(reg *Registry, validator *validation.JSONSchemaValidator, logger *slog.Logger) error {
	all := make([]Action, 0, 12)

	all = append(all, ExprActions()...)
	all = append(all, AssertActions(validator)...)
	all = append(all, FlowActions(logger)...)

	return reg.RegisterAll(all...)
}
