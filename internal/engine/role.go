package engine

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rendis/nodeflow/pkg/schema"
)

// Role is an agent that runs one observe/think/act cycle per node.
type Role interface {
	Observe(ctx context.Context) error
	Think(ctx context.Context) error
	Act(ctx context.Context) (*schema.Message, error)
}

// RoleRegistry maps names to Role instances for config.role lookups.
type RoleRegistry struct {
	mu    sync.RWMutex
	roles map[string]Role
}

// NewRoleRegistry creates an empty RoleRegistry.
func NewRoleRegistry() *RoleRegistry {
	return &RoleRegistry{roles: make(map[string]Role)}
}

// Register adds role under name.
func (r *RoleRegistry) Register(name string, role Role) error {
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "role name is required")
	}
	if role == nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "role %q is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.roles[name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "role %q already registered", name)
	}
	r.roles[name] = role
	return nil
}

// Get looks up a role by name.
func (r *RoleRegistry) Get(name string) (Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	role, ok := r.roles[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "role %q not registered", name)
	}
	return role, nil
}

// Has reports whether name is registered.
func (r *RoleRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.roles[name]
	return ok
}

// Names returns the registered role names, sorted.
func (r *RoleRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.roles))
	for n := range r.roles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RoleExecutor runs role nodes.
type RoleExecutor struct {
	statusTracker
	roles *RoleRegistry
}

// NewRoleExecutor creates a RoleExecutor. roles may be nil when every role
// node carries its Role instance inline.
func NewRoleExecutor(roles *RoleRegistry) *RoleExecutor {
	if roles == nil {
		roles = NewRoleRegistry()
	}
	return &RoleExecutor{roles: roles}
}

func (x *RoleExecutor) resolve(node *schema.Node) (Role, error) {
	switch v := node.Config["role"].(type) {
	case nil:
		return nil, schema.NewError(schema.ErrCodeValidation, "config.role is required")
	case Role:
		return v, nil
	case string:
		return x.roles.Get(v)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "config.role must be a Role or a role name, got %T", v)
	}
}

// Validate checks that config.role resolves.
func (x *RoleExecutor) Validate(node *schema.Node) error {
	_, err := x.resolve(node)
	return err
}

// Execute runs Observe, Think, then Act and returns the Act message.
func (x *RoleExecutor) Execute(ctx context.Context, node *schema.Node, ec *ExecutionContext) (any, error) {
	x.begin()
	role, err := x.resolve(node)
	if err != nil {
		return x.finish(nil, err)
	}

	if err := role.Observe(ctx); err != nil {
		return x.finish(nil, roleError(node.ID, "observe", err))
	}
	if err := role.Think(ctx); err != nil {
		return x.finish(nil, roleError(node.ID, "think", err))
	}
	msg, err := role.Act(ctx)
	if err != nil {
		return x.finish(nil, roleError(node.ID, "act", err))
	}
	ec.logger().DebugContext(ctx, "role acted", "has_message", msg != nil)
	return x.finish(msg, nil)
}

func roleError(nodeID, phase string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var fe *schema.FlowError
	if errors.As(err, &fe) {
		return err
	}
	return schema.NewErrorf(schema.ErrCodeExecution, "role %s: %s", phase, err.Error()).
		WithNode(nodeID).
		WithCause(err).
		WithDetails(map[string]any{"phase": phase})
}
