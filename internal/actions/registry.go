package actions

import (
	"regexp"
	"sort"
	"sync"

	"github.com/rendis/nodeflow/pkg/schema"
)

// actionName matches lowercase dotted names such as "jq" or "assert.equals".
var actionName = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)*$`)

// Registry maps action names to actions. It is safe for concurrent use and
// satisfies both ActionRegistry and the validator's name lookup.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]Action
}

func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]Action)}
}

// Register adds one action. Names must be lowercase and dotted; a name can
// only be registered once.
func (r *Registry) Register(action Action) error {
	if action == nil {
		return schema.NewError(schema.ErrCodeValidation, "action is nil")
	}
	name := action.Name()
	if !actionName.MatchString(name) {
		return schema.NewErrorf(schema.ErrCodeValidation, "invalid action name %q: want lowercase dotted segments", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.actions[name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "action %q already registered", name)
	}
	r.actions[name] = action
	return nil
}

// RegisterAll registers every action, all or nothing: on the first failure
// none of the batch is kept.
func (r *Registry) RegisterAll(actions ...Action) error {
	seen := make(map[string]bool, len(actions))
	for _, a := range actions {
		if a == nil {
			return schema.NewError(schema.ErrCodeValidation, "action is nil")
		}
		name := a.Name()
		if !actionName.MatchString(name) {
			return schema.NewErrorf(schema.ErrCodeValidation, "invalid action name %q: want lowercase dotted segments", name)
		}
		if seen[name] {
			return schema.NewErrorf(schema.ErrCodeConflict, "action %q appears twice in batch", name)
		}
		seen[name] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for name := range seen {
		if _, exists := r.actions[name]; exists {
			return schema.NewErrorf(schema.ErrCodeConflict, "action %q already registered", name)
		}
	}
	for _, a := range actions {
		r.actions[a.Name()] = a
	}
	return nil
}

func (r *Registry) Get(name string) (Action, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	action, ok := r.actions[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "action %q not registered", name)
	}
	return action, nil
}

// List summarises every action, sorted by name.
func (r *Registry) List() []ActionInfo {
	r.mu.RLock()
	infos := make([]ActionInfo, 0, len(r.actions))
	for name, a := range r.actions {
		infos = append(infos, ActionInfo{Name: name, Description: a.Schema().Description})
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.actions[name]
	return ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actions)
}
