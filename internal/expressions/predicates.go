package expressions

import (
	"context"
	"sort"
	"sync"

	"github.com/rendis/nodeflow/pkg/schema"
)

// Predicate is a named boolean check over a condition scope (see Scope.Data).
type Predicate func(ctx context.Context, data map[string]any) (bool, error)

// PredicateRegistry is a closed, thread-safe set of named predicates. Only
// registered names can be referenced from a workflow document.
type PredicateRegistry struct {
	mu    sync.RWMutex
	preds map[string]Predicate
}

// NewPredicateRegistry returns a registry preloaded with the builtins:
// always, never, has_previous and previous_truthy.
func NewPredicateRegistry() *PredicateRegistry {
	r := &PredicateRegistry{preds: make(map[string]Predicate)}
	r.preds["always"] = func(context.Context, map[string]any) (bool, error) { return true, nil }
	r.preds["never"] = func(context.Context, map[string]any) (bool, error) { return false, nil }
	r.preds["has_previous"] = func(_ context.Context, data map[string]any) (bool, error) {
		return data[ScopePrevious] != nil, nil
	}
	r.preds["previous_truthy"] = func(_ context.Context, data map[string]any) (bool, error) {
		return truthy(data[ScopePrevious]), nil
	}
	return r
}

// Register adds a predicate. Names are unique.
func (r *PredicateRegistry) Register(name string, p Predicate) error {
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "predicate name is empty")
	}
	if p == nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "predicate %q is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.preds[name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "predicate %q already registered", name)
	}
	r.preds[name] = p
	return nil
}

// Get looks up a predicate by name.
func (r *PredicateRegistry) Get(name string) (Predicate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.preds[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "predicate %q not registered", name)
	}
	return p, nil
}

// Has reports whether name is registered.
func (r *PredicateRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.preds[name]
	return ok
}

// Names returns the registered predicate names, sorted.
func (r *PredicateRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.preds))
	for n := range r.preds {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	case map[string]any:
		return len(val) > 0
	case []any:
		return len(val) > 0
	default:
		return true
	}
}
