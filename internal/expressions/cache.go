package expressions

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rendis/nodeflow/pkg/schema"
)

// DefaultCacheSize bounds how many compiled programs each engine keeps.
const DefaultCacheSize = 512

// programCache memoises compiled programs by source text, evicting the least
// recently used. Compilation runs outside the cache; when two goroutines race
// on the same source the first stored program wins.
type programCache[P any] struct {
	size    int
	lru     *lru.Cache[string, P]
	compile func(source string) (P, error)
}

func newProgramCache[P any](size int, compile func(string) (P, error)) *programCache[P] {
	if size <= 0 {
		size = DefaultCacheSize
	}
	// New only fails for a non-positive size.
	cache, _ := lru.New[string, P](size)
	return &programCache[P]{size: size, lru: cache, compile: compile}
}

func (c *programCache[P]) get(source string) (P, error) {
	if p, ok := c.lru.Get(source); ok {
		return p, nil
	}
	p, err := c.compile(source)
	if err != nil {
		var zero P
		return zero, err
	}
	if prev, ok, _ := c.lru.PeekOrAdd(source, p); ok {
		return prev, nil
	}
	return p, nil
}

func (c *programCache[P]) len() int { return c.lru.Len() }

// emptyExpression is the shared error for a blank expression.
func emptyExpression(language string) error {
	return schema.NewErrorf(schema.ErrCodeValidation, "empty %s expression", language)
}

// compileError wraps a parse or type-check failure as VALIDATION.
func compileError(language, expression string, err error) error {
	return schema.NewErrorf(schema.ErrCodeValidation, "%s: cannot compile %q: %s", language, expression, err.Error()).
		WithCause(err).
		WithDetails(map[string]any{"expression": expression, "language": language})
}

// evalError wraps a runtime failure as EXECUTION.
func evalError(language, expression string, err error) error {
	return schema.NewErrorf(schema.ErrCodeExecution, "%s: evaluating %q: %s", language, expression, err.Error()).
		WithCause(err).
		WithDetails(map[string]any{"expression": expression, "language": language})
}
