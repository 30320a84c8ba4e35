package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/rendis/nodeflow/pkg/schema"
)

// ParallelExecutor runs a node's children concurrently on a WorkerPool.
type ParallelExecutor struct {
	statusTracker
}

// NewParallelExecutor creates a ParallelExecutor.
func NewParallelExecutor() *ParallelExecutor {
	return &ParallelExecutor{}
}

func (p *ParallelExecutor) options(node *schema.Node) (schema.ParallelOptions, error) {
	section, err := node.Section(string(schema.NodeKindParallel))
	if err != nil {
		return schema.ParallelOptions{}, err
	}
	return schema.ParseParallelOptions(section)
}

// Validate checks the parallel section.
func (p *ParallelExecutor) Validate(node *schema.Node) error {
	_, err := p.options(node)
	return err
}

// Execute runs at most maxConcurrency children at once and returns their
// results in completion order. Under fail-fast the first abort halts the
// pool: running children finish, queued ones never start.
func (p *ParallelExecutor) Execute(ctx context.Context, node *schema.Node, ec *ExecutionContext) (any, error) {
	p.begin()
	opts, err := p.options(node)
	if err != nil {
		return p.finish(nil, err)
	}

	pool := NewWorkerPool(opts.MaxConcurrency)
	childEC := ec.WithoutPreviousResult()
	logger := ec.logger()

	var (
		mu       sync.Mutex
		results  = make([]any, 0, len(node.ChildIDs))
		errs     []error
		firstErr error
	)
	abort := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
		pool.Halt()
	}

	for _, childID := range node.ChildIDs {
		err := pool.Submit(ctx, func(cctx context.Context) error {
			result, err := runChild(cctx, ec, childID, childEC, opts.Timeout)
			if err == nil {
				mu.Lock()
				results = append(results, result)
				mu.Unlock()
				return nil
			}

			h := HandleChildError(cctx, logger, opts.ErrorStrategy, node.ID, childID, err)
			if h.Abort {
				abort(err)
				return err
			}
			mu.Lock()
			if h.Collect {
				errs = append(errs, err)
			}
			if h.Placeholder {
				results = append(results, nil)
			}
			mu.Unlock()
			return err
		})
		if errors.Is(err, ErrPoolHalted) {
			break
		}
		if err != nil {
			abort(err)
			break
		}
	}
	pool.Wait()

	m := pool.Metrics()
	logger.DebugContext(ctx, "parallel children finished",
		"children", len(node.ChildIDs), "completed", m.Completed, "failed", m.Failed, "peak", m.Peak)

	if firstErr != nil {
		return p.finish(nil, firstErr)
	}
	if m.Panics > 0 {
		return p.finish(nil, schema.NewErrorf(schema.ErrCodeExecution, "%d parallel child task(s) panicked", m.Panics).WithNode(node.ID))
	}
	if len(errs) > 0 {
		agg := schema.NewAggregateError(node.ID, errs)
		agg.Details["results"] = results
		return p.finish(nil, agg)
	}
	return p.finish(results, nil)
}
