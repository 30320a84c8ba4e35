package engine

import (
	"context"
	"time"

	"github.com/rendis/nodeflow/pkg/schema"
)

// runChild dispatches childID under its parent's per-child timeout. The
// budget is armed once the child may start and does not run while the run
// is paused. A child that times out is marked failed with the timeout error.
func runChild(ctx context.Context, ec *ExecutionContext, childID string, childEC *ExecutionContext, d time.Duration) (any, error) {
	dispatch := func(cctx context.Context) (any, error) {
		return ec.Dispatcher.Dispatch(cctx, childID, childEC)
	}
	if d <= 0 {
		return dispatch(ctx)
	}

	var g *gate
	if e := ec.exec; e != nil {
		if err := e.awaitTurn(ctx); err != nil {
			return nil, err
		}
		g = &e.gate
	}
	result, timedOut, err := runWithTimeout(ctx, g, childID, d, dispatch)
	if timedOut && ec.exec != nil {
		ec.exec.abandon(ctx, ec, childID, err)
	}
	return result, err
}

// runWithTimeout races fn against d, holding the clock while g is closed. On
// timeout the child context is cancelled with the timeout error and fn's
// goroutine is left to exit on its own. A nil g never pauses.
func runWithTimeout(ctx context.Context, g *gate, nodeID string, d time.Duration, fn func(context.Context) (any, error)) (any, bool, error) {
	tctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := fn(tctx)
		done <- outcome{r, err}
	}()

	remaining := d
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	armed := time.Now()

	for {
		var paused <-chan struct{}
		if g != nil {
			paused = g.closedSignal()
		}
		select {
		case o := <-done:
			return o.result, false, o.err
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-timer.C:
			terr := timeoutError(nodeID, d)
			cancel(terr)
			return nil, true, terr
		case <-paused:
			if !timer.Stop() {
				terr := timeoutError(nodeID, d)
				cancel(terr)
				return nil, true, terr
			}
			remaining -= time.Since(armed)
			select {
			case o := <-done:
				return o.result, false, o.err
			case <-ctx.Done():
				return nil, false, ctx.Err()
			case <-g.openSignal():
			}
			if remaining <= 0 {
				remaining = time.Millisecond
			}
			timer.Reset(remaining)
			armed = time.Now()
		}
	}
}

func timeoutError(nodeID string, d time.Duration) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeTimeout, "node %q timed out after %s", nodeID, d).
		WithNode(nodeID).
		WithCause(context.DeadlineExceeded).
		WithDetails(map[string]any{"timeout_ms": d.Milliseconds()})
}
