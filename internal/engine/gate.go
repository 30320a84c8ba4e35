package engine

import (
	"context"
	"sync"
)

// gate blocks dispatch while a run is paused. A nil ch means open.
type gate struct {
	mu   sync.Mutex
	ch   chan struct{} // closed by Open
	shut chan struct{} // closed by Close; made on demand while open
}

var closedChan = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// Close shuts the gate. It reports false if the gate was already closed.
func (g *gate) Close() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ch != nil {
		return false
	}
	g.ch = make(chan struct{})
	if g.shut != nil {
		close(g.shut)
		g.shut = nil
	}
	return true
}

// Open releases every waiter. It reports false if the gate was already open.
func (g *gate) Open() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ch == nil {
		return false
	}
	close(g.ch)
	g.ch = nil
	return true
}

func (g *gate) IsClosed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ch != nil
}

// Wait returns once the gate is open or ctx is done.
func (g *gate) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		ch := g.ch
		g.mu.Unlock()
		if ch == nil {
			return nil
		}
		select {
		case <-ch:
			// re-check: the gate may have been closed again before we woke
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// closedSignal returns a channel that is closed once the gate is closed.
func (g *gate) closedSignal() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ch != nil {
		return closedChan
	}
	if g.shut == nil {
		g.shut = make(chan struct{})
	}
	return g.shut
}

// openSignal returns a channel that is closed once the gate is open.
func (g *gate) openSignal() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ch == nil {
		return closedChan
	}
	return g.ch
}
