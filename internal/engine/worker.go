package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// PoolMetrics is a snapshot of a WorkerPool's counters.
type PoolMetrics struct {
	Active    int64 `json:"active"`
	Peak      int64 `json:"peak"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Panics    int64 `json:"panics"`
}

var ErrPoolHalted = errors.New("worker pool is halted")

type poolCounters struct {
	active, peak, completed, failed, panics atomic.Int64
}

// WorkerPool runs the children of a parallel node with a concurrency cap.
// Submit blocks while the pool is full, which is what queues pending children.
type WorkerPool struct {
	slots    chan struct{} // nil when unbounded
	wg       sync.WaitGroup
	counters poolCounters

	mu     sync.Mutex
	halted bool
	halt   chan struct{}
}

// NewWorkerPool returns a pool running at most size tasks at once; size <= 0
// means unbounded.
func NewWorkerPool(size int) *WorkerPool {
	p := &WorkerPool{halt: make(chan struct{})}
	if size > 0 {
		p.slots = make(chan struct{}, size)
	}
	return p
}

// Submit starts fn once a slot is free. It returns ErrPoolHalted when the
// pool halts first, or ctx.Err() when ctx ends first. fn's error and panics
// only feed the counters; callers report outcomes through fn itself.
func (p *WorkerPool) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := p.acquire(ctx); err != nil {
		return err
	}

	// Registering under mu means Halt followed by Wait sees every started task.
	p.mu.Lock()
	if p.halted {
		p.mu.Unlock()
		p.release()
		return ErrPoolHalted
	}
	p.wg.Add(1)
	p.raisePeak(p.counters.active.Add(1))
	p.mu.Unlock()

	go p.run(ctx, fn)
	return nil
}

func (p *WorkerPool) acquire(ctx context.Context) error {
	if p.Halted() {
		return ErrPoolHalted
	}
	if p.slots == nil {
		return nil
	}
	select {
	case p.slots <- struct{}{}:
		return nil
	case <-p.halt:
		return ErrPoolHalted
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *WorkerPool) release() {
	if p.slots != nil {
		<-p.slots
	}
}

func (p *WorkerPool) raisePeak(active int64) {
	for {
		peak := p.counters.peak.Load()
		if active <= peak || p.counters.peak.CompareAndSwap(peak, active) {
			return
		}
	}
}

func (p *WorkerPool) run(ctx context.Context, fn func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			p.counters.panics.Add(1)
			p.counters.failed.Add(1)
		}
		p.counters.active.Add(-1)
		p.release()
		p.wg.Done()
	}()

	if err := fn(ctx); err != nil {
		p.counters.failed.Add(1)
		return
	}
	p.counters.completed.Add(1)
}

// Halt stops admitting work. Running tasks carry on; blocked Submit calls
// return ErrPoolHalted.
func (p *WorkerPool) Halt() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.halted {
		p.halted = true
		close(p.halt)
	}
}

func (p *WorkerPool) Halted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.halted
}

// Wait blocks until every submitted task has returned.
func (p *WorkerPool) Wait() { p.wg.Wait() }

func (p *WorkerPool) Metrics() PoolMetrics {
	c := &p.counters
	return PoolMetrics{
		Active:    c.active.Load(),
		Peak:      c.peak.Load(),
		Completed: c.completed.Load(),
		Failed:    c.failed.Load(),
		Panics:    c.panics.Load(),
	}
}
