// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package workerpool implements spec.md's C4: a fixed-size worker pool with
// a single FIFO queue, bounded overflow spillover to freshly spawned
// goroutines (the Go runtime's own scheduler stands in for ".NET's system
// thread pool"), and thread-local-style detection of "am I running on this
// pool". Go has no portable thread-local storage, so pool identity travels
// through a context.Context value instead, stamped onto every action a
// worker runs.
package workerpool

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Action is one unit of work submitted to a Pool.
type Action func(ctx context.Context)

type poolIDKey struct{}

// PoolID returns the id of the Pool currently executing ctx's action, and
// whether ctx was produced by a Pool worker at all.
func PoolID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(poolIDKey{}).(string)
	return v, ok
}

// IsWorkerThread reports whether ctx was handed to the running action by
// any Pool's worker goroutine.
func IsWorkerThread(ctx context.Context) bool {
	_, ok := PoolID(ctx)
	return ok
}

// Pool is a fixed-size worker pool. Scheduling an action either enqueues it
// for one of the fixed workers, or — once the queue is deep enough or the
// pool is disposed — spills it onto a dedicated goroutine instead, so a
// burst of work never blocks the caller.
type Pool struct {
	id string

	mu    sync.Mutex
	cond  *sync.Cond
	queue []Action

	overflowThreshold int
	disposed          bool

	workersWG sync.WaitGroup

	serviced  atomic.Int64
	overflowed atomic.Int64
}

// New starts a Pool with exactly workers worker goroutines. overflowThreshold
// is the queue depth at or above which Run spills new work onto its own
// goroutine instead of enqueueing; a non-positive value disables the fixed
// queue entirely (every Run call overflows).
func New(workers, overflowThreshold int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	p := &Pool{id: uuid.NewString(), overflowThreshold: overflowThreshold}
	p.cond = sync.NewCond(&p.mu)
	p.workersWG.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.workersWG.Done()
	ctx := context.WithValue(context.Background(), poolIDKey{}, p.id)
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.disposed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			// disposed and drained
			p.mu.Unlock()
			return
		}
		action := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		action(ctx)
		p.serviced.Add(1)
	}
}

// Run schedules action. If the pool has been disposed, or its queue depth
// is already at or above overflowThreshold, action runs on a fresh
// goroutine instead of the fixed pool.
func (p *Pool) Run(action Action) {
	p.mu.Lock()
	if p.disposed || len(p.queue) >= p.overflowThreshold {
		p.mu.Unlock()
		p.overflowed.Add(1)
		go action(context.Background())
		return
	}
	p.queue = append(p.queue, action)
	p.mu.Unlock()
	p.cond.Signal()
}

// Schedule implements duplex.Scheduler: it runs work through the pool
// without stamping a pool-id context, for callers that only need "resume
// somewhere off this goroutine" rather than pool-identity detection.
func (p *Pool) Schedule(work func()) {
	p.Run(func(context.Context) { work() })
}

// Dispose flags the pool and wakes every idle worker; workers still holding
// queued work drain it first, then exit. Dispose does not wait for
// in-flight or spilled-over work to finish; call Wait for that.
func (p *Pool) Dispose() {
	p.mu.Lock()
	p.disposed = true
	p.mu.Unlock()
	p.cond.Broadcast()
}

// Wait blocks until every worker goroutine has exited. Call Dispose first.
func (p *Pool) Wait() { p.workersWG.Wait() }

// Serviced returns how many actions have run on the fixed pool (not
// counting overflow).
func (p *Pool) Serviced() int64 { return p.serviced.Load() }

// Overflowed returns how many actions spilled onto their own goroutine
// instead of the fixed pool.
func (p *Pool) Overflowed() int64 { return p.overflowed.Load() }

// ID returns this pool's unique identity, the value PoolID reports for
// actions it runs.
func (p *Pool) ID() string { return p.id }
