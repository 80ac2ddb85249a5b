package executor

import (
	"context"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Executor abstracts submitting a task and executing it with bounded parallelism.
type Executor interface {
	// Execute submits the given task, blocking while all workers are busy.
	Execute(func(ctx context.Context) error)
}

// ExecuteWaiter adds Wait to Executor.
type ExecuteWaiter interface {
	Executor

	// Wait blocks until every submitted task has returned, then returns the first non-nil error.
	Wait() error
}

// DefaultConcurrency returns twice the number of logical CPUs.
//
// Tasks mix file reads with CPU-bound compression, hence more workers than CPUs.
func DefaultConcurrency() int {
	return 2 * runtime.NumCPU()
}

// Pool is an ExecuteWaiter backed by an errgroup.Group.
//
// The first task to fail cancels the context passed to every other task; tasks submitted after that are not run.
type Pool struct {
	g         *errgroup.Group
	ctx       context.Context
	submitted atomic.Int64
	completed atomic.Int64
}

var _ ExecuteWaiter = (*Pool)(nil)

// New returns a new Pool that runs at most n tasks at a time.
//
// If n is not positive, DefaultConcurrency is used.
func New(ctx context.Context, n int) *Pool {
	if n <= 0 {
		n = DefaultConcurrency()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(n)
	return &Pool{g: g, ctx: ctx}
}

func (p *Pool) Execute(f func(ctx context.Context) error) {
	p.submitted.Add(1)
	p.g.Go(func() error {
		defer p.completed.Add(1)

		if err := p.ctx.Err(); err != nil {
			return err
		}

		return f(p.ctx)
	})
}

func (p *Pool) Wait() error {
	return p.g.Wait()
}

// Pending returns the number of tasks that have been submitted but have not yet returned.
func (p *Pool) Pending() int {
	return int(p.submitted.Load() - p.completed.Load())
}

// Completed returns the number of tasks that have returned, successfully or not.
func (p *Pool) Completed() int {
	return int(p.completed.Load())
}
