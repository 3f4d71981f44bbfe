// Package workers runs blocking filesystem jobs on a fixed set of goroutines
// so request handlers never walk large trees themselves.
package workers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/fruitsalade/dirserve/internal/logging"
	"github.com/fruitsalade/dirserve/internal/metrics"
)

// ErrStopped is returned for work submitted after Stop.
var ErrStopped = errors.New("worker pool stopped")

type job struct {
	ctx  context.Context
	fn   func(context.Context)
	done chan struct{}
}

// Pool is a bounded set of workers fed from an unbuffered queue.
type Pool struct {
	queue   chan job
	quit    chan struct{}
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	workers int
	busy    atomic.Int64

	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates a pool with the given number of workers. A non-positive count
// selects two.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = 2
	}
	return &Pool{
		queue:   make(chan job),
		quit:    make(chan struct{}),
		workers: workers,
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.workers }

// Busy returns the number of workers currently running a job.
func (p *Pool) Busy() int { return int(p.busy.Load()) }

// Start launches the worker goroutines. Cancelling ctx stops them.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		ctx, p.cancel = context.WithCancel(ctx)
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker(ctx)
		}
		logging.Info("worker pool started", zap.Int("workers", p.workers))
	})
}

// Stop refuses new work and waits for running jobs to finish.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.quit)
		if p.cancel != nil {
			p.cancel()
		}
		p.wg.Wait()
		logging.Info("worker pool stopped")
	})
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.quit:
			return
		case j := <-p.queue:
			p.run(j)
		}
	}
}

func (p *Pool) run(j job) {
	defer close(j.done)
	metrics.SetPoolBusy(int(p.busy.Add(1)))
	defer func() { metrics.SetPoolBusy(int(p.busy.Add(-1))) }()
	j.fn(j.ctx)
}

// Do hands fn to a worker and waits for it to return. It blocks until a
// worker is free, ctx is done, or the pool stops. fn receives ctx and should
// honor its cancellation.
func (p *Pool) Do(ctx context.Context, fn func(context.Context)) error {
	j := job{ctx: ctx, fn: fn, done: make(chan struct{})}
	select {
	case <-p.quit:
		return ErrStopped
	default:
	}
	select {
	case p.queue <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.quit:
		return ErrStopped
	}
	<-j.done
	return nil
}

// Run executes fn on the pool and returns its result.
func Run[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) (T, error) {
	var (
		out T
		err error
	)
	if doErr := p.Do(ctx, func(ctx context.Context) {
		out, err = fn(ctx)
	}); doErr != nil {
		var zero T
		return zero, doErr
	}
	return out, err
}
