// Package threadpool provides a fixed-size worker pool consuming an unbounded
// task queue.
//
// Every queued task is claimed by exactly one worker. Shutdown is graceful:
// workers drain the tasks still queued before exiting, and Shutdown joins them.
// No ordering is guaranteed between tasks claimed by different workers.
package threadpool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Sentinel errors for pool operations
var (
	// ErrPoolClosed indicates the pool has been shut down
	ErrPoolClosed = errors.New("threadpool: pool closed")

	// ErrNilTask indicates a nil task was submitted
	ErrNilTask = errors.New("threadpool: task cannot be nil")

	// ErrShutdownTimeout indicates workers did not finish before the shutdown context ended
	ErrShutdownTimeout = errors.New("threadpool: timeout waiting for workers to stop")
)

// Task is a unit of work executed by a worker
type Task func()

// Stats holds always-on pool counters
type Stats struct {
	Submitted int64 // Tasks accepted by AddTask
	Completed int64 // Tasks that returned (including recovered panics)
	Panicked  int64 // Tasks that panicked
	Pending   int   // Tasks queued but not yet claimed
}

// poolState is shared by the facade and every worker
type poolState struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  *queue.Queue // FIFO of Task, unbounded
	closed bool

	submitted atomic.Int64
	completed atomic.Int64
	panicked  atomic.Int64
}

// Pool runs submitted tasks on a fixed set of worker goroutines
type Pool struct {
	state   *poolState
	workers int

	// wg joins the worker goroutines on shutdown
	wg sync.WaitGroup

	logger  zerolog.Logger
	metrics *Metrics

	metricsReg    prometheus.Registerer
	metricsPrefix string
}

// Option configures a Pool
type Option func(*Pool)

// WithLogger sets the logger used to report recovered task panics
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Pool) {
		p.logger = logger
	}
}

// New starts a pool with the given number of workers. It panics if workers is
// not positive.
func New(workers int, opts ...Option) *Pool {
	if workers <= 0 {
		panic(fmt.Sprintf("threadpool: worker count must be positive, got %d", workers))
	}

	state := &poolState{
		tasks: queue.New(),
	}
	state.cond = sync.NewCond(&state.mu)

	p := &Pool{
		state:   state,
		workers: workers,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metricsReg != nil {
		p.metrics = newMetrics(p, p.metricsReg, p.metricsPrefix)
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

// AddTask queues task and wakes one idle worker. It never blocks.
func (p *Pool) AddTask(task Task) error {
	if task == nil {
		return ErrNilTask
	}

	s := p.state
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrPoolClosed
	}
	s.tasks.Add(task)
	s.submitted.Add(1)
	s.mu.Unlock()

	s.cond.Signal()
	p.metrics.recordSubmit()
	return nil
}

// worker claims tasks under the shared lock and runs them outside it, exiting
// once the pool is closed and the queue is empty
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	s := p.state
	s.mu.Lock()
	for {
		if s.tasks.Length() > 0 {
			task := s.tasks.Remove().(Task)
			s.mu.Unlock()

			p.run(id, task)

			s.mu.Lock()
			continue
		}
		if s.closed {
			break
		}
		s.cond.Wait()
	}
	s.mu.Unlock()

	p.logger.Debug().Int("worker", id).Msg("worker exiting")
}

// run executes one task, recovering panics so the worker survives
func (p *Pool) run(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.state.panicked.Add(1)
			p.metrics.recordPanic()
			p.logger.Error().
				Int("worker", id).
				Interface("panic_value", r).
				Str("stack_trace", string(debug.Stack())).
				Msg("task panic recovered, worker continues")
		}
		p.state.completed.Add(1)
		p.metrics.recordComplete()
	}()
	task()
}

// Shutdown marks the pool closed, wakes every worker and waits until all
// queued tasks have run and the workers have exited. Safe to call more than once.
func (p *Pool) Shutdown() {
	p.close()
	p.wg.Wait()
}

// ShutdownContext is Shutdown bounded by ctx. If ctx ends first, it returns an
// error wrapping ErrShutdownTimeout and ctx.Err(); workers keep draining.
func (p *Pool) ShutdownContext(ctx context.Context) error {
	p.close()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrShutdownTimeout, ctx.Err())
	}
}

func (p *Pool) close() {
	s := p.state
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Workers returns the fixed worker count
func (p *Pool) Workers() int {
	return p.workers
}

// Pending returns the number of queued tasks not yet claimed by a worker
func (p *Pool) Pending() int {
	s := p.state
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks.Length()
}

// Stats returns a snapshot of the pool counters
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.state.submitted.Load(),
		Completed: p.state.completed.Load(),
		Panicked:  p.state.panicked.Load(),
		Pending:   p.Pending(),
	}
}
