// Package connpool keeps a fixed set of pre-opened resources, such as database
// connections, and hands them out one caller at a time.
package connpool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned by Acquire once the pool has been closed
var ErrClosed = errors.New("connpool: pool closed")

// DialFunc opens one resource
type DialFunc[T any] func(ctx context.Context) (T, error)

// CloseFunc releases one resource
type CloseFunc[T any] func(T) error

type options struct {
	logger zerolog.Logger
}

// Option configures a Pool
type Option func(*options)

// WithLogger sets the logger for open and close failures
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Pool is a bounded set of resources guarded by a counting semaphore
type Pool[T any] struct {
	sem     *semaphore.Weighted
	size    int
	closeFn CloseFunc[T]
	logger  zerolog.Logger

	mu     sync.Mutex
	free   []T
	closed bool

	// done is cancelled by Close to wake blocked Acquire calls
	done   context.Context
	cancel context.CancelFunc
}

// Open dials size resources up front. If any dial fails, the ones already
// opened are closed and the error is returned.
func Open[T any](ctx context.Context, size int, dial DialFunc[T], closeFn CloseFunc[T], opts ...Option) (*Pool[T], error) {
	if size <= 0 {
		return nil, fmt.Errorf("connpool: size must be positive, got %d", size)
	}
	if dial == nil {
		return nil, fmt.Errorf("connpool: dial function is required")
	}
	if closeFn == nil {
		closeFn = func(T) error { return nil }
	}

	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	free := make([]T, 0, size)
	for i := 0; i < size; i++ {
		r, err := dial(ctx)
		if err != nil {
			for _, opened := range free {
				if cerr := closeFn(opened); cerr != nil {
					o.logger.Warn().Err(cerr).Msg("failed to close resource after dial error")
				}
			}
			return nil, fmt.Errorf("connpool: failed to open resource %d of %d: %w", i+1, size, err)
		}
		free = append(free, r)
	}

	done, cancel := context.WithCancel(context.Background())
	o.logger.Debug().Int("size", size).Msg("pool opened")
	return &Pool[T]{
		sem:     semaphore.NewWeighted(int64(size)),
		size:    size,
		closeFn: closeFn,
		logger:  o.logger,
		free:    free,
		done:    done,
		cancel:  cancel,
	}, nil
}

// Acquire blocks until a resource is free, ctx ends or the pool is closed
func (p *Pool[T]) Acquire(ctx context.Context) (T, error) {
	var zero T

	actx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.done, cancel)
	defer stop()

	if err := p.sem.Acquire(actx, 1); err != nil {
		if p.done.Err() != nil {
			return zero, ErrClosed
		}
		return zero, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.sem.Release(1)
		return zero, ErrClosed
	}

	last := len(p.free) - 1
	r := p.free[last]
	p.free[last] = zero
	p.free = p.free[:last]
	return r, nil
}

// Release returns r to the pool. After Close, r is closed instead.
func (p *Pool[T]) Release(r T) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		if err := p.closeFn(r); err != nil {
			p.logger.Warn().Err(err).Msg("failed to close released resource")
		}
		p.sem.Release(1)
		return
	}
	p.free = append(p.free, r)
	p.mu.Unlock()

	p.sem.Release(1)
}

// Do runs fn with an acquired resource and releases it afterwards
func (p *Pool[T]) Do(ctx context.Context, fn func(T) error) error {
	r, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(r)
	return fn(r)
}

// Available returns the number of free resources
func (p *Pool[T]) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Size returns the number of resources the pool was opened with
func (p *Pool[T]) Size() int {
	return p.size
}

// Close closes the free resources and fails pending and future Acquire calls.
// Resources still held are closed when released. Safe to call more than once.
func (p *Pool[T]) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	free := p.free
	p.free = nil
	p.mu.Unlock()

	p.cancel()

	var errs []error
	for _, r := range free {
		if err := p.closeFn(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
