// Package blockqueue provides a bounded, thread-safe double-ended queue with
// blocking, timed and context-bounded operations and a one-way close.
//
// States: Open (initial) -> Closed (terminal). Close drops pending items and
// wakes every blocked producer and consumer. After Close, pushes fail with
// ErrClosed and pops report closure instead of blocking.
package blockqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Sentinel errors for queue operations
var (
	// ErrClosed indicates the queue has been closed
	ErrClosed = errors.New("blockqueue: queue closed")

	// ErrFull indicates a non-blocking push found the queue at capacity
	ErrFull = errors.New("blockqueue: queue full")
)

// PopResult is the outcome of a timed pop
type PopResult int

const (
	// PopOK means an item was returned
	PopOK PopResult = iota
	// PopTimedOut means the wait elapsed with the queue still empty
	PopTimedOut
	// PopClosed means the queue was closed while empty
	PopClosed
)

// String returns the result name
func (r PopResult) String() string {
	switch r {
	case PopOK:
		return "ok"
	case PopTimedOut:
		return "timed out"
	case PopClosed:
		return "closed"
	default:
		return fmt.Sprintf("PopResult(%d)", int(r))
	}
}

// maxPreallocate bounds the initial ring allocation for large capacities
const maxPreallocate = 1024

// Queue is a bounded blocking deque of T
type Queue[T any] struct {
	mu sync.Mutex

	// notFull is signalled when space frees up (producers wait here)
	notFull *sync.Cond

	// notEmpty is signalled when an item arrives (consumers wait here)
	notEmpty *sync.Cond

	// drained is broadcast whenever the queue becomes empty
	drained *sync.Cond

	items    *deque[T]
	capacity int
	closed   bool
}

// New creates a queue holding at most capacity items. It panics if capacity
// is not positive.
func New[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		panic(fmt.Sprintf("blockqueue: capacity must be positive, got %d", capacity))
	}
	q := &Queue[T]{
		items:    newDeque[T](min(capacity, maxPreallocate)),
		capacity: capacity,
	}
	q.notFull = sync.NewCond(&q.mu)
	q.notEmpty = sync.NewCond(&q.mu)
	q.drained = sync.NewCond(&q.mu)
	return q
}

// PushBack appends item, blocking while the queue is full. Returns ErrClosed
// if the queue is or becomes closed before the item is inserted.
func (q *Queue[T]) PushBack(item T) error {
	return q.push(item, false)
}

// PushFront inserts item ahead of the current head, blocking while the queue
// is full. Returns ErrClosed if the queue is or becomes closed first.
func (q *Queue[T]) PushFront(item T) error {
	return q.push(item, true)
}

func (q *Queue[T]) push(item T, front bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.items.len() >= q.capacity && !q.closed {
		q.notFull.Wait()
	}
	if q.closed {
		return ErrClosed
	}

	if front {
		q.items.pushFront(item)
	} else {
		q.items.pushBack(item)
	}
	q.notEmpty.Signal()
	return nil
}

// TryPushBack appends item without blocking. Returns ErrFull when the queue is
// at capacity and ErrClosed after Close.
func (q *Queue[T]) TryPushBack(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if q.items.len() >= q.capacity {
		return ErrFull
	}
	q.items.pushBack(item)
	q.notEmpty.Signal()
	return nil
}

// Pop removes and returns the head item, blocking until one is available.
// The boolean is false only when the queue has been closed.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.items.len() == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if q.items.len() == 0 {
		var zero T
		return zero, false
	}
	return q.take(), true
}

// PopTimeout waits up to d for an item. The boolean is false on timeout or
// closure; use PopWait to tell the two apart.
func (q *Queue[T]) PopTimeout(d time.Duration) (T, bool) {
	item, res := q.PopWait(d)
	return item, res == PopOK
}

// PopWait waits up to d for an item and reports why it returned
func (q *Queue[T]) PopWait(d time.Duration) (T, PopResult) {
	var zero T

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.len() == 0 && !q.closed && d > 0 {
		deadline := time.Now().Add(d)
		timer := time.AfterFunc(d, func() {
			q.mu.Lock()
			q.notEmpty.Broadcast()
			q.mu.Unlock()
		})
		defer timer.Stop()

		for q.items.len() == 0 && !q.closed {
			if !time.Now().Before(deadline) {
				return zero, PopTimedOut
			}
			q.notEmpty.Wait()
		}
	}

	if q.items.len() == 0 {
		if q.closed {
			return zero, PopClosed
		}
		return zero, PopTimedOut
	}
	return q.take(), PopOK
}

// PopContext removes and returns the head item, blocking until one is
// available, ctx is done (ctx.Err()) or the queue is closed (ErrClosed).
func (q *Queue[T]) PopContext(ctx context.Context) (T, error) {
	var zero T

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.len() == 0 && !q.closed {
		stop := context.AfterFunc(ctx, func() {
			q.mu.Lock()
			q.notEmpty.Broadcast()
			q.mu.Unlock()
		})
		defer stop()

		for q.items.len() == 0 && !q.closed {
			if err := ctx.Err(); err != nil {
				return zero, err
			}
			q.notEmpty.Wait()
		}
	}

	if q.items.len() == 0 {
		return zero, ErrClosed
	}
	return q.take(), nil
}

// take pops the head and wakes a producer. Caller holds mu.
func (q *Queue[T]) take() T {
	item := q.items.popFront()
	q.notFull.Signal()
	if q.items.len() == 0 {
		q.drained.Broadcast()
	}
	return item
}

// Close drops all pending items, marks the queue closed and wakes every
// blocked producer and consumer. Safe to call more than once.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items.clear()
	q.closed = true
	q.notFull.Broadcast()
	q.notEmpty.Broadcast()
	q.drained.Broadcast()
}

// Clear drops all pending items without closing the queue
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items.clear()
	q.notFull.Broadcast()
	q.drained.Broadcast()
}

// Flush wakes one waiting consumer without providing an item, forcing it to
// re-check the queue state
func (q *Queue[T]) Flush() {
	q.mu.Lock()
	q.notEmpty.Signal()
	q.mu.Unlock()
}

// WaitEmpty blocks until the queue is empty or closed
func (q *Queue[T]) WaitEmpty() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.items.len() > 0 && !q.closed {
		q.drained.Wait()
	}
}

// Len returns the number of queued items
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.len()
}

// Cap returns the queue capacity
func (q *Queue[T]) Cap() int {
	return q.capacity
}

// Empty reports whether the queue holds no items
func (q *Queue[T]) Empty() bool {
	return q.Len() == 0
}

// Full reports whether the queue is at capacity
func (q *Queue[T]) Full() bool {
	return q.Len() >= q.capacity
}

// Closed reports whether Close has been called
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Front returns the head item without removing it
func (q *Queue[T]) Front() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.len() == 0 {
		var zero T
		return zero, false
	}
	return q.items.front(), true
}

// Back returns the tail item without removing it
func (q *Queue[T]) Back() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.len() == 0 {
		var zero T
		return zero, false
	}
	return q.items.back(), true
}
