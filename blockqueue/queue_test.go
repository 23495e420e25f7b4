package blockqueue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("positive capacity", func(t *testing.T) {
		q := New[int](3)
		assert.Equal(t, 3, q.Cap())
		assert.True(t, q.Empty())
		assert.False(t, q.Full())
		assert.False(t, q.Closed())
	})

	t.Run("non-positive capacity panics", func(t *testing.T) {
		assert.Panics(t, func() { New[int](0) })
		assert.Panics(t, func() { New[string](-1) })
	})
}

func TestQueue_FIFO(t *testing.T) {
	const n = 100
	q := New[int](n)
	for i := 1; i <= n; i++ {
		require.NoError(t, q.PushBack(i))
	}
	assert.True(t, q.Full())

	for i := 1; i <= n; i++ {
		v, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	assert.True(t, q.Empty())
}

func TestQueue_PushFront(t *testing.T) {
	q := New[string](4)
	require.NoError(t, q.PushBack("b"))
	require.NoError(t, q.PushBack("c"))
	require.NoError(t, q.PushFront("a"))

	front, ok := q.Front()
	require.True(t, ok)
	assert.Equal(t, "a", front)
	back, ok := q.Back()
	require.True(t, ok)
	assert.Equal(t, "c", back)

	for _, want := range []string{"a", "b", "c"} {
		got, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}

	_, ok = q.Front()
	assert.False(t, ok)
	_, ok = q.Back()
	assert.False(t, ok)
}

func TestQueue_Backpressure(t *testing.T) {
	q := New[int](2)
	require.NoError(t, q.PushBack(1))
	require.NoError(t, q.PushBack(2))

	pushed := make(chan struct{})
	go func() {
		assert.NoError(t, q.PushBack(3))
		close(pushed)
	}()

	select {
	case <-pushed:
		t.Fatal("PushBack(3) should block while the queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	v, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	select {
	case <-pushed:
	case <-time.After(time.Second):
		t.Fatal("PushBack(3) should complete after a Pop")
	}

	for _, want := range []int{2, 3} {
		got, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestQueue_TryPushBack(t *testing.T) {
	q := New[int](1)
	assert.NoError(t, q.TryPushBack(1))
	assert.ErrorIs(t, q.TryPushBack(2), ErrFull)

	q.Close()
	assert.ErrorIs(t, q.TryPushBack(3), ErrClosed)
}

func TestQueue_Close(t *testing.T) {
	t.Run("unblocks timed pop", func(t *testing.T) {
		q := New[int](4)
		done := make(chan PopResult, 1)
		go func() {
			_, res := q.PopWait(60 * time.Second)
			done <- res
		}()

		time.Sleep(20 * time.Millisecond)
		start := time.Now()
		q.Close()

		select {
		case res := <-done:
			assert.Equal(t, PopClosed, res)
			assert.Less(t, time.Since(start), time.Second)
		case <-time.After(2 * time.Second):
			t.Fatal("PopWait did not return after Close")
		}
	})

	t.Run("unblocks boolean timed pop", func(t *testing.T) {
		q := New[int](4)
		done := make(chan bool, 1)
		go func() {
			_, ok := q.PopTimeout(60 * time.Second)
			done <- ok
		}()

		time.Sleep(20 * time.Millisecond)
		q.Close()

		select {
		case ok := <-done:
			assert.False(t, ok)
		case <-time.After(2 * time.Second):
			t.Fatal("PopTimeout did not return after Close")
		}
	})

	t.Run("unblocks untimed pop", func(t *testing.T) {
		q := New[int](4)
		done := make(chan bool, 1)
		go func() {
			_, ok := q.Pop()
			done <- ok
		}()

		time.Sleep(20 * time.Millisecond)
		q.Close()

		select {
		case ok := <-done:
			assert.False(t, ok)
		case <-time.After(2 * time.Second):
			t.Fatal("Pop did not return after Close")
		}
	})

	t.Run("unblocks full producer", func(t *testing.T) {
		q := New[int](1)
		require.NoError(t, q.PushBack(1))
		done := make(chan error, 1)
		go func() { done <- q.PushFront(2) }()

		time.Sleep(20 * time.Millisecond)
		q.Close()

		select {
		case err := <-done:
			assert.ErrorIs(t, err, ErrClosed)
		case <-time.After(2 * time.Second):
			t.Fatal("PushFront did not return after Close")
		}
	})

	t.Run("drops pending items and rejects pushes", func(t *testing.T) {
		q := New[int](4)
		require.NoError(t, q.PushBack(1))
		q.Close()
		q.Close()

		assert.True(t, q.Closed())
		assert.Equal(t, 0, q.Len())
		assert.ErrorIs(t, q.PushBack(2), ErrClosed)

		_, ok := q.Pop()
		assert.False(t, ok)
	})
}

func TestQueue_PopWait(t *testing.T) {
	t.Run("times out when empty", func(t *testing.T) {
		q := New[int](1)
		start := time.Now()
		_, res := q.PopWait(30 * time.Millisecond)
		assert.Equal(t, PopTimedOut, res)
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	})

	t.Run("zero wait does not block", func(t *testing.T) {
		q := New[int](1)
		_, res := q.PopWait(0)
		assert.Equal(t, PopTimedOut, res)

		require.NoError(t, q.PushBack(7))
		v, res := q.PopWait(0)
		assert.Equal(t, PopOK, res)
		assert.Equal(t, 7, v)
	})

	t.Run("returns item pushed during the wait", func(t *testing.T) {
		q := New[int](1)
		go func() {
			time.Sleep(10 * time.Millisecond)
			q.PushBack(42)
		}()
		v, res := q.PopWait(time.Second)
		assert.Equal(t, PopOK, res)
		assert.Equal(t, 42, v)
	})

	t.Run("result names", func(t *testing.T) {
		assert.Equal(t, "ok", PopOK.String())
		assert.Equal(t, "timed out", PopTimedOut.String())
		assert.Equal(t, "closed", PopClosed.String())
	})
}

func TestQueue_PopContext(t *testing.T) {
	t.Run("cancelled context", func(t *testing.T) {
		q := New[int](1)
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		_, err := q.PopContext(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("closed queue", func(t *testing.T) {
		q := New[int](1)
		q.Close()
		_, err := q.PopContext(context.Background())
		assert.ErrorIs(t, err, ErrClosed)
	})

	t.Run("item available", func(t *testing.T) {
		q := New[int](1)
		require.NoError(t, q.PushBack(5))
		v, err := q.PopContext(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 5, v)
	})
}

func TestQueue_ClearFlushWaitEmpty(t *testing.T) {
	t.Run("clear keeps queue open", func(t *testing.T) {
		q := New[int](2)
		require.NoError(t, q.PushBack(1))
		require.NoError(t, q.PushBack(2))
		q.Clear()
		assert.True(t, q.Empty())
		assert.False(t, q.Closed())
		assert.NoError(t, q.PushBack(3))
	})

	t.Run("flush wakes consumer that keeps waiting", func(t *testing.T) {
		q := New[int](1)
		got := make(chan int, 1)
		go func() {
			v, _ := q.Pop()
			got <- v
		}()
		time.Sleep(10 * time.Millisecond)
		q.Flush()

		select {
		case <-got:
			t.Fatal("flush must not hand out an item")
		case <-time.After(20 * time.Millisecond):
		}

		require.NoError(t, q.PushBack(9))
		assert.Equal(t, 9, <-got)
	})

	t.Run("wait empty returns once consumers drain", func(t *testing.T) {
		q := New[int](8)
		for i := 0; i < 8; i++ {
			require.NoError(t, q.PushBack(i))
		}
		go func() {
			for i := 0; i < 8; i++ {
				time.Sleep(time.Millisecond)
				q.Pop()
			}
		}()

		done := make(chan struct{})
		go func() {
			q.WaitEmpty()
			close(done)
		}()
		select {
		case <-done:
			assert.True(t, q.Empty())
		case <-time.After(2 * time.Second):
			t.Fatal("WaitEmpty did not return")
		}
	})
}

func TestQueue_ConcurrentProducersConsumers(t *testing.T) {
	const (
		producers = 8
		consumers = 4
		perProd   = 2000
	)
	q := New[int](16)

	var sum atomic.Int64
	var received atomic.Int64
	var consumersWG sync.WaitGroup
	for i := 0; i < consumers; i++ {
		consumersWG.Add(1)
		go func() {
			defer consumersWG.Done()
			for {
				v, ok := q.Pop()
				if !ok {
					return
				}
				sum.Add(int64(v))
				received.Add(1)
			}
		}()
	}

	var producersWG sync.WaitGroup
	for p := 0; p < producers; p++ {
		producersWG.Add(1)
		go func() {
			defer producersWG.Done()
			for i := 1; i <= perProd; i++ {
				assert.NoError(t, q.PushBack(i))
			}
		}()
	}
	producersWG.Wait()
	q.WaitEmpty()

	// consumers may still be accounting the last popped items
	require.Eventually(t, func() bool {
		return received.Load() == producers*perProd
	}, 2*time.Second, time.Millisecond)
	q.Close()
	consumersWG.Wait()

	assert.Equal(t, int64(producers*perProd*(perProd+1)/2), sum.Load())
}

func TestDeque_Wraparound(t *testing.T) {
	d := newDeque[int](2)
	for i := 0; i < 50; i++ {
		d.pushBack(i)
		d.pushFront(-i)
		assert.Equal(t, i, d.back())
		assert.Equal(t, -i, d.front())
		d.popFront()
	}
	assert.Equal(t, 50, d.len())
	for i := 0; i < 50; i++ {
		assert.Equal(t, i, d.popFront())
	}
	assert.Equal(t, 0, d.len())
}
