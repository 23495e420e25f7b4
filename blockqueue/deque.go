package blockqueue

// deque is a growable ring buffer supporting insertion and removal at both ends.
// It is not safe for concurrent use; Queue guards it with its mutex.
type deque[T any] struct {
	buf   []T
	head  int // index of the first element
	count int // number of stored elements
}

func newDeque[T any](hint int) *deque[T] {
	if hint < 1 {
		hint = 1
	}
	return &deque[T]{buf: make([]T, hint)}
}

func (d *deque[T]) len() int {
	return d.count
}

func (d *deque[T]) grow() {
	if d.count < len(d.buf) {
		return
	}
	grown := make([]T, len(d.buf)*2)
	for i := 0; i < d.count; i++ {
		grown[i] = d.buf[(d.head+i)%len(d.buf)]
	}
	d.buf = grown
	d.head = 0
}

func (d *deque[T]) pushBack(v T) {
	d.grow()
	d.buf[(d.head+d.count)%len(d.buf)] = v
	d.count++
}

func (d *deque[T]) pushFront(v T) {
	d.grow()
	d.head = (d.head - 1 + len(d.buf)) % len(d.buf)
	d.buf[d.head] = v
	d.count++
}

// popFront removes the head element. The caller checks len() first.
func (d *deque[T]) popFront() T {
	var zero T
	v := d.buf[d.head]
	d.buf[d.head] = zero
	d.head = (d.head + 1) % len(d.buf)
	d.count--
	return v
}

func (d *deque[T]) front() T {
	return d.buf[d.head]
}

func (d *deque[T]) back() T {
	return d.buf[(d.head+d.count-1)%len(d.buf)]
}

func (d *deque[T]) clear() {
	clear(d.buf)
	d.head = 0
	d.count = 0
}
