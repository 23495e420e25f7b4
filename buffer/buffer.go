// Package buffer provides a growable byte staging area with independent read
// and write cursors, used to stage data read from or written to a descriptor.
//
// Layout of the backing array:
//
//	+-------------------+------------------+------------------+
//	| prependable bytes |  readable bytes  |  writable bytes  |
//	|                   |     (content)    |                  |
//	+-------------------+------------------+------------------+
//	0      <=       readPos     <=     writePos     <=     len(data)
//
// A Buffer is owned by one goroutine at a time. Callers sharing a Buffer across
// goroutines must lock around each multi-step operation themselves.
package buffer

import (
	"bytes"
	"fmt"
	"io"
)

// DefaultInitialSize is the backing array size used when New is given a non-positive size
const DefaultInitialSize = 1024

// Buffer is a byte buffer with separate read and write cursors
type Buffer struct {
	// data is the backing array; len(data) is the buffer capacity
	data []byte

	// readPos is the start of unread data
	readPos int

	// writePos is the start of free space
	writePos int
}

var _ io.Writer = (*Buffer)(nil)

// New creates a Buffer with the given initial backing size
func New(initialSize int) *Buffer {
	if initialSize <= 0 {
		initialSize = DefaultInitialSize
	}
	return &Buffer{
		data: make([]byte, initialSize),
	}
}

// WritableBytes returns the number of free bytes after the write cursor
func (b *Buffer) WritableBytes() int {
	return len(b.data) - b.writePos
}

// ReadableBytes returns the number of unread bytes
func (b *Buffer) ReadableBytes() int {
	return b.writePos - b.readPos
}

// PrependableBytes returns the number of consumed bytes before the read cursor
func (b *Buffer) PrependableBytes() int {
	return b.readPos
}

// Cap returns the size of the backing array
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Peek returns the unread region. The slice aliases the backing array and is
// only valid until the next mutating call.
func (b *Buffer) Peek() []byte {
	return b.data[b.readPos:b.writePos]
}

// BeginWrite returns the writable region. Bytes copied into it become readable
// after a matching HasWritten call.
func (b *Buffer) BeginWrite() []byte {
	return b.data[b.writePos:]
}

// HasWritten advances the write cursor by n bytes
func (b *Buffer) HasWritten(n int) {
	if n < 0 || n > b.WritableBytes() {
		panic(fmt.Sprintf("buffer: HasWritten(%d) outside writable region of %d bytes", n, b.WritableBytes()))
	}
	b.writePos += n
}

// EnsureWritable guarantees at least n writable bytes, growing or compacting
func (b *Buffer) EnsureWritable(n int) {
	if n > b.WritableBytes() {
		b.makeSpace(n)
	}
}

// makeSpace grows the backing array when compaction cannot free n bytes,
// otherwise slides the unread window to offset 0.
func (b *Buffer) makeSpace(n int) {
	if b.PrependableBytes()+b.WritableBytes() < n {
		grown := make([]byte, b.writePos+n+1)
		copy(grown, b.data[:b.writePos])
		b.data = grown
		return
	}

	readable := b.ReadableBytes()
	copy(b.data, b.data[b.readPos:b.writePos])
	b.readPos = 0
	b.writePos = readable
}

// Retrieve consumes n unread bytes
func (b *Buffer) Retrieve(n int) {
	if n < 0 || n > b.ReadableBytes() {
		panic(fmt.Sprintf("buffer: Retrieve(%d) exceeds %d readable bytes", n, b.ReadableBytes()))
	}
	b.readPos += n
}

// RetrieveUntil consumes every unread byte before end. end must be a reslice
// of the slice returned by Peek (for example Peek()[i:]), mirroring a pointer
// into the readable region.
func (b *Buffer) RetrieveUntil(end []byte) {
	peek := b.Peek()
	n := cap(peek) - cap(end)
	if n < 0 || n > len(peek) {
		panic("buffer: RetrieveUntil end does not point into the readable region")
	}
	b.Retrieve(n)
}

// RetrieveAll zeroes the backing array and resets both cursors
func (b *Buffer) RetrieveAll() {
	clear(b.data)
	b.readPos = 0
	b.writePos = 0
}

// RetrieveAllString returns the unread bytes as a string and resets the buffer
func (b *Buffer) RetrieveAllString() string {
	s := string(b.Peek())
	b.RetrieveAll()
	return s
}

// Append copies p after the readable region, making space as needed
func (b *Buffer) Append(p []byte) {
	if len(p) == 0 {
		return
	}
	b.EnsureWritable(len(p))
	copy(b.data[b.writePos:], p)
	b.writePos += len(p)
}

// AppendString copies s after the readable region
func (b *Buffer) AppendString(s string) {
	if len(s) == 0 {
		return
	}
	b.EnsureWritable(len(s))
	copy(b.data[b.writePos:], s)
	b.writePos += len(s)
}

// AppendBuffer copies the unread bytes of other without consuming them.
// other may be b itself.
func (b *Buffer) AppendBuffer(other *Buffer) {
	if other == b {
		// Making space can slide the region being copied
		b.Append(bytes.Clone(b.Peek()))
		return
	}
	b.Append(other.Peek())
}

// Write implements io.Writer. It never fails.
func (b *Buffer) Write(p []byte) (int, error) {
	b.Append(p)
	return len(p), nil
}

// WriteString implements io.StringWriter. It never fails.
func (b *Buffer) WriteString(s string) (int, error) {
	b.AppendString(s)
	return len(s), nil
}

// absorb accounts for n bytes read into [writable region, extra] by a scatter read
func (b *Buffer) absorb(n, writable int, extra []byte) {
	if n <= writable {
		b.writePos += n
		return
	}
	b.writePos = len(b.data)
	b.Append(extra[:n-writable])
}
