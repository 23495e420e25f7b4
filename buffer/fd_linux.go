//go:build linux

package buffer

import (
	"errors"
	"fmt"
	"sync"
	"syscall"

	"code.hybscloud.com/iox"
	"golang.org/x/sys/unix"
)

// extraReadSize is the size of the transient region that lets a single scatter
// read consume more than the buffer currently has room for
const extraReadSize = 64 * 1024

// extraReadPool provides the transient scatter-read regions
var extraReadPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, extraReadSize)
		return &buf
	},
}

// ReadFd performs one readv(2) into the writable region and a 64 KiB transient
// region. Bytes landing in the transient region are appended, growing or
// compacting the buffer.
//
// Returns the number of bytes read. 0 with a nil error means the peer closed.
// On failure it returns -1 and the errno, leaving the cursors untouched; EAGAIN
// is additionally marked with iox.ErrWouldBlock.
func (b *Buffer) ReadFd(fd int) (int, error) {
	extraPtr := extraReadPool.Get().(*[]byte)
	defer extraReadPool.Put(extraPtr)
	extra := *extraPtr

	writable := b.WritableBytes()
	iovs := [][]byte{b.BeginWrite(), extra}

	n, err := readv(fd, iovs)
	if err != nil {
		return -1, classify(err)
	}
	b.absorb(n, writable, extra)
	return n, nil
}

// WriteFd performs one write(2) of the readable region and consumes the bytes
// actually written. Partial writes are normal; the caller retries for the rest.
// On failure it returns -1 and the errno without advancing the read cursor.
func (b *Buffer) WriteFd(fd int) (int, error) {
	n, err := write(fd, b.Peek())
	if err != nil {
		return -1, classify(err)
	}
	b.Retrieve(n)
	return n, nil
}

// ReadFromConn performs the same scatter read as ReadFd on the descriptor
// behind c. EAGAIN parks the goroutine in the runtime netpoller until the
// descriptor is readable instead of being returned.
func (b *Buffer) ReadFromConn(c syscall.Conn) (int, error) {
	rc, err := c.SyscallConn()
	if err != nil {
		return -1, fmt.Errorf("failed to get raw conn: %w", err)
	}

	extraPtr := extraReadPool.Get().(*[]byte)
	defer extraReadPool.Put(extraPtr)
	extra := *extraPtr

	writable := b.WritableBytes()
	iovs := [][]byte{b.BeginWrite(), extra}

	var n int
	var opErr error
	err = rc.Read(func(fd uintptr) bool {
		n, opErr = readv(int(fd), iovs)
		return !errors.Is(opErr, unix.EAGAIN)
	})
	if err != nil {
		return -1, err
	}
	if opErr != nil {
		return -1, classify(opErr)
	}
	b.absorb(n, writable, extra)
	return n, nil
}

// WriteToConn performs one write of the readable region on the descriptor
// behind c, waiting in the netpoller while the descriptor is not writable.
func (b *Buffer) WriteToConn(c syscall.Conn) (int, error) {
	rc, err := c.SyscallConn()
	if err != nil {
		return -1, fmt.Errorf("failed to get raw conn: %w", err)
	}

	var n int
	var opErr error
	err = rc.Write(func(fd uintptr) bool {
		n, opErr = write(int(fd), b.Peek())
		return !errors.Is(opErr, unix.EAGAIN)
	})
	if err != nil {
		return -1, err
	}
	if opErr != nil {
		return -1, classify(opErr)
	}
	b.Retrieve(n)
	return n, nil
}

// readv retries readv(2) interrupted by a signal
func readv(fd int, iovs [][]byte) (int, error) {
	for {
		n, err := unix.Readv(fd, iovs)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return n, err
	}
}

// write retries write(2) interrupted by a signal
func write(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Write(fd, p)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return n, err
	}
}

// classify marks EAGAIN/EWOULDBLOCK as a would-block control signal while
// keeping the errno reachable through errors.Is
func classify(err error) error {
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
		return fmt.Errorf("%w: %w", iox.ErrWouldBlock, err)
	}
	return err
}
