//go:build !linux

package buffer

import (
	"errors"
	"syscall"
)

// ReadFd is not supported on this platform
func (b *Buffer) ReadFd(fd int) (int, error) {
	return -1, errors.ErrUnsupported
}

// WriteFd is not supported on this platform
func (b *Buffer) WriteFd(fd int) (int, error) {
	return -1, errors.ErrUnsupported
}

// ReadFromConn is not supported on this platform
func (b *Buffer) ReadFromConn(c syscall.Conn) (int, error) {
	return -1, errors.ErrUnsupported
}

// WriteToConn is not supported on this platform
func (b *Buffer) WriteToConn(c syscall.Conn) (int, error) {
	return -1, errors.ErrUnsupported
}
