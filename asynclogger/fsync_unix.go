//go:build unix

package asynclogger

import (
	"os"

	"golang.org/x/sys/unix"
)

// syncFile commits the file's data to stable storage
func syncFile(f *os.File) error {
	return unix.Fsync(int(f.Fd()))
}
