//go:build !unix

package asynclogger

import "os"

func syncFile(f *os.File) error {
	return f.Sync()
}
