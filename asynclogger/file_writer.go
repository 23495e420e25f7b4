package asynclogger

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

const writeBufferSize = 64 * 1024

var errNotOpen = errors.New("log file not open")

// civilDay is a calendar date in the clock's location
type civilDay struct {
	year  int
	month time.Month
	day   int
}

func dayOf(t time.Time) civilDay {
	y, m, d := t.Date()
	return civilDay{year: y, month: m, day: d}
}

// String renders the date as used in file names: YYYY_MM_DD
func (d civilDay) String() string {
	return fmt.Sprintf("%04d_%02d_%02d", d.year, int(d.month), d.day)
}

func (d civilDay) before(o civilDay) bool {
	if d.year != o.year {
		return d.year < o.year
	}
	if d.month != o.month {
		return d.month < o.month
	}
	return d.day < o.day
}

// fileWriter manages the current file handle and day/line-count rotation.
// Every method is called with Logger.mu held.
type fileWriter struct {
	dir      string
	suffix   string
	maxLines int

	// Current file. index is N in <day>-<N><suffix>, 0 for the base name.
	file    *os.File
	w       *bufio.Writer
	path    string
	day     civilDay
	index   int
	lines   int   // lines written to the current file
	written int64 // bytes written to the current file since it was opened

	// Channel for completed files (for upload)
	completedFileChan chan<- string

	// shipped holds paths of the current day already handed to the upload
	// channel; they are never reopened
	shipped map[string]struct{}

	stats *Statistics
	diag  zerolog.Logger
}

// fileName returns <dir>/<YYYY_MM_DD><suffix> for n == 0 and
// <dir>/<YYYY_MM_DD>-<n><suffix> otherwise
func (fw *fileWriter) fileName(day civilDay, n int) string {
	name := day.String()
	if n > 0 {
		name += "-" + strconv.Itoa(n)
	}
	return filepath.Join(fw.dir, name+fw.suffix)
}

// nextFile returns the first name for day at index n or later that has not
// been handed to the uploader
func (fw *fileWriter) nextFile(day civilDay, n int) (string, int) {
	for {
		path := fw.fileName(day, n)
		if _, ok := fw.shipped[path]; !ok {
			return path, n
		}
		n++
	}
}

// openLogFile opens path for appending, creating the parent directory and
// retrying once if it does not exist
func openLogFile(path string) (*os.File, error) {
	const flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", mkErr)
		}
		f, err = os.OpenFile(path, flags, 0o644)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return f, nil
}

// open starts a session on the base file for now's day, closing any file
// left from a previous session. If that file is already the live one it is
// kept open, along with its line count.
func (fw *fileWriter) open(now time.Time) error {
	day := dayOf(now)
	if day != fw.day {
		clear(fw.shipped)
	}
	path, index := fw.nextFile(day, 0)
	if fw.file != nil && path == fw.path {
		return nil
	}

	f, err := openLogFile(path)
	if err != nil {
		fw.stats.FileErrors.Add(1)
		return err
	}

	if err := fw.closeCurrent(); err != nil {
		fw.diag.Warn().Err(err).Msg("failed to close previous log file")
	}
	fw.install(f, path, day, index)
	return nil
}

func (fw *fileWriter) install(f *os.File, path string, day civilDay, index int) {
	fw.file = f
	fw.path = path
	fw.day = day
	fw.index = index
	fw.lines = 0
	fw.written = 0
	if fw.w == nil {
		fw.w = bufio.NewWriterSize(f, writeBufferSize)
	} else {
		fw.w.Reset(f)
	}
}

// writeLine appends one formatted line stamped at t, rotating first if t falls
// on a later day or the current file is full
func (fw *fileWriter) writeLine(t time.Time, line string) error {
	if fw.file == nil {
		return errNotOpen
	}

	fw.rotateIfNeeded(t)

	n, err := fw.w.WriteString(line)
	fw.written += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write log line: %w", err)
	}
	fw.lines++
	return nil
}

// rotateIfNeeded moves to the next day's base file or the next overflow file.
// Records stamped before the current day go to the current file, so rotation
// only moves forward. The next file is opened before the current one is
// closed; a failed open leaves the logger writing where it was and is retried
// on the next line.
func (fw *fileWriter) rotateIfNeeded(t time.Time) {
	day := dayOf(t)
	dayChanged := fw.day.before(day)

	var path string
	var index int
	switch {
	case dayChanged:
		path, index = fw.fileName(day, 0), 0
	case fw.lines >= fw.maxLines:
		day = fw.day
		path, index = fw.nextFile(day, fw.index+1)
	default:
		return
	}

	f, err := openLogFile(path)
	if err != nil {
		fw.stats.FileErrors.Add(1)
		fw.diag.Error().Err(err).Str("path", path).Msg("rotation failed, keeping current file")
		return
	}

	if err := fw.closeCurrent(); err != nil {
		fw.diag.Warn().Err(err).Msg("failed to close rotated log file")
	}
	if dayChanged {
		clear(fw.shipped)
	}
	fw.install(f, path, day, index)
	fw.stats.Rotations.Add(1)
}

// flush pushes buffered lines to the kernel
func (fw *fileWriter) flush() error {
	if fw.file == nil {
		return nil
	}
	if err := fw.w.Flush(); err != nil {
		fw.stats.FileErrors.Add(1)
		return fmt.Errorf("failed to flush log file: %w", err)
	}
	return nil
}

// closeCurrent flushes, syncs and closes the current file, then hands its
// path to the upload channel if anything was written to it
func (fw *fileWriter) closeCurrent() error {
	if fw.file == nil {
		return nil
	}

	var firstErr error
	if err := fw.flush(); err != nil {
		firstErr = err
	}

	hasData := fw.written > 0
	if hasData {
		if err := syncFile(fw.file); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to sync file: %w", err)
		}
	}

	if err := fw.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	completedFilePath := fw.path
	fw.file = nil
	fw.path = ""
	fw.written = 0

	// Send completed file to upload channel (non-blocking) if it has data
	if hasData && fw.completedFileChan != nil {
		select {
		case fw.completedFileChan <- completedFilePath:
			if fw.shipped == nil {
				fw.shipped = make(map[string]struct{})
			}
			fw.shipped[completedFilePath] = struct{}{}
			fw.stats.UploadsQueued.Add(1)
		default:
			fw.stats.UploadsSkipped.Add(1)
			fw.diag.Warn().Str("path", completedFilePath).Msg("upload channel full, skipping upload")
		}
	}

	return firstErr
}
