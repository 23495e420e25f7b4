// Package asynclogger writes leveled, timestamped lines to daily log files.
//
// Lines are formatted as
//
//	YYYY-MM-DD HH:MM:SS.UUUUUU [level] : message
//
// and land in <dir>/<YYYY_MM_DD><suffix>. When a file reaches MaxLines lines
// the writer moves on to <dir>/<YYYY_MM_DD>-<N><suffix>; a new calendar day
// starts again from the base name. Rotation never moves back to an earlier
// day: a line stamped just before midnight that reaches the writer after the
// switch goes to the new day's file.
//
// In async mode (QueueCapacity > 0) callers hand lines to a bounded queue
// drained by one writer goroutine. When the queue is full the caller writes
// the line itself under the same mutex, so Write never blocks on the queue.
package asynclogger

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/neehar-mavuduru/stagekit/blockqueue"
	"github.com/neehar-mavuduru/stagekit/buffer"
)

const timestampLayout = "2006-01-02 15:04:05.000000"

// Statistics holds operational statistics for the logger
type Statistics struct {
	TotalLogs      atomic.Int64 // Lines accepted at or above the level
	FilteredLogs   atomic.Int64 // Lines below the level
	DroppedLogs    atomic.Int64 // Lines lost (logger not open, write failure)
	QueuedLogs     atomic.Int64 // Lines handed to the writer goroutine
	SyncFallbacks  atomic.Int64 // Async lines written by the caller because the queue was full
	LinesWritten   atomic.Int64 // Lines written to a file
	BytesWritten   atomic.Int64 // Bytes written to a file
	Rotations      atomic.Int64 // File switches after Init
	FileErrors     atomic.Int64 // Failed opens, flushes and syncs
	UploadsQueued  atomic.Int64 // Completed files handed to the upload channel
	UploadsSkipped atomic.Int64 // Completed files skipped because the upload channel was full
}

// StatsSnapshot is a point-in-time copy of Statistics
type StatsSnapshot struct {
	TotalLogs      int64
	FilteredLogs   int64
	DroppedLogs    int64
	QueuedLogs     int64
	SyncFallbacks  int64
	LinesWritten   int64
	BytesWritten   int64
	Rotations      int64
	FileErrors     int64
	UploadsQueued  int64
	UploadsSkipped int64
}

// record is a formatted line with the time it was logged at. Rotation is keyed
// on that time, not on when the writer gets to it.
type record struct {
	at   time.Time
	line string
}

// Logger is a leveled file logger with optional async hand-off
type Logger struct {
	// mu guards the file, rotation counters, scratch buffer and mode
	mu sync.Mutex

	level  atomic.Int32
	isOpen atomic.Bool
	async  bool

	// scratch is where lines are formatted
	scratch *buffer.Buffer

	// queue and writerDone exist while the writer goroutine runs
	queue      *blockqueue.Queue[record]
	writerDone chan struct{}

	fw *fileWriter

	now     func() time.Time
	diag    zerolog.Logger
	metrics *Metrics

	metricsReg    prometheus.Registerer
	metricsPrefix string

	stats Statistics
}

// Option configures a Logger
type Option func(*Logger)

// WithClock replaces time.Now for timestamps and rotation
func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		l.now = now
	}
}

// WithDiagnostics sets the logger that reports the logger's own failures
func WithDiagnostics(diag zerolog.Logger) Option {
	return func(l *Logger) {
		l.diag = diag
	}
}

// New creates a closed logger. Call Init before writing; earlier writes are dropped.
func New(opts ...Option) *Logger {
	l := &Logger{
		scratch: buffer.New(256),
		now:     time.Now,
		diag:    zerolog.Nop(),
	}
	l.level.Store(int32(LevelInfo))
	for _, opt := range opts {
		opt(l)
	}
	if l.metricsReg != nil {
		l.metrics = newMetrics(l, l.metricsReg, l.metricsPrefix)
	}
	l.fw = &fileWriter{stats: &l.stats, diag: l.diag}
	return l
}

// Init applies cfg and opens today's file. In async mode the queue and writer
// goroutine are created only once. Calling Init again moves back to today's base
// file, keeping the handle if it is already the live file. A file already handed
// to the upload channel is never reopened; the next free -<N> name is used. The returned error means
// the logger has no output.
func (l *Logger) Init(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.level.Store(int32(cfg.Level))
	l.fw.dir = cfg.Directory
	l.fw.suffix = cfg.Suffix
	l.fw.maxLines = cfg.MaxLines
	l.fw.completedFileChan = cfg.UploadChannel
	l.scratch.RetrieveAll()

	if err := l.fw.open(l.now()); err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	l.async = cfg.QueueCapacity > 0
	if l.async && l.queue == nil {
		l.queue = blockqueue.New[record](cfg.QueueCapacity)
		l.writerDone = make(chan struct{})
		go l.writeLoop(l.queue, l.writerDone)
	}

	l.isOpen.Store(true)
	l.diag.Debug().
		Str("path", l.fw.path).
		Bool("async", l.async).
		Str("level", cfg.Level.String()).
		Msg("logger initialized")
	return nil
}

// Write formats and records one line at level. It never blocks on the queue.
func (l *Logger) Write(level Level, format string, args ...any) {
	if level < l.Level() {
		l.stats.FilteredLogs.Add(1)
		return
	}
	if !l.isOpen.Load() {
		l.stats.DroppedLogs.Add(1)
		return
	}
	at := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fw.file == nil {
		l.stats.DroppedLogs.Add(1)
		return
	}
	l.stats.TotalLogs.Add(1)

	l.scratch.AppendString(at.Format(timestampLayout))
	l.scratch.AppendString(" [")
	l.scratch.AppendString(level.String())
	l.scratch.AppendString("] : ")
	fmt.Fprintf(l.scratch, format, args...)
	l.scratch.AppendString("\n")
	rec := record{at: at, line: l.scratch.RetrieveAllString()}

	if l.async {
		if err := l.queue.TryPushBack(rec); err == nil {
			l.stats.QueuedLogs.Add(1)
			return
		}
		// Queue full: the caller writes the line itself
		l.stats.SyncFallbacks.Add(1)
		l.writeRecord(rec)
		return
	}

	l.writeRecord(rec)
	if err := l.fw.flush(); err != nil {
		l.diag.Error().Err(err).Msg("flush failed")
	}
}

// Debugf writes a debug line
func (l *Logger) Debugf(format string, args ...any) { l.Write(LevelDebug, format, args...) }

// Infof writes an info line
func (l *Logger) Infof(format string, args ...any) { l.Write(LevelInfo, format, args...) }

// Warnf writes a warn line
func (l *Logger) Warnf(format string, args ...any) { l.Write(LevelWarn, format, args...) }

// Errorf writes an error line
func (l *Logger) Errorf(format string, args ...any) { l.Write(LevelError, format, args...) }

// writeRecord writes rec to the current file. Caller holds mu.
func (l *Logger) writeRecord(rec record) {
	if err := l.fw.writeLine(rec.at, rec.line); err != nil {
		l.stats.DroppedLogs.Add(1)
		l.diag.Error().Err(err).Str("path", l.fw.path).Msg("failed to write log line")
		return
	}
	l.stats.LinesWritten.Add(1)
	l.stats.BytesWritten.Add(int64(len(rec.line)))
}

// writeLoop drains q until it is closed, flushing whenever it runs dry
func (l *Logger) writeLoop(q *blockqueue.Queue[record], done chan<- struct{}) {
	defer close(done)

	for {
		rec, ok := q.Pop()
		if !ok {
			return
		}

		l.mu.Lock()
		l.writeRecord(rec)
		if q.Empty() {
			if err := l.fw.flush(); err != nil {
				l.diag.Error().Err(err).Msg("flush failed")
			}
		}
		l.mu.Unlock()
	}
}

// Flush wakes the writer goroutine and pushes buffered lines to the file
func (l *Logger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.queue != nil {
		l.queue.Flush()
	}
	return l.fw.flush()
}

// Shutdown drains queued lines, stops the writer goroutine and closes the
// file. Lines logged during shutdown are written synchronously until the file
// is closed. Init may be called again afterwards.
func (l *Logger) Shutdown() error {
	l.mu.Lock()
	l.async = false
	q, done := l.queue, l.writerDone
	l.queue, l.writerDone = nil, nil
	l.mu.Unlock()

	if q != nil {
		q.WaitEmpty()
		q.Close()
		<-done
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.isOpen.Store(false)
	if err := l.fw.closeCurrent(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}

// SetLevel changes the minimum level written
func (l *Logger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

// Level returns the minimum level written
func (l *Logger) Level() Level {
	return Level(l.level.Load())
}

// IsOpen reports whether Init succeeded and Shutdown has not been called
func (l *Logger) IsOpen() bool {
	return l.isOpen.Load()
}

// IsAsync reports whether lines go through the writer goroutine
func (l *Logger) IsAsync() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.async
}

// Path returns the file currently written to, or "" when closed
func (l *Logger) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fw.path
}

// GetStatsSnapshot returns a snapshot of the logger statistics
func (l *Logger) GetStatsSnapshot() StatsSnapshot {
	return StatsSnapshot{
		TotalLogs:      l.stats.TotalLogs.Load(),
		FilteredLogs:   l.stats.FilteredLogs.Load(),
		DroppedLogs:    l.stats.DroppedLogs.Load(),
		QueuedLogs:     l.stats.QueuedLogs.Load(),
		SyncFallbacks:  l.stats.SyncFallbacks.Load(),
		LinesWritten:   l.stats.LinesWritten.Load(),
		BytesWritten:   l.stats.BytesWritten.Load(),
		Rotations:      l.stats.Rotations.Load(),
		FileErrors:     l.stats.FileErrors.Load(),
		UploadsQueued:  l.stats.UploadsQueued.Load(),
		UploadsSkipped: l.stats.UploadsSkipped.Load(),
	}
}
