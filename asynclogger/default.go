package asynclogger

import "sync/atomic"

var defaultLogger atomic.Pointer[Logger]

func init() {
	defaultLogger.Store(New())
}

// Default returns the process-wide logger used by the package-level functions
func Default() *Logger {
	return defaultLogger.Load()
}

// SetDefault replaces the process-wide logger. The previous one is not shut down.
func SetDefault(l *Logger) {
	if l != nil {
		defaultLogger.Store(l)
	}
}

// Init initializes the process-wide logger. It must be called before the first
// line is logged; lines logged earlier are dropped.
func Init(cfg Config) error { return Default().Init(cfg) }

// Shutdown drains and closes the process-wide logger
func Shutdown() error { return Default().Shutdown() }

// Flush flushes the process-wide logger
func Flush() error { return Default().Flush() }

// SetLevel sets the level of the process-wide logger
func SetLevel(level Level) { Default().SetLevel(level) }

// GetLevel returns the level of the process-wide logger
func GetLevel() Level { return Default().Level() }

// IsOpen reports whether the process-wide logger is initialized
func IsOpen() bool { return Default().IsOpen() }

func Debugf(format string, args ...any) { Default().Write(LevelDebug, format, args...) }
func Infof(format string, args ...any) { Default().Write(LevelInfo, format, args...) }
func Warnf(format string, args ...any) { Default().Write(LevelWarn, format, args...) }
func Errorf(format string, args ...any) { Default().Write(LevelError, format, args...) }
