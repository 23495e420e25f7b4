package asynclogger

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// LoggerManager manages one Logger per event name. Each event rotates its own
// files under <Directory>/<event>/ with the shared settings of the base config.
type LoggerManager struct {
	loggers sync.Map // eventName (string) -> *Logger
	config  Config   // Base config (shared settings)
	opts    []Option
}

// NewLoggerManager creates a LoggerManager rooted at config.Directory
func NewLoggerManager(config Config, opts ...Option) (*LoggerManager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &LoggerManager{config: config, opts: opts}, nil
}

// sanitizeEventName validates and sanitizes an event name for use as a directory name
func sanitizeEventName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("event name cannot be empty")
	}

	// Remove invalid filesystem characters: / \ : * ? " < > |
	sanitized := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, name)

	// Limit length to 255 characters (typical filesystem limit)
	if len(sanitized) > 255 {
		sanitized = sanitized[:255]
	}

	if sanitized == "." || sanitized == ".." {
		return "", fmt.Errorf("invalid event name %q", name)
	}
	return sanitized, nil
}

// Logger returns the logger for eventName, creating and initializing it on first use
func (lm *LoggerManager) Logger(eventName string) (*Logger, error) {
	sanitized, err := sanitizeEventName(eventName)
	if err != nil {
		return nil, err
	}

	// Fast path: check if logger exists (no lock needed with sync.Map)
	if logger, ok := lm.loggers.Load(sanitized); ok {
		return logger.(*Logger), nil
	}

	eventConfig := lm.config
	eventConfig.Directory = filepath.Join(lm.config.Directory, sanitized)

	logger := New(lm.opts...)
	if err := logger.Init(eventConfig); err != nil {
		return nil, fmt.Errorf("failed to create logger for event %s: %w", sanitized, err)
	}

	// If another goroutine created it first, shut ours down and return the existing one
	actual, loaded := lm.loggers.LoadOrStore(sanitized, logger)
	if loaded {
		logger.Shutdown()
		return actual.(*Logger), nil
	}
	return logger, nil
}

// Write logs one line to the event's logger. Invalid event names drop the line.
func (lm *LoggerManager) Write(eventName string, level Level, format string, args ...any) {
	logger, err := lm.Logger(eventName)
	if err != nil {
		return
	}
	logger.Write(level, format, args...)
}

// CloseEventLogger shuts down and removes the logger for eventName
func (lm *LoggerManager) CloseEventLogger(eventName string) error {
	sanitized, err := sanitizeEventName(eventName)
	if err != nil {
		return fmt.Errorf("invalid event name: %w", err)
	}

	logger, exists := lm.loggers.LoadAndDelete(sanitized)
	if !exists {
		return fmt.Errorf("event logger not found: %s", sanitized)
	}
	return logger.(*Logger).Shutdown()
}

// HasEventLogger checks if a logger exists for the specified event
func (lm *LoggerManager) HasEventLogger(eventName string) bool {
	sanitized, err := sanitizeEventName(eventName)
	if err != nil {
		return false
	}
	_, exists := lm.loggers.Load(sanitized)
	return exists
}

// ListEventLoggers returns the active event names, sorted
func (lm *LoggerManager) ListEventLoggers() []string {
	events := make([]string, 0)
	lm.loggers.Range(func(key, _ any) bool {
		events = append(events, key.(string))
		return true
	})
	sort.Strings(events)
	return events
}

// Close shuts down every event logger, joining their errors
func (lm *LoggerManager) Close() error {
	var errs []error
	lm.loggers.Range(func(key, value any) bool {
		if err := value.(*Logger).Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("error closing logger for event %s: %w", key.(string), err))
		}
		lm.loggers.Delete(key)
		return true
	})
	return errors.Join(errs...)
}

// GetStatsSnapshot returns statistics summed over all event loggers
func (lm *LoggerManager) GetStatsSnapshot() StatsSnapshot {
	var total StatsSnapshot
	lm.loggers.Range(func(_, value any) bool {
		s := value.(*Logger).GetStatsSnapshot()
		total.TotalLogs += s.TotalLogs
		total.FilteredLogs += s.FilteredLogs
		total.DroppedLogs += s.DroppedLogs
		total.QueuedLogs += s.QueuedLogs
		total.SyncFallbacks += s.SyncFallbacks
		total.LinesWritten += s.LinesWritten
		total.BytesWritten += s.BytesWritten
		total.Rotations += s.Rotations
		total.FileErrors += s.FileErrors
		total.UploadsQueued += s.UploadsQueued
		total.UploadsSkipped += s.UploadsSkipped
		return true
	})
	return total
}
