package asynclogger

import (
	"fmt"
	"strings"
)

// Level is a log severity. Lines below the configured level are discarded.
type Level int8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the title written between brackets in each line. Unknown
// levels render as "info".
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// ParseLevel maps a level name (case-insensitive) or digit to a Level
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "0":
		return LevelDebug, nil
	case "info", "1", "":
		return LevelInfo, nil
	case "warn", "warning", "2":
		return LevelWarn, nil
	case "error", "3":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// UnmarshalText lets env and flag decoders parse level names
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
