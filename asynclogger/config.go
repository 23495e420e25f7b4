package asynclogger

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

const (
	// DefaultMaxLines is the line count after which a file overflows into the
	// next numbered file of the same day
	DefaultMaxLines = 5000

	// DefaultSuffix is appended to every log file name
	DefaultSuffix = ".log"

	// DefaultQueueCapacity is the async hand-off queue size used by DefaultConfig
	DefaultQueueCapacity = 1024
)

// Config holds the configuration for the logger
type Config struct {
	// Level is the minimum severity written (default: info)
	Level Level `env:"LEVEL" envDefault:"info"`

	// Directory receives the log files (required). Created on first open if missing.
	Directory string `env:"DIR" envDefault:"./log"`

	// Suffix is appended to each file name (default: .log)
	Suffix string `env:"SUFFIX" envDefault:".log"`

	// QueueCapacity enables async mode when positive; 0 writes synchronously
	QueueCapacity int `env:"QUEUE_CAPACITY" envDefault:"1024"`

	// MaxLines is the number of lines per file before rotating to <day>-N (default: 5000)
	MaxLines int `env:"MAX_LINES" envDefault:"5000"`

	// UploadChannel, if set, receives the path of every file the logger finishes
	// with (rotation or shutdown). Sends never block; a full channel skips the file.
	UploadChannel chan<- string
}

// DefaultConfig returns an async configuration writing into dir
func DefaultConfig(dir string) Config {
	return Config{
		Level:         LevelInfo,
		Directory:     dir,
		Suffix:        DefaultSuffix,
		QueueCapacity: DefaultQueueCapacity,
		MaxLines:      DefaultMaxLines,
	}
}

// Validate checks if the configuration is valid and applies defaults where needed
func (c *Config) Validate() error {
	if c.Directory == "" {
		return fmt.Errorf("Directory is required")
	}

	if c.Level < LevelDebug || c.Level > LevelError {
		return fmt.Errorf("invalid level %d", c.Level)
	}

	if c.Suffix == "" {
		c.Suffix = DefaultSuffix
	}

	if c.MaxLines <= 0 {
		c.MaxLines = DefaultMaxLines
	}

	if c.QueueCapacity < 0 {
		return fmt.Errorf("QueueCapacity must be >= 0, got %d", c.QueueCapacity)
	}

	return nil
}

// LoadConfig reads a Config from environment variables named <prefix><FIELD>,
// for example LOG_DIR with prefix "LOG_"
func LoadConfig(prefix string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: prefix}); err != nil {
		return Config{}, fmt.Errorf("failed to parse logger config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid logger config: %w", err)
	}
	return cfg, nil
}
