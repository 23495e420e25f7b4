package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/neehar-mavuduru/stagekit/asynclogger"
	"github.com/neehar-mavuduru/stagekit/uploader"
)

// Config holds the load generator configuration
// Tags:
//
//	env: Environment variable name
//	envDefault: Default value if not set
type Config struct {
	// Load shape
	Threads     int           `env:"LOADGEN_THREADS" envDefault:"8"`
	RPS         int           `env:"LOADGEN_RPS" envDefault:"1000"`
	Burst       int           `env:"LOADGEN_BURST" envDefault:"100"`
	Duration    time.Duration `env:"LOADGEN_DURATION" envDefault:"30s"`
	LogSize     int           `env:"LOADGEN_LOG_SIZE" envDefault:"256"`
	Events      []string      `env:"LOADGEN_EVENTS" envSeparator:","`
	Buffers     int           `env:"LOADGEN_BUFFERS" envDefault:"16"`
	StatsPeriod time.Duration `env:"LOADGEN_STATS_PERIOD" envDefault:"5s"`

	// Observability
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`
	DiagLevel   string `env:"DIAG_LEVEL" envDefault:"info"`
	DiagFormat  string `env:"DIAG_FORMAT" envDefault:"json"`

	// Upload destination; empty bucket disables uploads
	UploadDryRun bool `env:"UPLOAD_DRY_RUN"`

	Logger asynclogger.Config `envPrefix:"LOG_"`
	Upload uploader.Config    `envPrefix:"UPLOAD_"`
}

// LoadConfig reads configuration from .env file and environment variables
// Priority: ENV vars > .env file > defaults
func LoadConfig(logger zerolog.Logger) (*Config, error) {
	// Load .env file (optional - OK if it doesn't exist)
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg("No .env file found (using environment variables only)")
	} else {
		logger.Info().Msg("Loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.Threads < 1 {
		return fmt.Errorf("LOADGEN_THREADS must be > 0, got %d", c.Threads)
	}
	if c.RPS < 1 {
		return fmt.Errorf("LOADGEN_RPS must be > 0, got %d", c.RPS)
	}
	if c.Burst < 1 {
		c.Burst = 1
	}
	if c.LogSize < 0 {
		return fmt.Errorf("LOADGEN_LOG_SIZE must be >= 0, got %d", c.LogSize)
	}
	if c.Buffers < 1 {
		return fmt.Errorf("LOADGEN_BUFFERS must be > 0, got %d", c.Buffers)
	}
	if c.StatsPeriod <= 0 {
		c.StatsPeriod = 5 * time.Second
	}

	validFormats := map[string]bool{"json": true, "pretty": true}
	if !validFormats[c.DiagFormat] {
		return fmt.Errorf("DIAG_FORMAT must be one of: json, pretty (got: %s)", c.DiagFormat)
	}
	if _, err := zerolog.ParseLevel(c.DiagLevel); err != nil {
		return fmt.Errorf("DIAG_LEVEL: %w", err)
	}

	if err := c.Logger.Validate(); err != nil {
		return fmt.Errorf("LOG_*: %w", err)
	}
	if c.uploadEnabled() {
		if c.UploadDryRun && c.Upload.Bucket == "" {
			c.Upload.Bucket = "dry-run"
		}
		if err := c.Upload.Validate(); err != nil {
			return fmt.Errorf("UPLOAD_*: %w", err)
		}
	}
	return nil
}

func (c *Config) uploadEnabled() bool {
	return c.UploadDryRun || c.Upload.Bucket != ""
}
