package uploader

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds configuration for the uploader
type Config struct {
	Bucket              string        `env:"BUCKET"`                                 // GCS bucket name (required)
	ObjectPrefix        string        `env:"OBJECT_PREFIX"`                          // Object prefix (e.g., "logs/host1/")
	ChunkSize           int           `env:"CHUNK_SIZE" envDefault:"33554432"`       // Chunk size for parallel upload (default: 32MB)
	MaxChunksPerCompose int           `env:"MAX_CHUNKS_PER_COMPOSE" envDefault:"32"` // Maximum chunks per compose (default: 32)
	MaxRetries          int           `env:"MAX_RETRIES" envDefault:"3"`             // Max retry attempts (default: 3)
	RetryDelay          time.Duration `env:"RETRY_DELAY" envDefault:"5s"`            // Delay between retries (default: 5s)
	Workers             int           `env:"WORKERS" envDefault:"8"`                 // Parallel chunk uploads (default: 8)
	ChannelBufferSize   int           `env:"CHANNEL_BUFFER_SIZE" envDefault:"100"`   // Upload channel buffer size (default: 100)
	KeepLocalFiles      bool          `env:"KEEP_LOCAL_FILES"`                       // Keep files on disk after upload
	UseGRPC             bool          `env:"USE_GRPC"`                               // Use the gRPC storage client
	GRPCPoolSize        int           `env:"GRPC_POOL_SIZE" envDefault:"64"`         // gRPC connection pool size (default: 64)
	Endpoint            string        `env:"ENDPOINT"`                               // Custom endpoint (emulators), disables auth
	CredentialsFile     string        `env:"CREDENTIALS_FILE"`                       // Service account key file
}

// DefaultConfig returns a configuration with baseline defaults
func DefaultConfig(bucket string) Config {
	return Config{
		Bucket:              bucket,
		ChunkSize:           32 * 1024 * 1024, // 32MB
		MaxChunksPerCompose: maxComposeSources,
		MaxRetries:          3,
		RetryDelay:          5 * time.Second,
		Workers:             8,
		ChannelBufferSize:   100,
		GRPCPoolSize:        64,
	}
}

// Validate checks if the configuration is valid and applies defaults where needed
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("bucket name is required")
	}

	if c.ChunkSize <= 0 {
		c.ChunkSize = 32 * 1024 * 1024 // 32MB default
	}

	if c.MaxChunksPerCompose <= 0 || c.MaxChunksPerCompose > maxComposeSources {
		c.MaxChunksPerCompose = maxComposeSources
	}
	if c.MaxChunksPerCompose < 2 {
		return fmt.Errorf("MaxChunksPerCompose must be at least 2, got %d", c.MaxChunksPerCompose)
	}

	if c.MaxRetries < 0 {
		c.MaxRetries = 3
	}

	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}

	if c.Workers <= 0 {
		c.Workers = 8
	}

	if c.ChannelBufferSize <= 0 {
		c.ChannelBufferSize = 100
	}

	if c.GRPCPoolSize <= 0 {
		c.GRPCPoolSize = 64
	}

	return nil
}

// LoadConfig reads a Config from environment variables named <prefix><FIELD>
func LoadConfig(prefix string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: prefix}); err != nil {
		return Config{}, fmt.Errorf("failed to parse uploader config: %w", err)
	}
	return cfg, nil
}
