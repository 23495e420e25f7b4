package asynclogger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		config := DefaultConfig("/tmp/logs")
		err := config.Validate()
		assert.NoError(t, err)
		assert.Equal(t, LevelInfo, config.Level)
		assert.Equal(t, ".log", config.Suffix)
		assert.Equal(t, 1024, config.QueueCapacity)
		assert.Equal(t, 5000, config.MaxLines)
	})

	t.Run("missing directory", func(t *testing.T) {
		config := Config{}
		err := config.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "Directory is required")
	})

	t.Run("applies defaults", func(t *testing.T) {
		config := Config{Directory: "/tmp/logs"}
		err := config.Validate()
		assert.NoError(t, err)
		assert.Equal(t, DefaultSuffix, config.Suffix)
		assert.Equal(t, DefaultMaxLines, config.MaxLines)
		assert.Equal(t, 0, config.QueueCapacity, "zero capacity selects sync mode")
	})

	t.Run("negative queue capacity", func(t *testing.T) {
		config := Config{Directory: "/tmp/logs", QueueCapacity: -1}
		err := config.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "QueueCapacity")
	})

	t.Run("invalid level", func(t *testing.T) {
		config := Config{Directory: "/tmp/logs", Level: Level(9)}
		assert.Error(t, config.Validate())
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("reads prefixed variables", func(t *testing.T) {
		t.Setenv("APPLOG_LEVEL", "warn")
		t.Setenv("APPLOG_DIR", "/var/log/app")
		t.Setenv("APPLOG_SUFFIX", ".txt")
		t.Setenv("APPLOG_QUEUE_CAPACITY", "0")
		t.Setenv("APPLOG_MAX_LINES", "42")

		cfg, err := LoadConfig("APPLOG_")
		require.NoError(t, err)
		assert.Equal(t, LevelWarn, cfg.Level)
		assert.Equal(t, "/var/log/app", cfg.Directory)
		assert.Equal(t, ".txt", cfg.Suffix)
		assert.Equal(t, 0, cfg.QueueCapacity)
		assert.Equal(t, 42, cfg.MaxLines)
	})

	t.Run("uses defaults", func(t *testing.T) {
		cfg, err := LoadConfig("UNSET_PREFIX_")
		require.NoError(t, err)
		assert.Equal(t, LevelInfo, cfg.Level)
		assert.Equal(t, "./log", cfg.Directory)
		assert.Equal(t, DefaultQueueCapacity, cfg.QueueCapacity)
		assert.Equal(t, DefaultMaxLines, cfg.MaxLines)
	})

	t.Run("rejects bad level", func(t *testing.T) {
		t.Setenv("BADLOG_LEVEL", "loud")
		_, err := LoadConfig("BADLOG_")
		assert.Error(t, err)
	})
}

func TestLevel(t *testing.T) {
	assert.Equal(t, "debug", LevelDebug.String())
	assert.Equal(t, "info", LevelInfo.String())
	assert.Equal(t, "warn", LevelWarn.String())
	assert.Equal(t, "error", LevelError.String())
	assert.Equal(t, "info", Level(7).String(), "unknown levels render as info")

	tests := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"3", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
