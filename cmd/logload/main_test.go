package main

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_DryRunUploadsEveryFile(t *testing.T) {
	t.Setenv("LOG_DIR", t.TempDir())
	t.Setenv("LOG_MAX_LINES", "50")
	t.Setenv("LOADGEN_THREADS", "4")
	t.Setenv("LOADGEN_RPS", "2000")
	t.Setenv("LOADGEN_DURATION", "300ms")
	t.Setenv("LOADGEN_LOG_SIZE", "32")
	t.Setenv("METRICS_ADDR", "")
	t.Setenv("UPLOAD_DRY_RUN", "true")

	cfg, err := LoadConfig(zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, run(ctx, cfg, zerolog.Nop()))

	entries, err := os.ReadDir(cfg.Logger.Directory)
	require.NoError(t, err)
	assert.Empty(t, entries, "uploaded files are removed locally")
}

func TestRun_EventLoggers(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LOG_DIR", dir)
	t.Setenv("LOADGEN_EVENTS", "alpha,beta")
	t.Setenv("LOADGEN_DURATION", "100ms")
	t.Setenv("METRICS_ADDR", "")

	cfg, err := LoadConfig(zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, run(context.Background(), cfg, zerolog.Nop()))

	for _, event := range []string{"alpha", "beta"} {
		entries, err := os.ReadDir(dir + "/" + event)
		require.NoError(t, err)
		assert.NotEmpty(t, entries)
	}
}
