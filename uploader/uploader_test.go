package uploader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyBucket fails the first failWrites chunk writes
type flakyBucket struct {
	*MemoryBucket
	failWrites atomic.Int64
	writes     atomic.Int64
	composes   atomic.Int64
}

func (b *flakyBucket) Write(ctx context.Context, object string, data []byte) error {
	b.writes.Add(1)
	if b.failWrites.Add(-1) >= 0 {
		return errors.New("injected write failure")
	}
	return b.MemoryBucket.Write(ctx, object, data)
}

func (b *flakyBucket) Compose(ctx context.Context, dst string, sources []string) error {
	b.composes.Add(1)
	return b.MemoryBucket.Compose(ctx, dst, sources)
}

func newFlakyBucket(failWrites int64) *flakyBucket {
	b := &flakyBucket{MemoryBucket: NewMemoryBucket()}
	b.failWrites.Store(failWrites)
	return b
}

var uploadTime = time.Date(2026, time.March, 5, 1, 2, 3, 0, time.UTC)

func fixedClock() time.Time { return uploadTime }

// objectName is the name given to the nth file uploaded under fixedClock
func objectName(prefix, file string, n int) string {
	ext := filepath.Ext(file)
	stamp := uploadTime.Add(time.Duration(n) * time.Nanosecond).Format(objectStampLayout)
	return prefix + strings.TrimSuffix(file, ext) + "_" + stamp + ext
}

func testConfig() Config {
	config := DefaultConfig("test-bucket")
	config.ChunkSize = 16
	config.RetryDelay = time.Millisecond
	config.Workers = 4
	return config
}

func writeFile(t *testing.T, dir, name string, size int) (string, []byte) {
	t.Helper()
	data := bytes.Repeat([]byte("0123456789abcdef"), size/16+1)[:size]
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path, data
}

func uploadAndStop(t *testing.T, u *Uploader, paths ...string) {
	t.Helper()
	u.Start()
	for _, p := range paths {
		u.GetUploadChannel() <- p
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, u.Stop(ctx))
}

func TestConfig_Validate(t *testing.T) {
	t.Run("missing bucket", func(t *testing.T) {
		config := Config{}
		err := config.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "bucket name is required")
	})

	t.Run("applies defaults", func(t *testing.T) {
		config := Config{Bucket: "b"}
		require.NoError(t, config.Validate())
		assert.Equal(t, 32*1024*1024, config.ChunkSize)
		assert.Equal(t, 32, config.MaxChunksPerCompose)
		assert.Equal(t, 5*time.Second, config.RetryDelay)
		assert.Equal(t, 8, config.Workers)
		assert.Equal(t, 100, config.ChannelBufferSize)
		assert.Equal(t, 64, config.GRPCPoolSize)
	})

	t.Run("compose limit capped", func(t *testing.T) {
		config := Config{Bucket: "b", MaxChunksPerCompose: 100}
		require.NoError(t, config.Validate())
		assert.Equal(t, 32, config.MaxChunksPerCompose)
	})
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("UP_BUCKET", "env-bucket")
	t.Setenv("UP_OBJECT_PREFIX", "logs/")
	t.Setenv("UP_RETRY_DELAY", "250ms")
	t.Setenv("UP_KEEP_LOCAL_FILES", "true")

	cfg, err := LoadConfig("UP_")
	require.NoError(t, err)
	assert.Equal(t, "env-bucket", cfg.Bucket)
	assert.Equal(t, "logs/", cfg.ObjectPrefix)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryDelay)
	assert.True(t, cfg.KeepLocalFiles)
	assert.Equal(t, 32*1024*1024, cfg.ChunkSize)
}

func TestNew(t *testing.T) {
	_, err := New(Config{}, NewMemoryBucket())
	assert.Error(t, err)

	_, err = New(testConfig(), nil)
	assert.Error(t, err)
}

func TestUploader_UploadsAndRemovesFile(t *testing.T) {
	dir := t.TempDir()
	path, data := writeFile(t, dir, "2026_03_04.log", 100) // 7 chunks of 16 bytes

	bucket := NewMemoryBucket()
	config := testConfig()
	config.ObjectPrefix = "host-a/"
	u, err := New(config, bucket, WithClock(fixedClock))
	require.NoError(t, err)

	uploadAndStop(t, u, path)

	name := objectName("host-a/", "2026_03_04.log", 0)
	assert.Equal(t, "host-a/2026_03_04_20260305T010203.000000000.log", name)
	got, ok := bucket.Object(name)
	require.True(t, ok)
	assert.Equal(t, data, got, "chunks composed in order")
	assert.Equal(t, []string{name}, bucket.Objects(), "temporary chunks removed")
	assert.NoFileExists(t, path)

	stats := u.GetStats()
	assert.Equal(t, int64(1), stats.TotalFiles)
	assert.Equal(t, int64(1), stats.Successful)
	assert.Equal(t, int64(100), stats.TotalBytes)
	assert.False(t, stats.LastUploadTime.IsZero())
}

func TestUploader_MultiLevelCompose(t *testing.T) {
	dir := t.TempDir()
	path, data := writeFile(t, dir, "big.log", 16*70) // 70 chunks

	bucket := newFlakyBucket(0)
	config := testConfig()
	config.MaxChunksPerCompose = 4
	require.NoError(t, config.Validate())
	u, err := New(config, bucket, WithClock(fixedClock))
	require.NoError(t, err)

	uploadAndStop(t, u, path)

	got, ok := bucket.Object(objectName("", "big.log", 0))
	require.True(t, ok)
	assert.Equal(t, data, got)
	assert.Equal(t, []string{objectName("", "big.log", 0)}, bucket.Objects(), "intermediate objects removed")
	// 70 -> 18 -> 5 -> 2 -> 1
	assert.Equal(t, int64(18+5+2+1), bucket.composes.Load())
}

func TestUploader_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	path, _ := writeFile(t, dir, "empty.log", 0)

	bucket := NewMemoryBucket()
	u, err := New(testConfig(), bucket, WithClock(fixedClock))
	require.NoError(t, err)
	uploadAndStop(t, u, path)

	got, ok := bucket.Object(objectName("", "empty.log", 0))
	require.True(t, ok)
	assert.Empty(t, got)
}

func TestUploader_RetriesFailedChunks(t *testing.T) {
	dir := t.TempDir()
	path, data := writeFile(t, dir, "retry.log", 40)

	bucket := newFlakyBucket(2)
	config := testConfig()
	config.KeepLocalFiles = true
	u, err := New(config, bucket, WithClock(fixedClock))
	require.NoError(t, err)

	uploadAndStop(t, u, path)

	got, ok := bucket.Object(objectName("", "retry.log", 0))
	require.True(t, ok)
	assert.Equal(t, data, got)
	assert.FileExists(t, path)

	stats := u.GetStats()
	assert.Equal(t, int64(1), stats.Successful)
	assert.GreaterOrEqual(t, stats.Retries, int64(1))
	assert.NotContains(t, strings.Join(bucket.Objects(), ","), ".chunk.")
}

func TestUploader_GivesUpAfterMaxRetries(t *testing.T) {
	dir := t.TempDir()
	path, _ := writeFile(t, dir, "doomed.log", 10)

	bucket := newFlakyBucket(1000)
	config := testConfig()
	config.MaxRetries = 2
	u, err := New(config, bucket)
	require.NoError(t, err)

	uploadAndStop(t, u, path)

	stats := u.GetStats()
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(2), stats.Retries)
	assert.Equal(t, int64(3), bucket.writes.Load())
	assert.FileExists(t, path, "failed uploads keep the local file")
	assert.Empty(t, bucket.Objects())
}

func TestUploader_MissingFile(t *testing.T) {
	config := testConfig()
	config.MaxRetries = 0
	u, err := New(config, NewMemoryBucket())
	require.NoError(t, err)

	uploadAndStop(t, u, filepath.Join(t.TempDir(), "nope.log"), "")
	stats := u.GetStats()
	assert.Equal(t, int64(1), stats.TotalFiles, "empty paths are skipped")
	assert.Equal(t, int64(1), stats.Failed)
}

func TestUploader_StopCancelsRetries(t *testing.T) {
	dir := t.TempDir()
	path, _ := writeFile(t, dir, "slow.log", 10)

	config := testConfig()
	config.RetryDelay = time.Hour
	u, err := New(config, newFlakyBucket(1000))
	require.NoError(t, err)
	u.Start()
	u.GetUploadChannel() <- path

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = u.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, int64(1), u.GetStats().Failed)
}

func TestUploader_ManyFiles(t *testing.T) {
	dir := t.TempDir()
	bucket := NewMemoryBucket()
	u, err := New(testConfig(), bucket)
	require.NoError(t, err)

	var paths []string
	for i := 0; i < 10; i++ {
		p, _ := writeFile(t, dir, fmt.Sprintf("2026_03_04-%d.log", i), 33+i)
		paths = append(paths, p)
	}
	uploadAndStop(t, u, paths...)

	assert.Len(t, bucket.Objects(), 10)
	assert.Equal(t, int64(10), u.GetStats().Successful)
}

func TestUploader_ReusedFileNameGetsNewObject(t *testing.T) {
	first, firstData := writeFile(t, t.TempDir(), "2026_03_04.log", 20)
	second, secondData := writeFile(t, t.TempDir(), "2026_03_04.log", 30)

	bucket := NewMemoryBucket()
	u, err := New(testConfig(), bucket, WithClock(fixedClock))
	require.NoError(t, err)
	uploadAndStop(t, u, first, second)

	require.Len(t, bucket.Objects(), 2)
	got, ok := bucket.Object(objectName("", "2026_03_04.log", 0))
	require.True(t, ok)
	assert.Equal(t, firstData, got)
	got, ok = bucket.Object(objectName("", "2026_03_04.log", 1))
	require.True(t, ok)
	assert.Equal(t, secondData, got)
}

func TestUploader_StopTwice(t *testing.T) {
	u, err := New(testConfig(), NewMemoryBucket())
	require.NoError(t, err)
	u.Start()

	ctx := context.Background()
	require.NoError(t, u.Stop(ctx))
	assert.NotPanics(t, func() {
		assert.NoError(t, u.Stop(ctx))
	})
}

func TestChunkManager_Compose(t *testing.T) {
	ctx := context.Background()

	t.Run("no chunks", func(t *testing.T) {
		cm := NewChunkManager(32, zerolog.Nop())
		assert.Error(t, cm.Compose(ctx, NewMemoryBucket(), "out", nil))
	})

	t.Run("failed intermediate compose cleans up", func(t *testing.T) {
		bucket := NewMemoryBucket()
		var sources []string
		for i := 0; i < 5; i++ {
			name := fmt.Sprintf("c%d", i)
			require.NoError(t, bucket.Write(ctx, name, []byte{byte('a' + i)}))
			sources = append(sources, name)
		}
		sources = append(sources, "missing")

		cm := NewChunkManager(2, zerolog.Nop())
		err := cm.Compose(ctx, bucket, "out", sources)
		assert.ErrorIs(t, err, ErrObjectNotExist)
		assert.Equal(t, []string{"c0", "c1", "c2", "c3", "c4"}, bucket.Objects())
	})

	t.Run("levels", func(t *testing.T) {
		bucket := NewMemoryBucket()
		var sources []string
		var want []byte
		for i := 0; i < 9; i++ {
			name := fmt.Sprintf("c%d", i)
			require.NoError(t, bucket.Write(ctx, name, []byte{byte('a' + i)}))
			sources = append(sources, name)
			want = append(want, byte('a'+i))
		}

		cm := NewChunkManager(2, zerolog.Nop())
		require.NoError(t, cm.Compose(ctx, bucket, "out", sources))
		got, ok := bucket.Object("out")
		require.True(t, ok)
		assert.Equal(t, want, got)
		assert.Len(t, bucket.Objects(), 10, "only sources and result remain")
	})
}
