// Package uploader ships completed log files to object storage.
//
// Each file is split into chunks uploaded in parallel on a worker pool, then
// composed into one object whose size is verified before the local file is
// removed.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/neehar-mavuduru/stagekit/threadpool"
)

// ErrStopped is returned for uploads interrupted by Stop
var ErrStopped = errors.New("uploader: stopped")

// Stats tracks upload statistics
type Stats struct {
	TotalFiles     int64
	Successful     int64
	Failed         int64
	Retries        int64
	TotalBytes     int64
	TotalDuration  time.Duration
	LastUploadTime time.Time
}

// Uploader reads file paths from its channel and uploads them one at a time
type Uploader struct {
	config     Config
	bucket     Bucket
	pool       *threadpool.Pool
	chunkMgr   *ChunkManager
	uploadChan chan string
	logger     zerolog.Logger

	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once

	// now stamps object names; lastStamp is only touched by the upload worker
	now       func() time.Time
	lastStamp time.Time

	statsMu     sync.RWMutex
	uploadStats Stats
}

// Option configures an Uploader
type Option func(*Uploader)

// WithLogger sets the logger for upload progress and failures
func WithLogger(logger zerolog.Logger) Option {
	return func(u *Uploader) {
		u.logger = logger
	}
}

// WithClock replaces time.Now for object name timestamps
func WithClock(now func() time.Time) Option {
	return func(u *Uploader) {
		u.now = now
	}
}

// New creates an uploader writing to bucket. Call Start to begin consuming
// the upload channel.
func New(config Config, bucket Bucket, opts ...Option) (*Uploader, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if bucket == nil {
		return nil, fmt.Errorf("bucket is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	u := &Uploader{
		config:     config,
		bucket:     bucket,
		uploadChan: make(chan string, config.ChannelBufferSize),
		logger:     zerolog.Nop(),
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(u)
	}
	u.chunkMgr = NewChunkManager(config.MaxChunksPerCompose, u.logger)
	u.pool = threadpool.New(config.Workers, threadpool.WithLogger(u.logger))
	return u, nil
}

// Start starts the upload worker
func (u *Uploader) Start() {
	u.wg.Add(1)
	go u.uploadWorker()
}

// Stop closes the upload channel and waits for queued files to be uploaded.
// If ctx ends first, in-flight uploads are cancelled and Stop returns ctx.Err().
// Calls after the first return nil.
//
// Nothing may send on the channel once Stop has been called: shut down every
// logger feeding it first.
func (u *Uploader) Stop(ctx context.Context) error {
	var err error
	u.stopOnce.Do(func() {
		err = u.stop(ctx)
	})
	return err
}

func (u *Uploader) stop(ctx context.Context) error {
	close(u.uploadChan)

	done := make(chan struct{})
	go func() {
		u.wg.Wait()
		close(done)
	}()

	var stopErr error
	select {
	case <-done:
	case <-ctx.Done():
		u.cancel()
		<-done
		stopErr = ctx.Err()
	}
	u.cancel()

	u.pool.Shutdown()
	if err := u.bucket.Close(); err != nil && stopErr == nil {
		stopErr = fmt.Errorf("failed to close bucket: %w", err)
	}
	return stopErr
}

// GetUploadChannel returns the channel to send file paths for upload
func (u *Uploader) GetUploadChannel() chan<- string {
	return u.uploadChan
}

// GetStats returns current upload statistics
func (u *Uploader) GetStats() Stats {
	u.statsMu.RLock()
	defer u.statsMu.RUnlock()
	return u.uploadStats
}

// uploadWorker reads from channel and uploads files
func (u *Uploader) uploadWorker() {
	defer u.wg.Done()

	for filePath := range u.uploadChan {
		if filePath == "" {
			continue
		}

		err := u.uploadFileWithRetry(filePath)

		u.statsMu.Lock()
		u.uploadStats.TotalFiles++
		if err != nil {
			u.uploadStats.Failed++
		} else {
			u.uploadStats.Successful++
			u.uploadStats.LastUploadTime = time.Now()
		}
		u.statsMu.Unlock()

		if err != nil {
			u.logger.Error().Err(err).Str("path", filePath).Msg("upload failed")
		}
	}
}

// uploadFileWithRetry uploads a file with retry logic
func (u *Uploader) uploadFileWithRetry(filePath string) error {
	objectName := u.generateObjectName(filePath)

	var lastErr error
	for attempt := 0; attempt <= u.config.MaxRetries; attempt++ {
		if attempt > 0 {
			u.statsMu.Lock()
			u.uploadStats.Retries++
			u.statsMu.Unlock()

			// Wait before retry
			select {
			case <-u.ctx.Done():
				return fmt.Errorf("%w: %w", ErrStopped, lastErr)
			case <-time.After(u.config.RetryDelay):
			}
		}

		start := time.Now()
		size, err := u.uploadFile(u.ctx, filePath, objectName)
		if err == nil {
			u.statsMu.Lock()
			u.uploadStats.TotalBytes += size
			u.uploadStats.TotalDuration += time.Since(start)
			u.statsMu.Unlock()
			return nil
		}

		lastErr = err
		if u.ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrStopped, err)
		}
		if attempt < u.config.MaxRetries {
			u.logger.Warn().
				Err(err).
				Str("path", filePath).
				Int("attempt", attempt+1).
				Int("max_attempts", u.config.MaxRetries+1).
				Msg("upload attempt failed, retrying")
		}
	}

	return fmt.Errorf("upload failed after %d attempts: %w", u.config.MaxRetries+1, lastErr)
}

// uploadFile uploads a single file using parallel chunk upload and removes it
// from disk unless KeepLocalFiles is set
func (u *Uploader) uploadFile(ctx context.Context, filePath, objectName string) (int64, error) {
	buf, err := os.ReadFile(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to read file: %w", err)
	}

	if err := u.uploadParallel(ctx, objectName, buf); err != nil {
		return 0, fmt.Errorf("parallel upload failed: %w", err)
	}

	if !u.config.KeepLocalFiles {
		if err := os.Remove(filePath); err != nil {
			// Non-fatal - upload succeeded
			u.logger.Warn().Err(err).Str("path", filePath).Msg("failed to delete local file after upload")
		}
	}

	u.logger.Debug().
		Str("path", filePath).
		Str("object", objectName).
		Int("bytes", len(buf)).
		Msg("file uploaded")
	return int64(len(buf)), nil
}

// objectStampLayout is inserted before the file extension of every object name
const objectStampLayout = "20060102T150405.000000000"

// generateObjectName returns <prefix><name>_<upload time><ext>. Stamps are
// strictly increasing, so a local name reused by a later file never
// overwrites an earlier object.
func (u *Uploader) generateObjectName(filePath string) string {
	stamp := u.now().UTC()
	if !stamp.After(u.lastStamp) {
		stamp = u.lastStamp.Add(time.Nanosecond)
	}
	u.lastStamp = stamp

	base := filepath.Base(filePath)
	ext := filepath.Ext(base)
	return u.config.ObjectPrefix + strings.TrimSuffix(base, ext) + "_" + stamp.Format(objectStampLayout) + ext
}

// chunkNames returns the temporary object names for numChunks chunks
func chunkNames(tempPrefix string, numChunks int) []string {
	names := make([]string, numChunks)
	for i := range names {
		names[i] = fmt.Sprintf("%s.chunk.%d", tempPrefix, i)
	}
	return names
}

// uploadParallel uploads chunks on the worker pool and composes them into the
// final object
func (u *Uploader) uploadParallel(ctx context.Context, object string, buf []byte) error {
	chunkSize := u.config.ChunkSize
	numChunks := max(1, (len(buf)+chunkSize-1)/chunkSize)

	// Unique prefix for temporary chunk objects
	tempPrefix := fmt.Sprintf("%s.tmp.%d", object, time.Now().UnixNano())
	chunkObjects := chunkNames(tempPrefix, numChunks)

	errs := make([]error, numChunks)
	var wg sync.WaitGroup
	for i := 0; i < numChunks; i++ {
		offset := i * chunkSize
		end := min(offset+chunkSize, len(buf))
		chunkIndex, chunkData := i, buf[offset:end]

		wg.Add(1)
		err := u.pool.AddTask(func() {
			defer wg.Done()
			if err := u.bucket.Write(ctx, chunkObjects[chunkIndex], chunkData); err != nil {
				errs[chunkIndex] = err
			}
		})
		if err != nil {
			wg.Done()
			errs[chunkIndex] = err
		}
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			u.cleanupTempChunks(ctx, chunkObjects)
			return fmt.Errorf("chunk %d failed: %w", i, err)
		}
	}

	if err := u.chunkMgr.Compose(ctx, u.bucket, object, chunkObjects); err != nil {
		u.cleanupTempChunks(ctx, chunkObjects)
		return fmt.Errorf("compose error: %w", err)
	}

	// Verify final object size matches expected size
	size, err := u.bucket.Size(ctx, object)
	if err != nil {
		u.cleanupTempChunks(ctx, chunkObjects)
		return fmt.Errorf("failed to get object size: %w", err)
	}
	if size != int64(len(buf)) {
		u.cleanupTempChunks(ctx, chunkObjects)
		_ = u.bucket.Delete(ctx, object) // Try to delete malformed object
		return fmt.Errorf("size mismatch: expected %d bytes, got %d bytes", len(buf), size)
	}

	u.cleanupTempChunks(ctx, chunkObjects)
	return nil
}

// cleanupTempChunks deletes temporary chunk objects, ignoring ones never written
func (u *Uploader) cleanupTempChunks(ctx context.Context, chunkObjects []string) {
	for _, obj := range chunkObjects {
		if err := u.bucket.Delete(ctx, obj); err != nil && !errors.Is(err, ErrObjectNotExist) {
			u.logger.Warn().Err(err).Str("object", obj).Msg("failed to cleanup temp chunk")
		}
	}
}
