package uploader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrObjectNotExist is returned by a Bucket for a missing object
var ErrObjectNotExist = errors.New("uploader: object does not exist")

// maxComposeSources is the GCS limit on sources per compose request
const maxComposeSources = 32

// Bucket is the object store surface the uploader needs
type Bucket interface {
	// Write stores data as object, replacing any existing object
	Write(ctx context.Context, object string, data []byte) error

	// Compose concatenates sources, in order, into dst
	Compose(ctx context.Context, dst string, sources []string) error

	// Size returns the stored size of object
	Size(ctx context.Context, object string) (int64, error)

	// Delete removes object
	Delete(ctx context.Context, object string) error

	// Close releases the client
	Close() error
}

// MemoryBucket is an in-process Bucket, used for dry runs and tests
type MemoryBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemoryBucket creates an empty in-memory bucket
func NewMemoryBucket() *MemoryBucket {
	return &MemoryBucket{objects: make(map[string][]byte)}
}

func (b *MemoryBucket) Write(ctx context.Context, object string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[object] = append([]byte(nil), data...)
	return nil
}

func (b *MemoryBucket) Compose(ctx context.Context, dst string, sources []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(sources) == 0 || len(sources) > maxComposeSources {
		return fmt.Errorf("compose needs 1-%d sources, got %d", maxComposeSources, len(sources))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var out []byte
	for _, src := range sources {
		data, ok := b.objects[src]
		if !ok {
			return fmt.Errorf("compose source %s: %w", src, ErrObjectNotExist)
		}
		out = append(out, data...)
	}
	b.objects[dst] = out
	return nil
}

func (b *MemoryBucket) Size(ctx context.Context, object string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[object]
	if !ok {
		return 0, fmt.Errorf("%s: %w", object, ErrObjectNotExist)
	}
	return int64(len(data)), nil
}

func (b *MemoryBucket) Delete(ctx context.Context, object string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.objects[object]; !ok {
		return fmt.Errorf("%s: %w", object, ErrObjectNotExist)
	}
	delete(b.objects, object)
	return nil
}

func (b *MemoryBucket) Close() error { return nil }

// Object returns a copy of the named object
func (b *MemoryBucket) Object(name string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[name]
	return append([]byte(nil), data...), ok
}

// Objects returns the stored object names, sorted
func (b *MemoryBucket) Objects() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.objects))
	for name := range b.objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
