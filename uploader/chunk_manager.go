package uploader

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// ChunkManager composes chunk objects into one object, staying under the
// per-request source limit by composing in levels
type ChunkManager struct {
	maxChunksPerCompose int
	logger              zerolog.Logger
}

// NewChunkManager creates a new chunk manager
func NewChunkManager(maxChunksPerCompose int, logger zerolog.Logger) *ChunkManager {
	if maxChunksPerCompose < 2 || maxChunksPerCompose > maxComposeSources {
		maxChunksPerCompose = maxComposeSources
	}
	return &ChunkManager{
		maxChunksPerCompose: maxChunksPerCompose,
		logger:              logger,
	}
}

// Compose composes chunks, in order, into object
func (cm *ChunkManager) Compose(ctx context.Context, bucket Bucket, object string, chunkObjects []string) error {
	if len(chunkObjects) == 0 {
		return fmt.Errorf("no chunks to compose")
	}
	if len(chunkObjects) <= cm.maxChunksPerCompose {
		return bucket.Compose(ctx, object, chunkObjects)
	}
	return cm.multiLevelCompose(ctx, bucket, object, chunkObjects, 0)
}

// multiLevelCompose composes groups of maxChunksPerCompose into intermediate
// objects, then composes those, recursing while they exceed the limit
func (cm *ChunkManager) multiLevelCompose(ctx context.Context, bucket Bucket, object string, chunkObjects []string, level int) error {
	var intermediateObjects []string
	for i := 0; i < len(chunkObjects); i += cm.maxChunksPerCompose {
		end := min(i+cm.maxChunksPerCompose, len(chunkObjects))
		intermediateObj := fmt.Sprintf("%s.intermediate.%d.%d", object, level, i/cm.maxChunksPerCompose)

		if err := bucket.Compose(ctx, intermediateObj, chunkObjects[i:end]); err != nil {
			cm.cleanupObjects(ctx, bucket, intermediateObjects)
			return fmt.Errorf("failed to compose intermediate object %s: %w", intermediateObj, err)
		}
		intermediateObjects = append(intermediateObjects, intermediateObj)
	}

	var err error
	if len(intermediateObjects) <= cm.maxChunksPerCompose {
		err = bucket.Compose(ctx, object, intermediateObjects)
	} else {
		err = cm.multiLevelCompose(ctx, bucket, object, intermediateObjects, level+1)
	}

	cm.cleanupObjects(ctx, bucket, intermediateObjects)
	return err
}

// cleanupObjects deletes objects, logging failures
func (cm *ChunkManager) cleanupObjects(ctx context.Context, bucket Bucket, objects []string) {
	for _, obj := range objects {
		if err := bucket.Delete(ctx, obj); err != nil {
			cm.logger.Warn().Err(err).Str("object", obj).Msg("failed to cleanup object")
		}
	}
}
