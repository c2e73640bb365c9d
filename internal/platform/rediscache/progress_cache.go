package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/tovell/argus-api/internal/store"
)

const (
	progressKeyPrefix = "task:progress:"
	progressTTL       = 10 * time.Minute
)

// ProgressCache implements store.ProgressCache on Redis. Snapshots are
// stored as JSON with a TTL so a crashed invalidation can never serve a
// stale value forever.
type ProgressCache struct {
	cache *Cache
}

// Ensure ProgressCache implements store.ProgressCache
var _ store.ProgressCache = (*ProgressCache)(nil)

// NewProgressCache creates a ProgressCache on top of the given connection.
func NewProgressCache(cache *Cache) *ProgressCache {
	return &ProgressCache{cache: cache}
}

func progressKey(taskID uuid.UUID) string {
	return fmt.Sprintf("%s%s", progressKeyPrefix, taskID)
}

// Get returns the cached snapshot for the task, or (nil, nil) on a miss.
func (pc *ProgressCache) Get(ctx context.Context, taskID uuid.UUID) (*store.TaskProgress, error) {
	data, err := pc.cache.Get(ctx, progressKey(taskID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var progress store.TaskProgress
	if err := json.Unmarshal([]byte(data), &progress); err != nil {
		return nil, fmt.Errorf("unmarshal cached progress: %w", err)
	}

	return &progress, nil
}

// Set stores the snapshot, replacing any previous value.
func (pc *ProgressCache) Set(ctx context.Context, progress *store.TaskProgress) error {
	data, err := json.Marshal(progress)
	if err != nil {
		return err
	}

	return pc.cache.Set(ctx, progressKey(progress.TaskID), data, progressTTL)
}

// Invalidate drops the cached snapshot for the task.
func (pc *ProgressCache) Invalidate(ctx context.Context, taskID uuid.UUID) error {
	return pc.cache.Del(ctx, progressKey(taskID))
}
