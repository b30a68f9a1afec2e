package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/typereel/internal/domain/model"
	"github.com/hszk-dev/typereel/internal/domain/repository"
)

const (
	// artifactKeyPrefix is the prefix for artifact index keys in Redis.
	// Format: artifact:{kind}:{cache_key}
	artifactKeyPrefix = "artifact:"
)

// artifactJSON is the JSON representation of an index entry.
// Using explicit struct avoids coupling to domain model's JSON tags.
type artifactJSON struct {
	ObjectKey string `json:"object_key"`
	Kind      string `json:"kind"`
	IndexedAt string `json:"indexed_at"`
}

// RedisArtifactIndex implements repository.ArtifactIndex using Redis as the backing store.
type RedisArtifactIndex struct {
	client *redis.Client
}

// Compile-time verification that RedisArtifactIndex implements repository.ArtifactIndex.
var _ repository.ArtifactIndex = (*RedisArtifactIndex)(nil)

// NewRedisArtifactIndex creates a new Redis-backed artifact index.
func NewRedisArtifactIndex(client *redis.Client) *RedisArtifactIndex {
	return &RedisArtifactIndex{
		client: client,
	}
}

// Lookup returns the object key indexed for (key, kind).
// Returns "", false, nil on miss.
func (c *RedisArtifactIndex) Lookup(ctx context.Context, key model.CacheKey, kind model.Kind) (string, bool, error) {
	data, err := c.client.Get(ctx, c.buildKey(key, kind)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil // Cache miss
		}
		return "", false, fmt.Errorf("redis get: %w", err)
	}

	var v artifactJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return "", false, fmt.Errorf("deserialize index entry: %w", err)
	}
	if v.ObjectKey == "" || model.Kind(v.Kind) != kind {
		return "", false, fmt.Errorf("corrupt index entry for %s", c.buildKey(key, kind))
	}

	return v.ObjectKey, true, nil
}

// Record indexes objectKey for (key, kind) with the specified TTL.
func (c *RedisArtifactIndex) Record(ctx context.Context, key model.CacheKey, kind model.Kind, objectKey string, ttl time.Duration) error {
	data, err := json.Marshal(artifactJSON{
		ObjectKey: objectKey,
		Kind:      kind.String(),
		IndexedAt: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("serialize index entry: %w", err)
	}

	if err := c.client.Set(ctx, c.buildKey(key, kind), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Forget removes the index entry for (key, kind).
func (c *RedisArtifactIndex) Forget(ctx context.Context, key model.CacheKey, kind model.Kind) error {
	if err := c.client.Del(ctx, c.buildKey(key, kind)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}

// buildKey constructs the Redis key for an artifact.
func (c *RedisArtifactIndex) buildKey(key model.CacheKey, kind model.Kind) string {
	return artifactKeyPrefix + kind.String() + ":" + key.String()
}
