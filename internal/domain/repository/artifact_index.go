package repository

import (
	"context"
	"time"

	"github.com/hszk-dev/typereel/internal/domain/model"
)

// ArtifactIndex maps rendered artifacts to their location in shared object storage.
// It lets several instances reuse each other's renders.
type ArtifactIndex interface {
	// Lookup returns the object key stored for (key, kind).
	// Returns "", false, nil when nothing is indexed.
	Lookup(ctx context.Context, key model.CacheKey, kind model.Kind) (string, bool, error)

	// Record stores the object key for (key, kind) with the given TTL.
	Record(ctx context.Context, key model.CacheKey, kind model.Kind, objectKey string, ttl time.Duration) error

	// Forget removes the entry for (key, kind). Returns nil if it was not indexed.
	Forget(ctx context.Context, key model.CacheKey, kind model.Kind) error
}
