package repository

import (
	"context"

	"github.com/hszk-dev/typereel/internal/domain/model"
)

// JobRepository persists a ledger of executed render jobs.
type JobRepository interface {
	// Record persists a finished job.
	// Returns ErrDuplicateJob if the job ID was already recorded.
	Record(ctx context.Context, job *model.Job) error

	// ListByKey returns the most recent jobs for a cache key, newest first.
	// Returns an empty slice if no jobs were recorded.
	ListByKey(ctx context.Context, key model.CacheKey, limit int) ([]*model.Job, error)
}
