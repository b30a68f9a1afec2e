package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hszk-dev/typereel/internal/domain/model"
	"github.com/hszk-dev/typereel/internal/domain/repository"
)

// DBTX is an interface that abstracts pgxpool.Pool and pgx.Tx for testability.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// JobRepository implements repository.JobRepository using PostgreSQL.
type JobRepository struct {
	db DBTX
}

// NewJobRepository creates a new JobRepository instance.
func NewJobRepository(db DBTX) *JobRepository {
	return &JobRepository{db: db}
}

// Record persists a finished job.
func (r *JobRepository) Record(ctx context.Context, job *model.Job) error {
	const query = `
		INSERT INTO render_jobs (id, cache_key, kind, state, source, frames, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Exec(ctx, query,
		job.ID,
		job.Key.String(),
		job.Kind.String(),
		job.State.String(),
		nullString(string(job.Source)),
		job.Frames,
		nullString(job.Error),
		job.StartedAt,
		job.FinishedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return repository.ErrDuplicateJob
		}
		return fmt.Errorf("failed to record job: %w", err)
	}

	return nil
}

// ListByKey returns up to limit jobs for key, newest first.
func (r *JobRepository) ListByKey(ctx context.Context, key model.CacheKey, limit int) ([]*model.Job, error) {
	const query = `
		SELECT id, cache_key, kind, state, source, frames, error, started_at, finished_at
		FROM render_jobs
		WHERE cache_key = $1
		ORDER BY started_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, key.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs by key: %w", err)
	}
	defer rows.Close()

	jobs := make([]*model.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}

	return jobs, nil
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var (
		job    model.Job
		key    string
		kind   string
		state  string
		source *string
		errMsg *string
	)

	err := row.Scan(
		&job.ID,
		&key,
		&kind,
		&state,
		&source,
		&job.Frames,
		&errMsg,
		&job.StartedAt,
		&job.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Key = model.CacheKey(key)
	job.Kind = model.Kind(kind)
	job.State = model.JobState(state)
	if source != nil {
		job.Source = model.JobSource(*source)
	}
	if errMsg != nil {
		job.Error = *errMsg
	}

	return &job, nil
}

// nullString returns nil for empty strings, otherwise returns a pointer to the string.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Compile-time verification that JobRepository implements repository.JobRepository.
var _ repository.JobRepository = (*JobRepository)(nil)
