package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"runtime/debug"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hszk-dev/typereel/internal/artifact"
	"github.com/hszk-dev/typereel/internal/domain/model"
	"github.com/hszk-dev/typereel/internal/domain/repository"
	"github.com/hszk-dev/typereel/internal/infrastructure/metrics"
	"github.com/hszk-dev/typereel/internal/session"
	"github.com/hszk-dev/typereel/internal/transcoder"
)

// ErrLedgerDisabled is returned by JobHistory when no job repository is configured.
var ErrLedgerDisabled = errors.New("job ledger is disabled")

// ArtifactCache maps cache keys to artifact locations for one kind.
type ArtifactCache interface {
	Get(key model.CacheKey) (string, bool)
	Put(key model.CacheKey, location string)
	Remove(key model.CacheKey)
}

// SessionRunner gives exclusive use of a rendering session.
type SessionRunner interface {
	WithSession(ctx context.Context, fn func(ctx context.Context, s session.Session) error) error
}

// FrameCapturer drives a session to produce images.
type FrameCapturer interface {
	CaptureImage(ctx context.Context, s session.Session, text string) ([]byte, error)
	CaptureFrames(ctx context.Context, s session.Session, text string) ([]model.Frame, error)
}

// RenderServiceConfig holds configuration for RenderService.
type RenderServiceConfig struct {
	// WaitTimeout bounds how long a caller waits for a render job.
	// The job itself keeps running. Zero waits indefinitely.
	WaitTimeout time.Duration

	// SharedTTL is how long artifacts stay indexed in the shared tier.
	SharedTTL time.Duration

	// SharedTimeout bounds each shared tier lookup or publish.
	SharedTimeout time.Duration

	// LedgerTimeout bounds each job ledger write.
	LedgerTimeout time.Duration
}

// DefaultRenderServiceConfig returns the default configuration.
func DefaultRenderServiceConfig() RenderServiceConfig {
	return RenderServiceConfig{
		WaitTimeout:   2 * time.Minute,
		SharedTTL:     time.Hour,
		SharedTimeout: 10 * time.Second,
		LedgerTimeout: 5 * time.Second,
	}
}

// RenderOption enables optional collaborators.
type RenderOption func(*renderService)

// WithSharedTier makes the service consult and populate a shared artifact tier
// so that instances reuse each other's renders.
func WithSharedTier(index repository.ArtifactIndex, objects repository.ObjectStorage) RenderOption {
	return func(s *renderService) {
		s.index = index
		s.objects = objects
	}
}

// WithJobLedger records every executed job.
func WithJobLedger(jobs repository.JobRepository) RenderOption {
	return func(s *renderService) {
		s.jobs = jobs
	}
}

// RenderService turns requests into artifacts, rendering at most once per
// (key, kind) at a time.
type RenderService interface {
	// Render returns an open handle on the artifact for req. The caller must
	// close it. The artifact stays on disk until the handle is closed even if
	// the cache drops it in the meantime.
	Render(ctx context.Context, req model.RenderRequest) (*artifact.Handle, error)

	// JobHistory returns recorded jobs for key, newest first.
	// Returns ErrLedgerDisabled when no ledger is configured.
	JobHistory(ctx context.Context, key model.CacheKey, limit int) ([]*model.Job, error)
}

type renderService struct {
	caches   map[model.Kind]ArtifactCache
	store    *artifact.Store
	pool     SessionRunner
	capturer FrameCapturer
	encoder  transcoder.Encoder

	index   repository.ArtifactIndex
	objects repository.ObjectStorage
	jobs    repository.JobRepository

	sfGroup singleflight.Group
	cfg     RenderServiceConfig
}

// NewRenderService creates a RenderService.
func NewRenderService(
	images ArtifactCache,
	videos ArtifactCache,
	store *artifact.Store,
	pool SessionRunner,
	capturer FrameCapturer,
	encoder transcoder.Encoder,
	cfg RenderServiceConfig,
	opts ...RenderOption,
) RenderService {
	s := &renderService{
		caches: map[model.Kind]ArtifactCache{
			model.KindImage: images,
			model.KindVideo: videos,
		},
		store:    store,
		pool:     pool,
		capturer: capturer,
		encoder:  encoder,
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *renderService) Render(ctx context.Context, req model.RenderRequest) (*artifact.Handle, error) {
	// A finished job's artifact can be retired before this caller opens it
	// when the cache is under pressure. One more round renders it again.
	for attempt := 0; attempt < 2; attempt++ {
		h, ok, err := s.fromCache(req)
		if err != nil {
			return nil, err
		}
		if ok {
			return h, nil
		}

		location, err := s.await(ctx, req)
		if err != nil {
			return nil, err
		}

		h, err = s.store.Open(location)
		if err == nil {
			return h, nil
		}
		if !errors.Is(err, artifact.ErrNotFound) {
			return nil, &model.StageError{Stage: model.StageStore, Key: req.Key, Kind: req.Kind, Err: err}
		}
		slog.Debug("artifact retired before it could be served",
			"cache_key", req.Key,
			"kind", req.Kind,
		)
	}

	return nil, &model.StageError{
		Stage: model.StageStore,
		Key:   req.Key,
		Kind:  req.Kind,
		Err:   fmt.Errorf("%w: artifact evicted before it could be served", model.ErrRenderFailure),
	}
}

func (s *renderService) JobHistory(ctx context.Context, key model.CacheKey, limit int) ([]*model.Job, error) {
	if s.jobs == nil {
		return nil, ErrLedgerDisabled
	}
	return s.jobs.ListByKey(ctx, key, limit)
}

// fromCache opens the cached artifact for req, if any. An entry whose file is
// gone is dropped so the request renders again; any other open failure leaves
// the entry in place.
func (s *renderService) fromCache(req model.RenderRequest) (*artifact.Handle, bool, error) {
	location, ok := s.caches[req.Kind].Get(req.Key)
	if !ok {
		return nil, false, nil
	}
	h, err := s.store.Open(location)
	if err == nil {
		return h, true, nil
	}
	if !errors.Is(err, artifact.ErrNotFound) {
		return nil, false, &model.StageError{Stage: model.StageStore, Key: req.Key, Kind: req.Kind, Err: err}
	}
	slog.Warn("cached artifact is missing",
		"cache_key", req.Key,
		"kind", req.Kind,
		"error", err,
	)
	s.caches[req.Kind].Remove(req.Key)
	return nil, false, nil
}

// await joins or starts the job for req and waits for its location.
func (s *renderService) await(ctx context.Context, req model.RenderRequest) (string, error) {
	// The job must outlive callers that give up; it still populates the cache.
	jobCtx := context.WithoutCancel(ctx)
	ch := s.sfGroup.DoChan(sfKey(req), func() (any, error) {
		return s.execute(jobCtx, req)
	})

	var timeout <-chan time.Time
	if s.cfg.WaitTimeout > 0 {
		timer := time.NewTimer(s.cfg.WaitTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case res := <-ch:
		// Record singleflight metrics
		if res.Shared {
			metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightShared).Inc()
		} else {
			metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightInitiated).Inc()
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timeout:
		return "", &model.StageError{
			Stage: model.StageWait,
			Key:   req.Key,
			Kind:  req.Kind,
			Err:   fmt.Errorf("%w after %v", model.ErrWaitTimeout, s.cfg.WaitTimeout),
		}
	}
}

// execute runs one job. It is only ever called inside the singleflight group,
// so at most one execute runs per (key, kind).
func (s *renderService) execute(ctx context.Context, req model.RenderRequest) (string, error) {
	cache := s.caches[req.Kind]

	// Another job may have finished between the caller's lookup and joining the group.
	if location, ok := cache.Get(req.Key); ok {
		return location, nil
	}

	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()

	job := model.NewJob(req.Key, req.Kind)
	logger := slog.With(
		"job_id", job.ID,
		"cache_key", req.Key,
		"kind", req.Kind,
	)

	location, source, frames, err := s.produceRecovered(ctx, req, job)
	if err != nil {
		_ = job.Fail(err)
		s.record(ctx, job)
		metrics.JobsTotal.WithLabelValues(req.Kind.String(), metrics.JobStatusFailed).Inc()
		logger.Error("render job failed", "error", err)
		return "", err
	}

	cache.Put(req.Key, location)
	_ = job.Succeed(source, frames)
	s.record(ctx, job)
	metrics.JobsTotal.WithLabelValues(req.Kind.String(), metrics.JobStatusSucceeded).Inc()
	logger.Info("render job succeeded",
		"source", source,
		"frames", frames,
		"duration_ms", job.Duration().Milliseconds(),
	)

	return location, nil
}

// produceRecovered runs produce and turns a panic into a capture failure.
// singleflight re-panics on a fresh goroutine, which nothing could recover.
func (s *renderService) produceRecovered(ctx context.Context, req model.RenderRequest, job *model.Job) (location string, source model.JobSource, frames int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("render job panicked",
				"job_id", job.ID,
				"cache_key", req.Key,
				"kind", req.Kind,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			location, source, frames = "", "", 0
			err = &model.StageError{
				Stage: model.StageCapture,
				Key:   req.Key,
				Kind:  req.Kind,
				Err:   fmt.Errorf("%w: panic: %v", model.ErrRenderFailure, rec),
			}
		}
	}()
	return s.produce(ctx, req, job)
}

// produce obtains the artifact from the cheapest available source.
func (s *renderService) produce(ctx context.Context, req model.RenderRequest, job *model.Job) (string, model.JobSource, int, error) {
	if location, ok := s.store.Revive(req.Key, req.Kind); ok {
		return location, model.SourceRevived, 0, nil
	}

	if location, ok := s.fetchShared(ctx, req); ok {
		return location, model.SourceShared, 0, nil
	}

	data, frames, err := s.render(ctx, req, job)
	if err != nil {
		return "", "", 0, err
	}

	location, err := s.store.Write(req.Key, req.Kind, data)
	if err != nil {
		return "", "", 0, &model.StageError{Stage: model.StageStore, Key: req.Key, Kind: req.Kind, Err: err}
	}

	s.publishShared(ctx, req, location)

	return location, model.SourceRendered, frames, nil
}

// render captures and, for videos, encodes. It returns the artifact bytes and
// the number of frames captured.
func (s *renderService) render(ctx context.Context, req model.RenderRequest, job *model.Job) ([]byte, int, error) {
	var (
		image  []byte
		frames []model.Frame
	)

	start := time.Now()
	err := s.pool.WithSession(ctx, func(ctx context.Context, sess session.Session) error {
		var err error
		if req.Kind == model.KindVideo {
			frames, err = s.capturer.CaptureFrames(ctx, sess, req.Text)
		} else {
			image, err = s.capturer.CaptureImage(ctx, sess, req.Text)
		}
		return err
	})
	if err != nil {
		stage := model.StageCapture
		if errors.Is(err, model.ErrSessionUnavailable) || errors.Is(err, session.ErrPoolClosed) {
			stage = model.StageSession
		}
		return nil, 0, &model.StageError{
			Stage: stage,
			Key:   req.Key,
			Kind:  req.Kind,
			Err:   fmt.Errorf("%w: %w", model.ErrRenderFailure, err),
		}
	}
	metrics.StageDuration.WithLabelValues(metrics.StageCapture).Observe(time.Since(start).Seconds())

	if req.Kind != model.KindVideo {
		return image, 1, nil
	}

	data, err := s.encode(ctx, req, job, frames)
	if err != nil {
		return nil, 0, err
	}
	return data, len(frames), nil
}

// encode assembles frames in a scratch directory that is removed before it returns.
func (s *renderService) encode(ctx context.Context, req model.RenderRequest, job *model.Job, frames []model.Frame) ([]byte, error) {
	encodeErr := func(err error) error {
		return &model.StageError{
			Stage: model.StageEncode,
			Key:   req.Key,
			Kind:  req.Kind,
			Err:   fmt.Errorf("%w: %w", model.ErrEncodeFailure, err),
		}
	}

	workDir, err := s.store.WorkDir(job.ID.String())
	if err != nil {
		return nil, encodeErr(err)
	}
	defer s.store.RemoveWorkDir(workDir)

	start := time.Now()
	data, err := s.encoder.Encode(ctx, frames, workDir)
	if err != nil {
		return nil, encodeErr(err)
	}
	metrics.StageDuration.WithLabelValues(metrics.StageEncode).Observe(time.Since(start).Seconds())

	return data, nil
}

// fetchShared copies the artifact for req from the shared tier into the local
// store. Failures are logged and reported as a miss.
func (s *renderService) fetchShared(ctx context.Context, req model.RenderRequest) (string, bool) {
	if s.index == nil || s.objects == nil {
		return "", false
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.SharedTimeout)
	defer cancel()

	objectKey, ok, err := s.index.Lookup(ctx, req.Key, req.Kind)
	if err != nil {
		metrics.SharedTierOperationsTotal.WithLabelValues(metrics.SharedOpLookup, metrics.CacheStatusError).Inc()
		slog.Warn("shared tier lookup failed", "cache_key", req.Key, "kind", req.Kind, "error", err)
		return "", false
	}
	if !ok {
		metrics.SharedTierOperationsTotal.WithLabelValues(metrics.SharedOpLookup, metrics.CacheStatusMiss).Inc()
		return "", false
	}

	reader, err := s.objects.Download(ctx, objectKey)
	if err != nil {
		metrics.SharedTierOperationsTotal.WithLabelValues(metrics.SharedOpLookup, metrics.CacheStatusError).Inc()
		if errors.Is(err, repository.ErrObjectNotFound) {
			// Stale index entry
			if forgetErr := s.index.Forget(ctx, req.Key, req.Kind); forgetErr != nil {
				slog.Warn("failed to forget stale shared index entry", "cache_key", req.Key, "error", forgetErr)
			}
		}
		slog.Warn("shared tier download failed", "cache_key", req.Key, "object_key", objectKey, "error", err)
		return "", false
	}
	defer func() { _ = reader.Close() }()

	location, err := s.store.WriteFrom(req.Key, req.Kind, reader)
	if err != nil {
		metrics.SharedTierOperationsTotal.WithLabelValues(metrics.SharedOpLookup, metrics.CacheStatusError).Inc()
		slog.Warn("failed to store shared artifact locally", "cache_key", req.Key, "error", err)
		return "", false
	}

	metrics.SharedTierOperationsTotal.WithLabelValues(metrics.SharedOpLookup, metrics.CacheStatusHit).Inc()
	return location, true
}

// publishShared uploads a fresh artifact and indexes it. Failures are logged only.
func (s *renderService) publishShared(ctx context.Context, req model.RenderRequest, location string) {
	if s.index == nil || s.objects == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.SharedTimeout)
	defer cancel()

	fail := func(msg string, err error) {
		metrics.SharedTierOperationsTotal.WithLabelValues(metrics.SharedOpPublish, metrics.CacheStatusError).Inc()
		slog.Warn(msg, "cache_key", req.Key, "kind", req.Kind, "error", err)
	}

	h, err := s.store.Open(location)
	if err != nil {
		fail("failed to open artifact for publishing", err)
		return
	}
	defer func() { _ = h.Close() }()

	objectKey := ObjectKey(req.Key, req.Kind)
	if err := s.objects.Upload(ctx, objectKey, h, h.Info().Size(), req.Kind.ContentType()); err != nil {
		fail("failed to upload artifact to shared tier", err)
		return
	}
	if err := s.index.Record(ctx, req.Key, req.Kind, objectKey, s.cfg.SharedTTL); err != nil {
		fail("failed to index shared artifact", err)
		// Unindexed objects are never looked up again.
		if delErr := s.objects.Delete(ctx, objectKey); delErr != nil {
			slog.Warn("failed to delete unindexed shared artifact", "object_key", objectKey, "error", delErr)
		}
		return
	}

	metrics.SharedTierOperationsTotal.WithLabelValues(metrics.SharedOpPublish, metrics.CacheStatusSuccess).Inc()
}

// record writes job to the ledger. Failures are logged only.
func (s *renderService) record(ctx context.Context, job *model.Job) {
	if s.jobs == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.LedgerTimeout)
	defer cancel()

	if err := s.jobs.Record(ctx, job); err != nil {
		slog.Warn("failed to record render job",
			"job_id", job.ID,
			"cache_key", job.Key,
			"error", err,
		)
	}
}

// ObjectKey is where an artifact is stored in the shared tier.
// Format: artifacts/{kind}/{key}{ext}
func ObjectKey(key model.CacheKey, kind model.Kind) string {
	return path.Join("artifacts", kind.String(), key.String()+kind.Ext())
}

func sfKey(req model.RenderRequest) string {
	return req.Kind.String() + ":" + req.Key.String()
}
