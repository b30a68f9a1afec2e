package usecase

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hszk-dev/typereel/internal/artifact"
	"github.com/hszk-dev/typereel/internal/domain/model"
	"github.com/hszk-dev/typereel/internal/domain/repository"
	"github.com/hszk-dev/typereel/internal/session"
)

// fakeSession screenshots the current input value as "png:<value>".
type fakeSession struct {
	mu          sync.Mutex
	value       string
	screenshots *atomic.Int32
}

func (s *fakeSession) Navigate(context.Context, string) error { return nil }
func (s *fakeSession) Click(context.Context, string) error    { return nil }
func (s *fakeSession) Focus(context.Context, string) error    { return nil }

func (s *fakeSession) Fill(_ context.Context, _ string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = value
	return nil
}

func (s *fakeSession) Screenshot(context.Context, string, int, int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.screenshots.Add(1)
	return []byte("png:" + s.value), nil
}

func (s *fakeSession) Close() error { return nil }

// fakeEngine creates fakeSessions and counts every interaction.
type fakeEngine struct {
	newSessionFn func(ctx context.Context) (session.Session, error)
	sessions     atomic.Int32
	screenshots  atomic.Int32
}

func (e *fakeEngine) NewSession(ctx context.Context) (session.Session, error) {
	if e.newSessionFn != nil {
		return e.newSessionFn(ctx)
	}
	e.sessions.Add(1)
	return &fakeSession{screenshots: &e.screenshots}, nil
}

// mockCapturer provides a configurable mock for FrameCapturer.
type mockCapturer struct {
	captureImageFn  func(ctx context.Context, s session.Session, text string) ([]byte, error)
	captureFramesFn func(ctx context.Context, s session.Session, text string) ([]model.Frame, error)
	calls           atomic.Int32
}

func (m *mockCapturer) CaptureImage(ctx context.Context, s session.Session, text string) ([]byte, error) {
	m.calls.Add(1)
	if m.captureImageFn != nil {
		return m.captureImageFn(ctx, s, text)
	}
	return []byte("png:" + text), nil
}

func (m *mockCapturer) CaptureFrames(ctx context.Context, s session.Session, text string) ([]model.Frame, error) {
	m.calls.Add(1)
	if m.captureFramesFn != nil {
		return m.captureFramesFn(ctx, s, text)
	}
	return []model.Frame{
		{Image: []byte("png:" + text), Duration: 700 * time.Millisecond},
		{Image: []byte("png:" + text), Duration: 2 * time.Second},
	}, nil
}

// mockEncoder provides a configurable mock for transcoder.Encoder.
type mockEncoder struct {
	mu       sync.Mutex
	encodeFn func(ctx context.Context, frames []model.Frame, workDir string) ([]byte, error)
	calls    int
	frames   []model.Frame
	workDirs []string
}

func (m *mockEncoder) Encode(ctx context.Context, frames []model.Frame, workDir string) ([]byte, error) {
	m.mu.Lock()
	m.calls++
	m.frames = frames
	m.workDirs = append(m.workDirs, workDir)
	m.mu.Unlock()

	if m.encodeFn != nil {
		return m.encodeFn(ctx, frames, workDir)
	}
	return []byte("mp4"), nil
}

func (m *mockEncoder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockArtifactIndex provides a configurable mock for ArtifactIndex.
type mockArtifactIndex struct {
	lookupFn func(ctx context.Context, key model.CacheKey, kind model.Kind) (string, bool, error)
	recordFn func(ctx context.Context, key model.CacheKey, kind model.Kind, objectKey string, ttl time.Duration) error
	forgetFn func(ctx context.Context, key model.CacheKey, kind model.Kind) error
}

func (m *mockArtifactIndex) Lookup(ctx context.Context, key model.CacheKey, kind model.Kind) (string, bool, error) {
	if m.lookupFn != nil {
		return m.lookupFn(ctx, key, kind)
	}
	return "", false, nil
}

func (m *mockArtifactIndex) Record(ctx context.Context, key model.CacheKey, kind model.Kind, objectKey string, ttl time.Duration) error {
	if m.recordFn != nil {
		return m.recordFn(ctx, key, kind, objectKey, ttl)
	}
	return nil
}

func (m *mockArtifactIndex) Forget(ctx context.Context, key model.CacheKey, kind model.Kind) error {
	if m.forgetFn != nil {
		return m.forgetFn(ctx, key, kind)
	}
	return nil
}

// mockObjectStorage provides a configurable mock for ObjectStorage.
type mockObjectStorage struct {
	uploadFn   func(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	downloadFn func(ctx context.Context, key string) (io.ReadCloser, error)
	deleteFn   func(ctx context.Context, key string) error
}

func (m *mockObjectStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	if m.uploadFn != nil {
		return m.uploadFn(ctx, key, reader, size, contentType)
	}
	return nil
}

func (m *mockObjectStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if m.downloadFn != nil {
		return m.downloadFn(ctx, key)
	}
	return nil, repository.ErrObjectNotFound
}

func (m *mockObjectStorage) Delete(ctx context.Context, key string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, key)
	}
	return nil
}

// mockJobRepository records jobs in memory.
type mockJobRepository struct {
	mu       sync.Mutex
	jobs     []model.Job
	recordFn func(ctx context.Context, job *model.Job) error
	listFn   func(ctx context.Context, key model.CacheKey, limit int) ([]*model.Job, error)
}

func (m *mockJobRepository) Record(ctx context.Context, job *model.Job) error {
	m.mu.Lock()
	m.jobs = append(m.jobs, *job)
	m.mu.Unlock()
	if m.recordFn != nil {
		return m.recordFn(ctx, job)
	}
	return nil
}

func (m *mockJobRepository) ListByKey(ctx context.Context, key model.CacheKey, limit int) ([]*model.Job, error) {
	if m.listFn != nil {
		return m.listFn(ctx, key, limit)
	}
	return []*model.Job{}, nil
}

func (m *mockJobRepository) recorded() []model.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Job(nil), m.jobs...)
}

// mockMessageQueue provides a configurable mock for MessageQueue.
type mockMessageQueue struct {
	publishPrewarmTaskFn  func(ctx context.Context, task repository.PrewarmTask) error
	consumePrewarmTasksFn func(ctx context.Context, handler func(task repository.PrewarmTask) error) error
	closeFn               func() error
}

func (m *mockMessageQueue) PublishPrewarmTask(ctx context.Context, task repository.PrewarmTask) error {
	if m.publishPrewarmTaskFn != nil {
		return m.publishPrewarmTaskFn(ctx, task)
	}
	return nil
}

func (m *mockMessageQueue) ConsumePrewarmTasks(ctx context.Context, handler func(task repository.PrewarmTask) error) error {
	if m.consumePrewarmTasksFn != nil {
		return m.consumePrewarmTasksFn(ctx, handler)
	}
	return nil
}

func (m *mockMessageQueue) Close() error {
	if m.closeFn != nil {
		return m.closeFn()
	}
	return nil
}

// mockRenderService provides a configurable mock for RenderService.
type mockRenderService struct {
	renderFn     func(ctx context.Context, req model.RenderRequest) (*artifact.Handle, error)
	jobHistoryFn func(ctx context.Context, key model.CacheKey, limit int) ([]*model.Job, error)
	renderCount  atomic.Int32
}

func (m *mockRenderService) Render(ctx context.Context, req model.RenderRequest) (*artifact.Handle, error) {
	m.renderCount.Add(1)
	if m.renderFn != nil {
		return m.renderFn(ctx, req)
	}
	return nil, nil
}

func (m *mockRenderService) JobHistory(ctx context.Context, key model.CacheKey, limit int) ([]*model.Job, error) {
	if m.jobHistoryFn != nil {
		return m.jobHistoryFn(ctx, key, limit)
	}
	return nil, nil
}
