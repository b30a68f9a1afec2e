package handler

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/hszk-dev/typereel/internal/artifact"
	"github.com/hszk-dev/typereel/internal/domain/model"
	"github.com/hszk-dev/typereel/internal/domain/repository"
	"github.com/hszk-dev/typereel/internal/session"
)

// mockRenderService implements usecase.RenderService for testing.
type mockRenderService struct {
	renderFn     func(ctx context.Context, req model.RenderRequest) (*artifact.Handle, error)
	jobHistoryFn func(ctx context.Context, key model.CacheKey, limit int) ([]*model.Job, error)
	renderCalls  atomic.Int32
}

func (m *mockRenderService) Render(ctx context.Context, req model.RenderRequest) (*artifact.Handle, error) {
	m.renderCalls.Add(1)
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

// mockPrewarmService implements usecase.PrewarmService for testing.
type mockPrewarmService struct {
	enqueueFn     func(ctx context.Context, text string, video bool) (model.RenderRequest, error)
	processTaskFn func(ctx context.Context, task repository.PrewarmTask) error
}

func (m *mockPrewarmService) Enqueue(ctx context.Context, text string, video bool) (model.RenderRequest, error) {
	if m.enqueueFn != nil {
		return m.enqueueFn(ctx, text, video)
	}
	return model.NewRenderRequest(text, video)
}

func (m *mockPrewarmService) ProcessTask(ctx context.Context, task repository.PrewarmTask) error {
	if m.processTaskFn != nil {
		return m.processTaskFn(ctx, task)
	}
	return nil
}

type mockPoolStater struct {
	stats session.Stats
}

func (m mockPoolStater) Stats() session.Stats {
	return m.stats
}

// storedArtifact writes data for req into a fresh store and returns a function
// that opens it, the way a real RenderService hands out artifacts.
func storedArtifact(t *testing.T, req model.RenderRequest, data []byte) (*artifact.Store, func() (*artifact.Handle, error)) {
	t.Helper()

	store, err := artifact.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	location, err := store.Write(req.Key, req.Kind, data)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return store, func() (*artifact.Handle, error) {
		return store.Open(location)
	}
}
