package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hszk-dev/typereel/internal/domain/model"
	"github.com/hszk-dev/typereel/internal/domain/repository"
)

const (
	// DefaultMaxRetries is the default maximum number of attempts for one prewarm task.
	DefaultMaxRetries = 3
)

// ErrPrewarmDisabled is returned by Enqueue when no queue is configured.
var ErrPrewarmDisabled = errors.New("prewarm is disabled")

// PrewarmServiceConfig holds configuration for PrewarmService.
type PrewarmServiceConfig struct {
	// MaxRetries is the number of failed attempts after which a task is dropped.
	MaxRetries int
}

// DefaultPrewarmServiceConfig returns the default configuration.
func DefaultPrewarmServiceConfig() PrewarmServiceConfig {
	return PrewarmServiceConfig{
		MaxRetries: DefaultMaxRetries,
	}
}

// PrewarmService renders artifacts ahead of the first request for them.
type PrewarmService interface {
	// Enqueue validates the request and publishes a prewarm task.
	// Used by the API server.
	Enqueue(ctx context.Context, text string, video bool) (model.RenderRequest, error)

	// ProcessTask renders the artifact a task asks for.
	// Returns nil on success or permanent failure (invalid task, max retries exceeded).
	// Returns error for transient failures that should trigger a retry.
	// Used by the worker.
	ProcessTask(ctx context.Context, task repository.PrewarmTask) error
}

type prewarmService struct {
	queue      repository.MessageQueue
	renderer   RenderService
	maxRetries int
}

// NewPrewarmService creates a new PrewarmService instance. renderer may be nil
// on the API side, where tasks are only published; queue may be nil on the
// worker side.
func NewPrewarmService(
	queue repository.MessageQueue,
	renderer RenderService,
	cfg PrewarmServiceConfig,
) PrewarmService {
	return &prewarmService{
		queue:      queue,
		renderer:   renderer,
		maxRetries: cfg.MaxRetries,
	}
}

func (s *prewarmService) Enqueue(ctx context.Context, text string, video bool) (model.RenderRequest, error) {
	req, err := model.NewRenderRequest(text, video)
	if err != nil {
		return model.RenderRequest{}, err
	}
	if s.queue == nil {
		return model.RenderRequest{}, ErrPrewarmDisabled
	}

	task := repository.PrewarmTask{
		Text:        req.Text,
		Video:       req.Kind == model.KindVideo,
		RequestedAt: time.Now().UTC(),
	}
	if err := s.queue.PublishPrewarmTask(ctx, task); err != nil {
		return model.RenderRequest{}, fmt.Errorf("publish prewarm task: %w", err)
	}

	return req, nil
}

func (s *prewarmService) ProcessTask(ctx context.Context, task repository.PrewarmTask) error {
	// Check if max retries exceeded - drop the task and return nil (ack the message)
	if task.RetryCount >= s.maxRetries {
		slog.Error("dropping prewarm task after max retries",
			"retry_count", task.RetryCount,
			"video", task.Video,
		)
		return nil
	}

	req, err := model.NewRenderRequest(task.Text, task.Video)
	if err != nil {
		// Retrying cannot fix the input
		slog.Warn("dropping invalid prewarm task", "error", err)
		return nil
	}

	if s.renderer == nil {
		return errors.New("no renderer configured")
	}

	h, err := s.renderer.Render(ctx, req)
	if err != nil {
		return fmt.Errorf("render %s %s: %w", req.Kind, req.Key, err)
	}
	_ = h.Close()

	return nil
}
