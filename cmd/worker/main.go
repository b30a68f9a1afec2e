package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/typereel/internal/artifact"
	"github.com/hszk-dev/typereel/internal/capture"
	"github.com/hszk-dev/typereel/internal/config"
	"github.com/hszk-dev/typereel/internal/domain/model"
	"github.com/hszk-dev/typereel/internal/domain/repository"
	"github.com/hszk-dev/typereel/internal/infrastructure/cache"
	"github.com/hszk-dev/typereel/internal/infrastructure/postgres"
	"github.com/hszk-dev/typereel/internal/infrastructure/queue"
	"github.com/hszk-dev/typereel/internal/infrastructure/storage"
	"github.com/hszk-dev/typereel/internal/resultcache"
	"github.com/hszk-dev/typereel/internal/session"
	"github.com/hszk-dev/typereel/internal/session/chrome"
	"github.com/hszk-dev/typereel/internal/transcoder"
	"github.com/hszk-dev/typereel/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Server.SlogLevel(),
	}))
	slog.SetDefault(logger)

	// Prewarmed artifacts are only useful to the API through the shared tier,
	// so the worker always connects to it.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("connected to Redis")

	storageClient, err := storage.NewClient(ctx, storage.ClientConfig{
		Endpoint:     cfg.MinIO.Endpoint,
		AccessKey:    cfg.MinIO.AccessKey,
		SecretKey:    cfg.MinIO.SecretKey,
		Bucket:       cfg.MinIO.Bucket,
		UseSSL:       cfg.MinIO.UseSSL,
		CreateBucket: cfg.MinIO.CreateBucket,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to MinIO: %w", err)
	}
	logger.Info("connected to MinIO")

	queueClient, err := queue.NewClient(ctx, queue.DefaultClientConfig(cfg.RabbitMQ.URL()))
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer queueClient.Close()
	logger.Info("connected to RabbitMQ")

	opts := []usecase.RenderOption{
		usecase.WithSharedTier(cache.NewRedisArtifactIndex(redisClient), storageClient),
	}
	if cfg.Features.JobLedger {
		pgClient, err := postgres.NewClient(ctx, postgres.DefaultClientConfig(cfg.Database.DSN()))
		if err != nil {
			return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		defer pgClient.Close()
		logger.Info("connected to PostgreSQL")

		opts = append(opts, usecase.WithJobLedger(pgClient.Jobs()))
	}

	// The worker keeps a local store and caches of its own so repeated tasks
	// for the same text are served without touching the shared tier.
	store, err := artifact.NewStore(cfg.Worker.TempDir)
	if err != nil {
		return fmt.Errorf("failed to create artifact store: %w", err)
	}
	if err := store.Purge(); err != nil {
		logger.Warn("failed to purge artifact store", slog.String("error", err.Error()))
	}

	images, err := resultcache.New(resultcache.Config{
		Kind:     model.KindImage,
		Capacity: cfg.Cache.ImageCapacity,
		TTL:      cfg.Cache.TTL,
	}, resultcache.WithRemoveFunc(store.Retire))
	if err != nil {
		return fmt.Errorf("failed to create image cache: %w", err)
	}
	videos, err := resultcache.New(resultcache.Config{
		Kind:     model.KindVideo,
		Capacity: cfg.Cache.VideoCapacity,
		TTL:      cfg.Cache.TTL,
	}, resultcache.WithRemoveFunc(store.Retire))
	if err != nil {
		return fmt.Errorf("failed to create video cache: %w", err)
	}

	engine := chrome.NewEngine(chrome.Config{
		ExecPath:       cfg.Render.ChromePath,
		Headless:       cfg.Render.Headless,
		ViewportWidth:  cfg.Render.ViewportWidth,
		ViewportHeight: cfg.Render.ViewportHeight,
		ActionTimeout:  cfg.Render.ActionTimeout,
	})
	defer engine.Close()

	pool, err := session.NewPool(engine, cfg.Render.PoolSize)
	if err != nil {
		return fmt.Errorf("failed to create session pool: %w", err)
	}
	defer func() { _ = pool.Close() }()

	capturer := capture.New(capture.Config{
		DocumentURL:     cfg.Render.DocumentURL,
		ToggleSelector:  cfg.Render.ToggleSelector,
		InputSelector:   cfg.Render.InputSelector,
		OverlaySelector: cfg.Render.OverlaySelector,
		ClipWidth:       cfg.Render.ClipWidth,
		ClipHeight:      cfg.Render.ClipHeight,
		MaxWords:        cfg.Render.MaxWords,
		FrameDuration:   cfg.Render.FrameDuration,
		HoldDuration:    cfg.Render.HoldDuration,
	})
	encoder := transcoder.NewFFmpegEncoder(transcoder.FFmpegConfig{
		FFmpegPath:  cfg.Encoder.FFmpegPath,
		FrameRate:   cfg.Encoder.FrameRate,
		Width:       cfg.Encoder.Width,
		Height:      cfg.Encoder.Height,
		VideoCodec:  cfg.Encoder.VideoCodec,
		VideoPreset: cfg.Encoder.VideoPreset,
		PixelFormat: cfg.Encoder.PixelFormat,
	})

	renderCfg := usecase.DefaultRenderServiceConfig()
	// A worker has no impatient client; let every task run to completion.
	renderCfg.WaitTimeout = 0
	renderCfg.SharedTTL = cfg.Cache.TTL
	renderSvc := usecase.NewRenderService(images, videos, store, pool, capturer, encoder, renderCfg, opts...)

	prewarmSvc := usecase.NewPrewarmService(nil, renderSvc, usecase.PrewarmServiceConfig{
		MaxRetries: cfg.Worker.MaxRetries,
	})

	// Setup signal handling for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// WaitGroup to track in-flight tasks
	var wg sync.WaitGroup

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting worker, consuming prewarm tasks")
		err := queueClient.ConsumePrewarmTasks(ctx, func(task repository.PrewarmTask) error {
			wg.Add(1)
			defer wg.Done()

			logger.Info("processing task",
				slog.Bool("video", task.Video),
				slog.Int("retry_count", task.RetryCount),
			)

			// In-flight renders finish even when shutdown starts.
			if err := prewarmSvc.ProcessTask(context.WithoutCancel(ctx), task); err != nil {
				logger.Error("task processing failed",
					slog.Bool("video", task.Video),
					slog.Int("retry_count", task.RetryCount),
					slog.String("error", err.Error()),
				)
				return err
			}

			logger.Info("task completed successfully", slog.Bool("video", task.Video))
			return nil
		})
		if err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("consumer error: %w", err)
		}
	}()

	// Wait for shutdown signal or error
	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down worker", slog.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	// Cancel the main context to stop consuming new messages
	cancel()

	// Wait for in-flight tasks to complete (or timeout)
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("all in-flight tasks completed")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout exceeded, some tasks may not have completed")
	}

	logger.Info("worker stopped")
	return nil
}
