package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/typereel/internal/api"
	"github.com/hszk-dev/typereel/internal/api/handler"
	"github.com/hszk-dev/typereel/internal/artifact"
	"github.com/hszk-dev/typereel/internal/capture"
	"github.com/hszk-dev/typereel/internal/config"
	"github.com/hszk-dev/typereel/internal/domain/model"
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

	// Artifacts do not survive restarts
	store, err := artifact.NewStore(cfg.Cache.TempDir)
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

	capturer := capture.New(captureConfig(cfg.Render))
	encoder := transcoder.NewFFmpegEncoder(ffmpegConfig(cfg.Encoder))

	deps := make(map[string]handler.Pinger)
	var opts []usecase.RenderOption

	if cfg.Features.SharedTier {
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

		storageClient, err := storage.NewClient(ctx, storageConfig(cfg.MinIO))
		if err != nil {
			return fmt.Errorf("failed to connect to MinIO: %w", err)
		}
		logger.Info("connected to MinIO", slog.String("bucket", storageClient.Bucket()))

		opts = append(opts, usecase.WithSharedTier(cache.NewRedisArtifactIndex(redisClient), storageClient))
		deps["redis"] = handler.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
		deps["minio"] = storageClient
	}

	if cfg.Features.JobLedger {
		pgClient, err := postgres.NewClient(ctx, postgres.DefaultClientConfig(cfg.Database.DSN()))
		if err != nil {
			return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		defer pgClient.Close()
		logger.Info("connected to PostgreSQL")

		opts = append(opts, usecase.WithJobLedger(pgClient.Jobs()))
		deps["postgres"] = pgClient
	}

	renderCfg := usecase.DefaultRenderServiceConfig()
	renderCfg.WaitTimeout = cfg.Render.JobWaitTimeout
	renderCfg.SharedTTL = cfg.Cache.TTL
	renderSvc := usecase.NewRenderService(images, videos, store, pool, capturer, encoder, renderCfg, opts...)

	handlers := api.Handlers{
		Render: handler.NewRenderHandler(renderSvc),
		Ready:  handler.NewReadyHandler(pool, deps),
	}
	if cfg.Features.JobLedger {
		handlers.Jobs = handler.NewJobsHandler(renderSvc)
	}

	if cfg.Features.Prewarm {
		queueClient, err := queue.NewClient(ctx, queue.DefaultClientConfig(cfg.RabbitMQ.URL()))
		if err != nil {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		defer queueClient.Close()
		logger.Info("connected to RabbitMQ")

		prewarmSvc := usecase.NewPrewarmService(queueClient, nil, usecase.DefaultPrewarmServiceConfig())
		handlers.Prewarm = handler.NewPrewarmHandler(prewarmSvc)
	}

	go sweep(ctx, cfg.Cache.SweepInterval, images, videos)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(logger, handlers),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			slog.Int("port", cfg.Server.Port),
			slog.Int("pool_size", cfg.Render.PoolSize),
			slog.Bool("shared_tier", cfg.Features.SharedTier),
			slog.Bool("job_ledger", cfg.Features.JobLedger),
			slog.Bool("prewarm", cfg.Features.Prewarm),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down server", slog.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// sweep drops expired cache entries until ctx is cancelled.
func sweep(ctx context.Context, interval time.Duration, caches ...*resultcache.Cache) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, c := range caches {
				if n := c.Sweep(); n > 0 {
					slog.Debug("swept expired cache entries",
						slog.String("kind", c.Kind().String()),
						slog.Int("count", n),
					)
				}
			}
		}
	}
}

func captureConfig(c config.RenderConfig) capture.Config {
	return capture.Config{
		DocumentURL:     c.DocumentURL,
		ToggleSelector:  c.ToggleSelector,
		InputSelector:   c.InputSelector,
		OverlaySelector: c.OverlaySelector,
		ClipWidth:       c.ClipWidth,
		ClipHeight:      c.ClipHeight,
		MaxWords:        c.MaxWords,
		FrameDuration:   c.FrameDuration,
		HoldDuration:    c.HoldDuration,
	}
}

func ffmpegConfig(c config.EncoderConfig) transcoder.FFmpegConfig {
	return transcoder.FFmpegConfig{
		FFmpegPath:  c.FFmpegPath,
		FrameRate:   c.FrameRate,
		Width:       c.Width,
		Height:      c.Height,
		VideoCodec:  c.VideoCodec,
		VideoPreset: c.VideoPreset,
		PixelFormat: c.PixelFormat,
	}
}

func storageConfig(c config.MinIOConfig) storage.ClientConfig {
	return storage.ClientConfig{
		Endpoint:     c.Endpoint,
		AccessKey:    c.AccessKey,
		SecretKey:    c.SecretKey,
		Bucket:       c.Bucket,
		UseSSL:       c.UseSSL,
		CreateBucket: c.CreateBucket,
	}
}
