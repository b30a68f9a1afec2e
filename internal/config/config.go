package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server   ServerConfig
	Render   RenderConfig
	Encoder  EncoderConfig
	Cache    CacheConfig
	Features FeatureConfig
	Worker   WorkerConfig
	Redis    RedisConfig
	Database DatabaseConfig
	MinIO    MinIOConfig
	RabbitMQ RabbitMQConfig
}

type ServerConfig struct {
	Port            int           `envconfig:"API_PORT" default:"3000"`
	ReadTimeout     time.Duration `envconfig:"API_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"5m"`
	ShutdownTimeout time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"30s"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
}

// SlogLevel converts LogLevel to a slog.Level, defaulting to info.
func (c ServerConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type RenderConfig struct {
	DocumentURL     string        `envconfig:"RENDER_DOCUMENT_URL" default:"file:///app/site/index.html"`
	ChromePath      string        `envconfig:"RENDER_CHROME_PATH"`
	Headless        bool          `envconfig:"RENDER_HEADLESS" default:"true"`
	ViewportWidth   int           `envconfig:"RENDER_VIEWPORT_WIDTH" default:"1536"`
	ViewportHeight  int           `envconfig:"RENDER_VIEWPORT_HEIGHT" default:"695"`
	ToggleSelector  string        `envconfig:"RENDER_TOGGLE_SELECTOR" default:"#toggleButtonWhite"`
	OverlaySelector string        `envconfig:"RENDER_OVERLAY_SELECTOR" default:"#textOverlay"`
	InputSelector   string        `envconfig:"RENDER_INPUT_SELECTOR" default:"#textInput"`
	ClipWidth       int           `envconfig:"RENDER_CLIP_WIDTH" default:"500"`
	ClipHeight      int           `envconfig:"RENDER_CLIP_HEIGHT" default:"500"`
	MaxWords        int           `envconfig:"RENDER_MAX_WORDS" default:"40"`
	FrameDuration   time.Duration `envconfig:"RENDER_FRAME_DURATION" default:"700ms"`
	HoldDuration    time.Duration `envconfig:"RENDER_HOLD_DURATION" default:"2s"`
	ActionTimeout   time.Duration `envconfig:"RENDER_ACTION_TIMEOUT" default:"30s"`
	PoolSize        int           `envconfig:"RENDER_POOL_SIZE" default:"1"`
	JobWaitTimeout  time.Duration `envconfig:"RENDER_JOB_WAIT_TIMEOUT" default:"2m"`
}

type EncoderConfig struct {
	FFmpegPath  string `envconfig:"ENCODER_FFMPEG_PATH" default:"ffmpeg"`
	FrameRate   int    `envconfig:"ENCODER_FRAME_RATE" default:"30"`
	Width       int    `envconfig:"ENCODER_WIDTH" default:"512"`
	Height      int    `envconfig:"ENCODER_HEIGHT" default:"512"`
	VideoCodec  string `envconfig:"ENCODER_VIDEO_CODEC" default:"libx264"`
	VideoPreset string `envconfig:"ENCODER_VIDEO_PRESET" default:"ultrafast"`
	PixelFormat string `envconfig:"ENCODER_PIXEL_FORMAT" default:"yuv420p"`
}

type CacheConfig struct {
	TempDir       string        `envconfig:"CACHE_TEMP_DIR" default:"/tmp/typereel"`
	ImageCapacity int           `envconfig:"CACHE_IMAGE_CAPACITY" default:"100"`
	VideoCapacity int           `envconfig:"CACHE_VIDEO_CAPACITY" default:"50"`
	TTL           time.Duration `envconfig:"CACHE_TTL" default:"1h"`
	SweepInterval time.Duration `envconfig:"CACHE_SWEEP_INTERVAL" default:"5m"`
}

type FeatureConfig struct {
	SharedTier bool `envconfig:"SHARED_TIER_ENABLED" default:"false"`
	JobLedger  bool `envconfig:"JOB_LEDGER_ENABLED" default:"false"`
	Prewarm    bool `envconfig:"PREWARM_ENABLED" default:"false"`
}

type WorkerConfig struct {
	TempDir         string        `envconfig:"WORKER_TEMP_DIR" default:"/tmp/typereel-worker"`
	MaxRetries      int           `envconfig:"WORKER_MAX_RETRIES" default:"3"`
	ShutdownTimeout time.Duration `envconfig:"WORKER_SHUTDOWN_TIMEOUT" default:"30s"`
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type DatabaseConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"typereel"`
	Password string `envconfig:"POSTGRES_PASSWORD" default:"typereel"`
	DBName   string `envconfig:"POSTGRES_DB" default:"typereel"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

type MinIOConfig struct {
	Endpoint  string `envconfig:"MINIO_ENDPOINT" default:"localhost:9000"`
	AccessKey string `envconfig:"MINIO_ACCESS_KEY" default:"minioadmin"`
	SecretKey string `envconfig:"MINIO_SECRET_KEY" default:"minioadmin"`
	Bucket    string `envconfig:"MINIO_BUCKET" default:"typereel"`
	UseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"false"`

	CreateBucket bool `envconfig:"MINIO_CREATE_BUCKET" default:"true"`
}

type RabbitMQConfig struct {
	Host     string `envconfig:"RABBITMQ_HOST" default:"localhost"`
	Port     int    `envconfig:"RABBITMQ_PORT" default:"5672"`
	User     string `envconfig:"RABBITMQ_USER" default:"typereel"`
	Password string `envconfig:"RABBITMQ_PASSWORD" default:"typereel"`
	VHost    string `envconfig:"RABBITMQ_VHOST" default:"/"`
}

func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%d%s",
		c.User, c.Password, c.Host, c.Port, c.VHost,
	)
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate rejects values the render pipeline cannot work with.
func (c *Config) Validate() error {
	var errs []error

	if c.Render.PoolSize < 1 {
		errs = append(errs, fmt.Errorf("RENDER_POOL_SIZE must be at least 1, got %d", c.Render.PoolSize))
	}
	if c.Render.MaxWords < 1 {
		errs = append(errs, fmt.Errorf("RENDER_MAX_WORDS must be at least 1, got %d", c.Render.MaxWords))
	}
	if c.Render.FrameDuration <= 0 || c.Render.HoldDuration <= 0 {
		errs = append(errs, errors.New("RENDER_FRAME_DURATION and RENDER_HOLD_DURATION must be positive"))
	}
	if c.Render.ClipWidth <= 0 || c.Render.ClipHeight <= 0 {
		errs = append(errs, errors.New("RENDER_CLIP_WIDTH and RENDER_CLIP_HEIGHT must be positive"))
	}
	if c.Render.JobWaitTimeout < 0 {
		errs = append(errs, errors.New("RENDER_JOB_WAIT_TIMEOUT must not be negative"))
	}
	if c.Encoder.FrameRate <= 0 {
		errs = append(errs, fmt.Errorf("ENCODER_FRAME_RATE must be positive, got %d", c.Encoder.FrameRate))
	}
	if c.Encoder.Width <= 0 || c.Encoder.Height <= 0 || c.Encoder.Width%2 != 0 || c.Encoder.Height%2 != 0 {
		errs = append(errs, errors.New("ENCODER_WIDTH and ENCODER_HEIGHT must be positive and even"))
	}
	if c.Cache.ImageCapacity < 1 || c.Cache.VideoCapacity < 1 {
		errs = append(errs, errors.New("cache capacities must be at least 1"))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("CACHE_TTL must be positive"))
	}
	if c.Cache.TempDir == "" {
		errs = append(errs, errors.New("CACHE_TEMP_DIR is required"))
	}
	if c.Worker.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("WORKER_MAX_RETRIES must be at least 1, got %d", c.Worker.MaxRetries))
	}

	return errors.Join(errs...)
}
