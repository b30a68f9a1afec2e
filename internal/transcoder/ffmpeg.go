package transcoder

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hszk-dev/typereel/internal/domain/model"
)

const (
	concatListName = "frames.ffconcat"
	outputName     = "output.mp4"

	// maxStderr bounds how much ffmpeg output is kept for error messages.
	maxStderr = 2048
)

// FFmpegConfig holds configuration for the FFmpeg encoder.
type FFmpegConfig struct {
	// FFmpegPath is the path to the ffmpeg binary.
	// If empty, "ffmpeg" will be used (assumes it's in PATH).
	FFmpegPath string

	// FrameRate is the constant output frame rate.
	// Default: 30
	FrameRate int

	// Width and Height are the output resolution in pixels. Frames are scaled
	// to fit exactly. Both must be even for yuv420p.
	// Default: 512x512
	Width  int
	Height int

	// VideoCodec is the video codec to use.
	// Default: libx264
	VideoCodec string

	// VideoPreset controls the encoding speed/quality tradeoff.
	// Default: ultrafast
	VideoPreset string

	// PixelFormat is the output pixel format.
	// Default: yuv420p (plays everywhere)
	PixelFormat string
}

// DefaultFFmpegConfig returns an FFmpegConfig with production-ready defaults.
func DefaultFFmpegConfig() FFmpegConfig {
	return FFmpegConfig{
		FFmpegPath:  "ffmpeg",
		FrameRate:   30,
		Width:       512,
		Height:      512,
		VideoCodec:  "libx264",
		VideoPreset: "ultrafast",
		PixelFormat: "yuv420p",
	}
}

// FFmpegEncoder implements Encoder using the FFmpeg CLI and its concat demuxer.
type FFmpegEncoder struct {
	config FFmpegConfig
}

// Compile-time verification that FFmpegEncoder implements Encoder.
var _ Encoder = (*FFmpegEncoder)(nil)

// NewFFmpegEncoder creates a new FFmpeg-based encoder.
func NewFFmpegEncoder(cfg FFmpegConfig) *FFmpegEncoder {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	return &FFmpegEncoder{
		config: cfg,
	}
}

// Encode writes frames into workDir, describes their timing in a concat
// list, and runs FFmpeg once over the whole sequence.
func (e *FFmpegEncoder) Encode(ctx context.Context, frames []model.Frame, workDir string) ([]byte, error) {
	if err := e.validateWorkDir(workDir); err != nil {
		return nil, err
	}

	timeline, err := PlanTimeline(frames, e.config.FrameRate)
	if err != nil {
		return nil, fmt.Errorf("plan timeline: %w", err)
	}

	names, err := e.writeFrames(workDir, frames)
	if err != nil {
		return nil, fmt.Errorf("write frames: %w", err)
	}

	listPath := filepath.Join(workDir, concatListName)
	if err := e.writeConcatList(listPath, names, timeline); err != nil {
		return nil, fmt.Errorf("write concat list: %w", err)
	}

	outputPath := filepath.Join(workDir, outputName)
	args := e.buildFFmpegArgs(listPath, outputPath)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.config.FFmpegPath, args...)
	cmd.Dir = workDir
	cmd.Stdout = nil // Discard stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("encoding cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("ffmpeg execution failed: %w: %s", err, tail(stderr.String(), maxStderr))
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("read encoded video: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("ffmpeg produced an empty video")
	}

	return data, nil
}

// validateWorkDir checks if the work directory exists.
func (e *FFmpegEncoder) validateWorkDir(workDir string) error {
	info, err := os.Stat(workDir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("work directory does not exist: %s", workDir)
		}
		return fmt.Errorf("failed to access work directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("work path is not a directory: %s", workDir)
	}

	return nil
}

// writeFrames stores each frame as frame_NNN.png and returns the file names
// relative to workDir.
func (e *FFmpegEncoder) writeFrames(workDir string, frames []model.Frame) ([]string, error) {
	names := make([]string, len(frames))
	for i, f := range frames {
		if len(f.Image) == 0 {
			return nil, fmt.Errorf("frame %d is empty", i)
		}
		name := fmt.Sprintf("frame_%03d.png", i)
		if err := os.WriteFile(filepath.Join(workDir, name), f.Image, 0o644); err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		names[i] = name
	}
	return names, nil
}

// writeConcatList writes an ffconcat script. Durations are snapped to whole
// output frames. The concat demuxer ignores the duration of the final entry,
// so the last file is listed a second time.
func (e *FFmpegEncoder) writeConcatList(path string, names []string, timeline Timeline) error {
	var sb strings.Builder
	sb.WriteString("ffconcat version 1.0\n")

	last := ""
	for i, name := range names {
		n := timeline.Counts[i]
		if n == 0 {
			continue
		}
		fmt.Fprintf(&sb, "file '%s'\n", name)
		fmt.Fprintf(&sb, "duration %s\n", strconv.FormatFloat(timeline.Seconds(n), 'f', 6, 64))
		last = name
	}
	if last == "" {
		return fmt.Errorf("timeline has no output frames")
	}
	fmt.Fprintf(&sb, "file '%s'\n", last)

	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// buildFFmpegArgs constructs the FFmpeg command arguments.
func (e *FFmpegEncoder) buildFFmpegArgs(listPath, outputPath string) []string {
	filter := fmt.Sprintf("fps=%d,scale=%d:%d", e.config.FrameRate, e.config.Width, e.config.Height)

	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-vf", filter,
		"-c:v", e.config.VideoCodec,
		"-preset", e.config.VideoPreset,
		"-pix_fmt", e.config.PixelFormat,
		"-movflags", "+faststart",
		"-an",
		"-y", // Overwrite output files without asking
		outputPath,
	}
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
