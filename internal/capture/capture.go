// Package capture drives a rendering session to produce still images and
// word-by-word reveal frames.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hszk-dev/typereel/internal/domain/model"
	"github.com/hszk-dev/typereel/internal/session"
)

// ErrNoWords is returned when text contains nothing but whitespace.
var ErrNoWords = errors.New("text has no words")

// Config describes the page being captured and the reveal timing.
type Config struct {
	DocumentURL     string
	ToggleSelector  string
	InputSelector   string
	OverlaySelector string

	ClipWidth  int
	ClipHeight int

	// MaxWords caps the number of reveal frames. Extra words are dropped.
	MaxWords int

	// FrameDuration is how long each reveal frame is shown.
	FrameDuration time.Duration

	// HoldDuration is how long the fully revealed text stays on screen at the end.
	HoldDuration time.Duration
}

// DefaultConfig returns the settings the bundled document is built for.
func DefaultConfig() Config {
	return Config{
		DocumentURL:     "file:///app/site/index.html",
		ToggleSelector:  "#toggleButtonWhite",
		InputSelector:   "#textInput",
		OverlaySelector: "#textOverlay",
		ClipWidth:       500,
		ClipHeight:      500,
		MaxWords:        40,
		FrameDuration:   700 * time.Millisecond,
		HoldDuration:    2 * time.Second,
	}
}

// Capturer produces image bytes from a session. It has no state of its own
// and is safe to share; sessions are not.
type Capturer struct {
	cfg Config
}

// New creates a Capturer.
func New(cfg Config) *Capturer {
	return &Capturer{cfg: cfg}
}

// CaptureImage renders the full text and returns one PNG.
func (c *Capturer) CaptureImage(ctx context.Context, s session.Session, text string) ([]byte, error) {
	if err := c.prepare(ctx, s); err != nil {
		return nil, err
	}
	return c.shoot(ctx, s, text)
}

// CaptureFrames renders text one more word at a time. Frame i shows the first
// i words joined by single spaces and lasts FrameDuration. A copy of the last
// frame follows, lasting HoldDuration.
func (c *Capturer) CaptureFrames(ctx context.Context, s session.Session, text string) ([]model.Frame, error) {
	words := model.SplitWords(text, c.cfg.MaxWords)
	if len(words) == 0 {
		return nil, ErrNoWords
	}

	if err := c.prepare(ctx, s); err != nil {
		return nil, err
	}

	frames := make([]model.Frame, 0, len(words)+1)
	for i := 1; i <= len(words); i++ {
		img, err := c.shoot(ctx, s, strings.Join(words[:i], " "))
		if err != nil {
			return nil, fmt.Errorf("frame %d of %d: %w", i, len(words), err)
		}
		frames = append(frames, model.Frame{Image: img, Duration: c.cfg.FrameDuration})
	}

	last := frames[len(frames)-1]
	frames = append(frames, model.Frame{Image: last.Image, Duration: c.cfg.HoldDuration})

	return frames, nil
}

// prepare puts the page into the state every capture starts from. Sessions
// are reused across unrelated requests, so nothing left by a previous capture
// can be trusted.
func (c *Capturer) prepare(ctx context.Context, s session.Session) error {
	if err := s.Navigate(ctx, c.cfg.DocumentURL); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	if err := s.Click(ctx, c.cfg.ToggleSelector); err != nil {
		return fmt.Errorf("reset display toggle: %w", err)
	}
	// The overlay must be activated before the input drives it.
	if err := s.Click(ctx, c.cfg.OverlaySelector); err != nil {
		return fmt.Errorf("activate overlay: %w", err)
	}
	if err := s.Focus(ctx, c.cfg.InputSelector); err != nil {
		return fmt.Errorf("focus input: %w", err)
	}
	return nil
}

func (c *Capturer) shoot(ctx context.Context, s session.Session, text string) ([]byte, error) {
	if err := s.Fill(ctx, c.cfg.InputSelector, text); err != nil {
		return nil, fmt.Errorf("fill input: %w", err)
	}
	img, err := s.Screenshot(ctx, c.cfg.OverlaySelector, c.cfg.ClipWidth, c.cfg.ClipHeight)
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return img, nil
}
