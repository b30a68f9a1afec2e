package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

// recordingSession records every call and returns the current input value as
// the screenshot bytes.
type recordingSession struct {
	calls         []string
	clickErr      map[string]error
	value         string
	screenshotErr error
	failAfter     int
	screenshots   int
}

func (s *recordingSession) Navigate(_ context.Context, url string) error {
	s.calls = append(s.calls, "navigate "+url)
	return nil
}

func (s *recordingSession) Click(_ context.Context, selector string) error {
	s.calls = append(s.calls, "click "+selector)
	return s.clickErr[selector]
}

func (s *recordingSession) Focus(_ context.Context, selector string) error {
	s.calls = append(s.calls, "focus "+selector)
	return nil
}

func (s *recordingSession) Fill(_ context.Context, selector, value string) error {
	s.calls = append(s.calls, fmt.Sprintf("fill %s %q", selector, value))
	s.value = value
	return nil
}

func (s *recordingSession) Screenshot(_ context.Context, selector string, width, height int) ([]byte, error) {
	s.calls = append(s.calls, fmt.Sprintf("screenshot %s %dx%d", selector, width, height))
	s.screenshots++
	if s.screenshotErr != nil && s.screenshots > s.failAfter {
		return nil, s.screenshotErr
	}
	return []byte(s.value), nil
}

func (s *recordingSession) Close() error { return nil }

func TestCaptureImage(t *testing.T) {
	s := &recordingSession{}
	c := New(DefaultConfig())

	img, err := c.CaptureImage(context.Background(), s, "hello world")
	if err != nil {
		t.Fatalf("CaptureImage failed: %v", err)
	}
	if string(img) != "hello world" {
		t.Errorf("image = %q, want %q", img, "hello world")
	}

	want := []string{
		"navigate file:///app/site/index.html",
		"click #toggleButtonWhite",
		"click #textOverlay",
		"focus #textInput",
		`fill #textInput "hello world"`,
		"screenshot #textOverlay 500x500",
	}
	if strings.Join(s.calls, "\n") != strings.Join(want, "\n") {
		t.Errorf("calls:\n%s\nwant:\n%s", strings.Join(s.calls, "\n"), strings.Join(want, "\n"))
	}
}

func TestCaptureFrames_Sequencing(t *testing.T) {
	s := &recordingSession{}
	c := New(DefaultConfig())

	frames, err := c.CaptureFrames(context.Background(), s, "a b c")
	if err != nil {
		t.Fatalf("CaptureFrames failed: %v", err)
	}

	want := []struct {
		image    string
		duration time.Duration
	}{
		{"a", 700 * time.Millisecond},
		{"a b", 700 * time.Millisecond},
		{"a b c", 700 * time.Millisecond},
		{"a b c", 2 * time.Second},
	}

	if len(frames) != len(want) {
		t.Fatalf("got %d frames, want %d", len(frames), len(want))
	}
	for i, w := range want {
		if string(frames[i].Image) != w.image {
			t.Errorf("frame %d image = %q, want %q", i, frames[i].Image, w.image)
		}
		if frames[i].Duration != w.duration {
			t.Errorf("frame %d duration = %v, want %v", i, frames[i].Duration, w.duration)
		}
	}

	if s.screenshots != 3 {
		t.Errorf("screenshots = %d, want 3 (hold frame reuses the last one)", s.screenshots)
	}
	if !bytes.Equal(frames[2].Image, frames[3].Image) {
		t.Error("hold frame must repeat the final frame")
	}
}

func TestCaptureFrames_PreparesOncePerCapture(t *testing.T) {
	s := &recordingSession{}
	c := New(DefaultConfig())

	if _, err := c.CaptureFrames(context.Background(), s, "one two"); err != nil {
		t.Fatalf("CaptureFrames failed: %v", err)
	}
	if _, err := c.CaptureFrames(context.Background(), s, "three"); err != nil {
		t.Fatalf("CaptureFrames failed: %v", err)
	}

	navigations := 0
	for _, call := range s.calls {
		if strings.HasPrefix(call, "navigate ") {
			navigations++
		}
	}
	if navigations != 2 {
		t.Errorf("navigations = %d, want 2", navigations)
	}
}

func TestCaptureFrames_WordHandling(t *testing.T) {
	var fifty []string
	for i := 1; i <= 50; i++ {
		fifty = append(fifty, fmt.Sprintf("w%d", i))
	}

	tests := []struct {
		name       string
		text       string
		wantFrames int
		wantLast   string
	}{
		{"hello world", "hello world", 3, "hello world"},
		{"single word", "hello", 2, "hello"},
		{"collapses whitespace", "  a \t b\n\nc  ", 4, "a b c"},
		{"truncates to forty words", strings.Join(fifty, " "), 41, strings.Join(fifty[:40], " ")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &recordingSession{}
			frames, err := New(DefaultConfig()).CaptureFrames(context.Background(), s, tt.text)
			if err != nil {
				t.Fatalf("CaptureFrames failed: %v", err)
			}
			if len(frames) != tt.wantFrames {
				t.Errorf("got %d frames, want %d", len(frames), tt.wantFrames)
			}
			if got := string(frames[len(frames)-1].Image); got != tt.wantLast {
				t.Errorf("last frame = %q, want %q", got, tt.wantLast)
			}
		})
	}
}

func TestCaptureFrames_NoWords(t *testing.T) {
	s := &recordingSession{}
	_, err := New(DefaultConfig()).CaptureFrames(context.Background(), s, " \t\n")
	if !errors.Is(err, ErrNoWords) {
		t.Errorf("err = %v, want ErrNoWords", err)
	}
	if len(s.calls) != 0 {
		t.Errorf("session was used: %v", s.calls)
	}
}

func TestCaptureFrames_ScreenshotFailure(t *testing.T) {
	errBoom := errors.New("target closed")
	s := &recordingSession{screenshotErr: errBoom, failAfter: 1}

	frames, err := New(DefaultConfig()).CaptureFrames(context.Background(), s, "a b c")
	if !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want %v", err, errBoom)
	}
	if frames != nil {
		t.Errorf("frames = %v, want nil on failure", frames)
	}
	if !strings.Contains(err.Error(), "frame 2 of 3") {
		t.Errorf("error should name the failing frame: %v", err)
	}
}

func TestCaptureImage_OverlayClickFailure(t *testing.T) {
	errBoom := errors.New("node not visible")
	s := &recordingSession{clickErr: map[string]error{"#textOverlay": errBoom}}

	_, err := New(DefaultConfig()).CaptureImage(context.Background(), s, "hello")
	if !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want %v", err, errBoom)
	}
	if !strings.Contains(err.Error(), "activate overlay") {
		t.Errorf("error should name the step: %v", err)
	}
	for _, call := range s.calls {
		if strings.HasPrefix(call, "fill ") || strings.HasPrefix(call, "screenshot ") {
			t.Errorf("capture continued after the overlay click failed: %v", s.calls)
		}
	}
}
