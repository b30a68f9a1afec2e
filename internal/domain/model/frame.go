package model

import (
	"strings"
	"time"
)

// Frame is one captured screenshot and how long it stays on screen.
type Frame struct {
	Image    []byte
	Duration time.Duration
}

// SplitWords splits text on whitespace and keeps at most max words.
// Words past the limit are dropped without error.
func SplitWords(text string, max int) []string {
	words := strings.Fields(text)
	if max > 0 && len(words) > max {
		words = words[:max]
	}
	return words
}

// TotalDuration sums the display durations of frames.
func TotalDuration(frames []Frame) time.Duration {
	var total time.Duration
	for _, f := range frames {
		total += f.Duration
	}
	return total
}
