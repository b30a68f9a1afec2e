package transcoder

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hszk-dev/typereel/internal/domain/model"
)

// Encoder turns an ordered frame sequence into one encoded video.
type Encoder interface {
	// Encode assembles frames, in order, into a constant frame rate video and
	// returns the encoded bytes.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - frames: Images with display durations, in presentation order
	//   - workDir: Scratch directory owned by the caller; it must exist
	//
	// Intermediate files are written under workDir. The caller removes it.
	// Any failure fails the whole encode; no partial video is returned.
	Encode(ctx context.Context, frames []model.Frame, workDir string) ([]byte, error)
}

// Timeline maps each source frame to a run of output frames.
type Timeline struct {
	FPS    int
	Counts []int
}

// PlanTimeline computes how many output frames each source frame occupies at
// fps. Boundaries are rounded on the cumulative timeline so rounding errors do
// not accumulate: the total is always round(sum(durations) * fps).
func PlanTimeline(frames []model.Frame, fps int) (Timeline, error) {
	if fps <= 0 {
		return Timeline{}, fmt.Errorf("fps must be positive, got %d", fps)
	}
	if len(frames) == 0 {
		return Timeline{}, fmt.Errorf("no frames to encode")
	}

	counts := make([]int, len(frames))
	var elapsed time.Duration
	prev := 0
	for i, f := range frames {
		if f.Duration <= 0 {
			return Timeline{}, fmt.Errorf("frame %d has non-positive duration %v", i, f.Duration)
		}
		elapsed += f.Duration
		end := int(math.Round(elapsed.Seconds() * float64(fps)))
		counts[i] = end - prev
		prev = end
	}

	return Timeline{FPS: fps, Counts: counts}, nil
}

// Total returns the number of output frames.
func (t Timeline) Total() int {
	total := 0
	for _, c := range t.Counts {
		total += c
	}
	return total
}

// Seconds returns the exact display time of n output frames.
func (t Timeline) Seconds(n int) float64 {
	return float64(n) / float64(t.FPS)
}
