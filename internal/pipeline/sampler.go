// Package pipeline wires the Sampler, Detector, Segmenter, and OCR
// Dispatcher stages together through bounded channels, each stage a
// long-running goroutine that awaits its input channel and sends to its
// output channel.
package pipeline

import (
	"time"

	"github.com/care/hardsub/internal/luma"
)

// Sample is one emitted (plane, sample index) pair.
type Sample struct {
	Plane luma.Plane
	Index int
}

// Sampler reduces a dense frame stream to a fixed sampling cadence while
// retaining the last historyWindow emitted samples, readable through
// History. The Segmenter does not read this window; it keeps its own record
// of recent samples for backtracking.
type Sampler struct {
	period     time.Duration
	nextTarget time.Duration
	index      int

	history []Sample // ring buffer, most recent last, capped at historyWindow
}

// historyWindow is the number of emitted samples kept for backtracking.
const historyWindow = 4

// NewSampler constructs a Sampler for the given samples-per-second cadence.
func NewSampler(samplesPerSecond float64) *Sampler {
	return &Sampler{period: time.Duration(float64(time.Second) / samplesPerSecond)}
}

// Push offers one decoded plane to the sampler. It returns the emitted
// Sample and true if this plane's pts crossed the next cadence target, or
// the zero value and false if the plane was skipped (either too early, or
// arrived with a pts that regressed — reported through the anomaly return
// so the caller can count it without failing the run).
func (s *Sampler) Push(plane luma.Plane) (Sample, bool, anomaly) {
	if len(s.history) > 0 && plane.PTS < s.history[len(s.history)-1].Plane.PTS {
		return Sample{}, false, anomalyPTSRegression
	}
	if plane.PTS < s.nextTarget {
		return Sample{}, false, anomalyNone
	}

	sample := Sample{Plane: plane, Index: s.index}
	s.index++
	s.nextTarget += s.period
	if s.nextTarget <= plane.PTS {
		// Cadence fell behind (e.g. a long gap); resync to this frame so we
		// don't immediately re-fire on the very next plane.
		s.nextTarget = plane.PTS + s.period
	}

	s.history = append(s.history, sample)
	if len(s.history) > historyWindow {
		s.history = s.history[1:]
	}
	return sample, true, anomalyNone
}

// History returns the currently retained samples, oldest first.
func (s *Sampler) History() []Sample {
	return s.history
}

// anomaly classifies a non-fatal Sampler condition.
type anomaly int

const (
	anomalyNone anomaly = iota
	anomalyPTSRegression
)
