package segmenter

import (
	"testing"
	"time"

	"github.com/care/hardsub/internal/comparator"
	"github.com/care/hardsub/internal/detector"
	"github.com/care/hardsub/internal/luma"
)

// The tests use the real BitsetCover backend against synthetic planes
// instead of a stub comparator, so the state machine is exercised with
// realistic match/non-match behaviour.
func extractAll(t *testing.T, cmp comparator.Comparator, plane luma.Plane, regions []detector.Region) []comparator.Feature {
	t.Helper()
	features := make([]comparator.Feature, len(regions))
	for i, r := range regions {
		f, err := cmp.Extract(plane, r.Rect)
		if err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		features[i] = f
	}
	return features
}

func bandPlane(w, h int, rect luma.PixelRect) luma.Plane {
	data := make([]byte, w*h)
	for y := rect.Y; y < rect.Y+rect.Height && y < h; y++ {
		for x := rect.X; x < rect.X+rect.Width && x < w; x++ {
			data[y*w+x] = 230
		}
	}
	return luma.Plane{Width: w, Height: h, Stride: w, Data: data}
}

const samplePeriod = 142857 * time.Microsecond // ~1/7s

func TestSegmenterOpensAfterKMatches(t *testing.T) {
	cmp := comparator.NewBitsetCover(230, 12)
	seg := New(cmp, 2, 2, 4, samplePeriod, luma.FullFrame)

	rect := luma.PixelRect{X: 40, Y: 300, Width: 200, Height: 20}
	region := detector.Region{Rect: rect, Confidence: 0.9}
	plane := bandPlane(640, 360, rect)

	for i := 0; i < 2; i++ {
		pts := time.Duration(i) * samplePeriod
		features := extractAll(t, cmp, plane, []detector.Region{region})
		closed := seg.Step(pts, plane, []detector.Region{region}, features, 640, 360)
		if len(closed) != 0 {
			t.Fatalf("sample %d: unexpected close", i)
		}
	}
	if seg.slots[0].st != stateOpen {
		t.Fatalf("slot should be Open after K matches, got state %v", seg.slots[0].st)
	}
}

func TestSegmenterClosesAfterMMisses(t *testing.T) {
	cmp := comparator.NewBitsetCover(230, 12)
	seg := New(cmp, 2, 2, 4, samplePeriod, luma.FullFrame)

	rect := luma.PixelRect{X: 40, Y: 300, Width: 200, Height: 20}
	region := detector.Region{Rect: rect, Confidence: 0.9}
	plane := bandPlane(640, 360, rect)

	t0 := time.Duration(0)
	for i := 0; i < 4; i++ {
		pts := t0 + time.Duration(i)*samplePeriod
		features := extractAll(t, cmp, plane, []detector.Region{region})
		seg.Step(pts, plane, []detector.Region{region}, features, 640, 360)
	}

	var closed []Segment
	for i := 4; i < 8; i++ {
		pts := t0 + time.Duration(i)*samplePeriod
		c := seg.Step(pts, luma.Plane{Width: 640, Height: 360, Stride: 640, Data: make([]byte, 640*360)}, nil, nil, 640, 360)
		closed = append(closed, c...)
	}
	if len(closed) != 1 {
		t.Fatalf("expected exactly one closed segment, got %d", len(closed))
	}
	if closed[0].StartPTS != 0 {
		t.Fatalf("StartPTS = %v, want 0", closed[0].StartPTS)
	}
}

func TestSegmenterFlickerSuppressed(t *testing.T) {
	cmp := comparator.NewBitsetCover(230, 12)
	seg := New(cmp, 2, 2, 4, samplePeriod, luma.FullFrame)

	rect := luma.PixelRect{X: 40, Y: 300, Width: 10, Height: 5}
	region := detector.Region{Rect: rect, Confidence: 0.9}
	plane := bandPlane(640, 360, rect)

	// Two matches to confirm Open, then immediately M misses. The span
	// (last_seen + ½·sample_period ≈ 214ms) clears the 200ms span floor, but
	// the 10x5 anchor is below the 0.1%-of-ROI area floor and the 15px
	// dimension floor, so the close is discarded rather than emitted.
	for i := 0; i < 2; i++ {
		pts := time.Duration(i) * samplePeriod
		features := extractAll(t, cmp, plane, []detector.Region{region})
		seg.Step(pts, plane, []detector.Region{region}, features, 640, 360)
	}
	var closed []Segment
	for i := 2; i < 6; i++ {
		pts := time.Duration(i) * samplePeriod
		closed = append(closed, seg.Step(pts, luma.Plane{Width: 640, Height: 360, Stride: 640, Data: make([]byte, 640*360)}, nil, nil, 640, 360)...)
	}
	if len(closed) != 0 {
		t.Fatalf("expected flicker to be suppressed, got %d closed segments", len(closed))
	}
}

func TestSegmenterRepeatedSampleIsIgnored(t *testing.T) {
	cmp := comparator.NewBitsetCover(230, 12)
	seg := New(cmp, 2, 2, 4, samplePeriod, luma.FullFrame)

	rect := luma.PixelRect{X: 40, Y: 300, Width: 200, Height: 20}
	region := detector.Region{Rect: rect, Confidence: 0.9}
	plane := bandPlane(640, 360, rect)

	features := extractAll(t, cmp, plane, []detector.Region{region})
	seg.Step(0, plane, []detector.Region{region}, features, 640, 360)
	if seg.slots[0].seen != 1 {
		t.Fatalf("seen = %d after first sample, want 1", seg.slots[0].seen)
	}

	// Replaying the same pts must not advance the state machine: the
	// match count stays at 1 and the slot does not open early.
	seg.Step(0, plane, []detector.Region{region}, features, 640, 360)
	if seg.slots[0].seen != 1 {
		t.Fatalf("seen = %d after replayed sample, want 1", seg.slots[0].seen)
	}
	if seg.slots[0].st != stateCandidate {
		t.Fatalf("slot state = %v after replayed sample, want Candidate", seg.slots[0].st)
	}
}

func TestSegmenterFlushClosesOpenSlots(t *testing.T) {
	cmp := comparator.NewBitsetCover(230, 12)
	seg := New(cmp, 2, 2, 4, samplePeriod, luma.FullFrame)

	rect := luma.PixelRect{X: 40, Y: 300, Width: 200, Height: 20}
	region := detector.Region{Rect: rect, Confidence: 0.9}
	plane := bandPlane(640, 360, rect)

	var last time.Duration
	for i := 0; i < 3; i++ {
		last = time.Duration(i) * samplePeriod
		features := extractAll(t, cmp, plane, []detector.Region{region})
		seg.Step(last, plane, []detector.Region{region}, features, 640, 360)
	}
	closed := seg.Flush(last)
	if len(closed) != 1 {
		t.Fatalf("Flush() should close the open segment, got %d", len(closed))
	}
}

func TestSegmenterRejectsTinyRegion(t *testing.T) {
	cmp := comparator.NewBitsetCover(230, 12)
	seg := New(cmp, 2, 2, 4, samplePeriod, luma.FullFrame)

	rect := luma.PixelRect{X: 10, Y: 10, Width: 4, Height: 4}
	region := detector.Region{Rect: rect, Confidence: 0.5}
	plane := bandPlane(200, 100, rect)

	var last time.Duration
	for i := 0; i < 3; i++ {
		last = time.Duration(i) * samplePeriod
		features := extractAll(t, cmp, plane, []detector.Region{region})
		seg.Step(last, plane, []detector.Region{region}, features, 200, 100)
	}
	closed := seg.Flush(last)
	if len(closed) != 0 {
		t.Fatalf("tiny region should be discarded by the minimum-area floor, got %d", len(closed))
	}
}

func TestSegmenterRejectsThinRegion(t *testing.T) {
	cmp := comparator.NewBitsetCover(230, 12)
	seg := New(cmp, 2, 2, 4, samplePeriod, luma.FullFrame)

	// Area alone clears the 0.1%-of-ROI floor (500px² against a 200x100
	// frame's 20px² minimum), so only the 15px-per-dimension check should
	// reject this region.
	rect := luma.PixelRect{X: 10, Y: 10, Width: 100, Height: 5}
	region := detector.Region{Rect: rect, Confidence: 0.5}
	plane := bandPlane(200, 100, rect)

	var last time.Duration
	for i := 0; i < 3; i++ {
		last = time.Duration(i) * samplePeriod
		features := extractAll(t, cmp, plane, []detector.Region{region})
		seg.Step(last, plane, []detector.Region{region}, features, 200, 100)
	}
	closed := seg.Flush(last)
	if len(closed) != 0 {
		t.Fatalf("region thinner than 15px in one dimension should be discarded, got %d", len(closed))
	}
}
