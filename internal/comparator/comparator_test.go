package comparator

import (
	"testing"

	"github.com/care/hardsub/internal/luma"
)

func rectPlane(w, h int, on luma.PixelRect, target byte) luma.Plane {
	data := make([]byte, w*h)
	for y := on.Y; y < on.Y+on.Height && y < h; y++ {
		for x := on.X; x < on.X+on.Width && x < w; x++ {
			data[y*w+x] = target
		}
	}
	return luma.Plane{Width: w, Height: h, Stride: w, Data: data}
}

func TestBitsetCoverReflexive(t *testing.T) {
	plane := rectPlane(200, 100, luma.PixelRect{X: 40, Y: 30, Width: 80, Height: 20}, 230)
	rect := luma.PixelRect{X: 20, Y: 10, Width: 140, Height: 60}
	c := NewBitsetCover(230, 12)

	f, err := c.Extract(plane, rect)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	report := c.Compare(f, f)
	if !report.SameSegment {
		t.Fatalf("Compare(f, f) should be same_segment, got score %v", report.Score)
	}
	if report.Score < 0.99 {
		t.Fatalf("self-IoU should be ~1.0, got %v", report.Score)
	}
}

func TestBitsetCoverSymmetricVerdict(t *testing.T) {
	plane := rectPlane(200, 100, luma.PixelRect{X: 40, Y: 30, Width: 80, Height: 20}, 230)
	rectA := luma.PixelRect{X: 20, Y: 10, Width: 140, Height: 60}
	rectB := luma.PixelRect{X: 25, Y: 12, Width: 140, Height: 60}
	c := NewBitsetCover(230, 12)

	a, err := c.Extract(plane, rectA)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	b, err := c.Extract(plane, rectB)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	ab := c.Compare(a, b)
	ba := c.Compare(b, a)
	if ab.SameSegment != ba.SameSegment {
		t.Fatalf("verdict not symmetric: ab=%v ba=%v", ab.SameSegment, ba.SameSegment)
	}
}

func TestBitsetCoverDistinctRegionsDiffer(t *testing.T) {
	// Compare aligns centroids before IoU, so the two regions must differ in
	// shape, not just position: a wide 30x15 band against a tall 10x35 one.
	c := NewBitsetCover(230, 12)
	planeA := rectPlane(200, 100, luma.PixelRect{X: 10, Y: 10, Width: 30, Height: 15}, 230)
	planeB := rectPlane(200, 100, luma.PixelRect{X: 150, Y: 60, Width: 10, Height: 35}, 230)
	rect := luma.PixelRect{X: 0, Y: 0, Width: 200, Height: 100}

	a, _ := c.Extract(planeA, rect)
	b, _ := c.Extract(planeB, rect)
	report := c.Compare(a, b)
	if report.SameSegment {
		t.Fatalf("unrelated regions should not match, got score %v", report.Score)
	}
}

func TestSparseChamferReflexive(t *testing.T) {
	plane := rectPlane(200, 100, luma.PixelRect{X: 40, Y: 30, Width: 80, Height: 20}, 230)
	rect := luma.PixelRect{X: 20, Y: 10, Width: 140, Height: 60}
	c := NewSparseChamfer(230, 12)

	f, err := c.Extract(plane, rect)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	report := c.Compare(f, f)
	if !report.SameSegment {
		t.Fatalf("Compare(f, f) should be same_segment, got score %v", report.Score)
	}
}

func TestSparseChamferSymmetricVerdict(t *testing.T) {
	plane := rectPlane(200, 100, luma.PixelRect{X: 40, Y: 30, Width: 80, Height: 20}, 230)
	rectA := luma.PixelRect{X: 20, Y: 10, Width: 140, Height: 60}
	rectB := luma.PixelRect{X: 24, Y: 11, Width: 140, Height: 60}
	c := NewSparseChamfer(230, 12)

	a, _ := c.Extract(plane, rectA)
	b, _ := c.Extract(plane, rectB)
	ab := c.Compare(a, b)
	ba := c.Compare(b, a)
	if ab.SameSegment != ba.SameSegment {
		t.Fatalf("verdict not symmetric: ab=%v ba=%v", ab.SameSegment, ba.SameSegment)
	}
}

func TestSparseChamferCapsEdgePoints(t *testing.T) {
	// A region full of a high-contrast checkerboard produces far more than
	// maxEdgePoints raw edges.
	w, h := 64, 64
	data := make([]byte, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x+y)%2 == 0 {
				data[y*w+x] = 255
			}
		}
	}
	plane := luma.Plane{Width: w, Height: h, Stride: w, Data: data}
	c := NewSparseChamfer(230, 12)
	f, err := c.Extract(plane, luma.PixelRect{X: 0, Y: 0, Width: w, Height: h})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(f.edges) > maxEdgePoints {
		t.Fatalf("edge points = %d, want <= %d", len(f.edges), maxEdgePoints)
	}
}

func TestComparatorMisuseMismatchedBackendsPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic comparing features from different backends")
		}
	}()
	bc := NewBitsetCover(230, 12)
	sc := NewSparseChamfer(230, 12)
	plane := rectPlane(100, 60, luma.PixelRect{X: 10, Y: 10, Width: 30, Height: 15}, 230)
	rect := luma.PixelRect{X: 0, Y: 0, Width: 100, Height: 60}

	a, _ := bc.Extract(plane, rect)
	b, _ := sc.Extract(plane, rect)
	bc.Compare(a, b)
}

func TestNewUnknownComparator(t *testing.T) {
	if _, err := New("nonsense", 230, 12); err == nil {
		t.Fatal("expected error for unknown comparator backend")
	}
}
