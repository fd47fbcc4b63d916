package detector

import (
	"testing"

	"github.com/care/hardsub/internal/luma"
)

// syntheticPlane builds a plane of the given size filled with dark pixels
// (0) and a bright rectangle (230) at the given pixel rect.
func syntheticPlane(w, h int, bright luma.PixelRect) luma.Plane {
	data := make([]byte, w*h)
	for i := range data {
		data[i] = 0
	}
	for y := bright.Y; y < bright.Y+bright.Height && y < h; y++ {
		for x := bright.X; x < bright.X+bright.Width && x < w; x++ {
			data[y*w+x] = 230
		}
	}
	return luma.Plane{Width: w, Height: h, Stride: w, Data: data}
}

func TestLumaBandDetectsBrightBand(t *testing.T) {
	plane := syntheticPlane(640, 360, luma.PixelRect{X: 100, Y: 300, Width: 300, Height: 20})
	d := NewLumaBand(230, 12)
	regions, err := d.Detect(plane, luma.Roi{X: 0, Y: 0.75, Width: 1, Height: 0.25})
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(regions) == 0 {
		t.Fatal("expected at least one region")
	}
	r := regions[0]
	if r.Confidence < MinConfidence {
		t.Fatalf("confidence %v below minimum", r.Confidence)
	}
	if r.Rect.X > 100 || r.Rect.X+r.Rect.Width < 400 {
		t.Fatalf("detected rect %+v does not cover synthetic band", r.Rect)
	}
}

func TestLumaBandEmptyFrameYieldsNoRegions(t *testing.T) {
	plane := syntheticPlane(640, 360, luma.PixelRect{})
	d := NewLumaBand(230, 12)
	regions, err := d.Detect(plane, luma.FullFrame)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(regions) != 0 {
		t.Fatalf("expected no regions on a dark frame, got %d", len(regions))
	}
}

func TestLumaBandDegenerateFrameReturnsError(t *testing.T) {
	plane := luma.Plane{Width: 10, Height: 10, Stride: 5, Data: make([]byte, 20)}
	d := NewLumaBand(230, 12)
	if _, err := d.Detect(plane, luma.FullFrame); err == nil {
		t.Fatal("expected an error for a malformed plane")
	}
}

func TestLumaBandCapsAtMaxRegions(t *testing.T) {
	w, h := 800, 400
	data := make([]byte, w*h)
	// Five well-separated bright bands stacked vertically.
	for i := 0; i < 5; i++ {
		y0 := i * 70
		for y := y0; y < y0+20; y++ {
			for x := 50; x < 400; x++ {
				data[y*w+x] = 230
			}
		}
	}
	plane := luma.Plane{Width: w, Height: h, Stride: w, Data: data}
	d := NewLumaBand(230, 12)
	regions, err := d.Detect(plane, luma.FullFrame)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(regions) > MaxRegions {
		t.Fatalf("got %d regions, want <= %d", len(regions), MaxRegions)
	}
}

func TestIntegralBandDetectsBand(t *testing.T) {
	plane := syntheticPlane(640, 360, luma.PixelRect{X: 0, Y: 310, Width: 640, Height: 25})
	d := NewIntegralBand(230, 12)
	regions, err := d.Detect(plane, luma.Roi{X: 0, Y: 0.75, Width: 1, Height: 0.25})
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(regions) == 0 {
		t.Fatal("expected at least one region from integral-band")
	}
}

func TestAutoFallsBackAfterTwoMisses(t *testing.T) {
	a := NewAuto(230, 12)
	dark := syntheticPlane(640, 360, luma.PixelRect{})
	roi := luma.Roi{X: 0, Y: 0.75, Width: 1, Height: 0.25}

	if _, err := a.Detect(dark, roi); err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if a.useFallback {
		t.Fatal("should not fall back after a single miss")
	}
	if _, err := a.Detect(dark, roi); err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if !a.useFallback {
		t.Fatal("should fall back to integral-band after two consecutive misses")
	}
}

func TestNewUnknownBackend(t *testing.T) {
	if _, err := New("nonsense", 230, 12); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
