package luma

import "fmt"

// Roi is a region of interest expressed as a fraction of the frame, with
// (0,0) at the top-left corner. A zero-sized Roi (Width == 0 || Height == 0)
// resolves to the full frame.
type Roi struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// FullFrame is the default ROI covering the entire frame.
var FullFrame = Roi{X: 0, Y: 0, Width: 1, Height: 1}

// Validate enforces the normalised-rectangle invariant:
// 0 <= x, x+w <= 1, and likewise for y/h.
func (r Roi) Validate() error {
	if r.X < 0 || r.Y < 0 {
		return fmt.Errorf("luma: roi origin (%g, %g) must be >= 0", r.X, r.Y)
	}
	if r.Width < 0 || r.Height < 0 {
		return fmt.Errorf("luma: roi size (%g, %g) must be >= 0", r.Width, r.Height)
	}
	if r.X+r.Width > 1.0001 {
		return fmt.Errorf("luma: roi x+width %g exceeds 1", r.X+r.Width)
	}
	if r.Y+r.Height > 1.0001 {
		return fmt.Errorf("luma: roi y+height %g exceeds 1", r.Y+r.Height)
	}
	return nil
}

// resolved applies the "zero-sized ROI == full frame" rule.
func (r Roi) resolved() Roi {
	if r.Width == 0 || r.Height == 0 {
		return FullFrame
	}
	return r
}

// PixelRect is an integer pixel rectangle within a frame.
type PixelRect struct {
	X, Y          int
	Width, Height int
}

// Area returns Width*Height.
func (r PixelRect) Area() int { return r.Width * r.Height }

// Intersects reports whether r and o overlap.
func (r PixelRect) Intersects(o PixelRect) bool {
	return r.X < o.X+o.Width && o.X < r.X+r.Width &&
		r.Y < o.Y+o.Height && o.Y < r.Y+r.Height
}

// IntersectionArea returns the area of the overlap between r and o, 0 if
// they do not overlap.
func (r PixelRect) IntersectionArea(o PixelRect) int {
	x0 := max(r.X, o.X)
	y0 := max(r.Y, o.Y)
	x1 := min(r.X+r.Width, o.X+o.Width)
	y1 := min(r.Y+r.Height, o.Y+o.Height)
	if x1 <= x0 || y1 <= y0 {
		return 0
	}
	return (x1 - x0) * (y1 - y0)
}

// Union returns the smallest rectangle containing both r and o.
func (r PixelRect) Union(o PixelRect) PixelRect {
	x0 := min(r.X, o.X)
	y0 := min(r.Y, o.Y)
	x1 := max(r.X+r.Width, o.X+o.Width)
	y1 := max(r.Y+r.Height, o.Y+o.Height)
	return PixelRect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Resolve converts the normalised Roi into an integer pixel rectangle
// clamped to the given frame dimensions, applying the zero-sized-ROI rule.
func (r Roi) Resolve(frameWidth, frameHeight int) PixelRect {
	res := r.resolved()
	x := int(res.X * float64(frameWidth))
	y := int(res.Y * float64(frameHeight))
	w := int(res.Width * float64(frameWidth))
	h := int(res.Height * float64(frameHeight))

	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	if x+w > frameWidth {
		w = frameWidth - x
	}
	if y+h > frameHeight {
		h = frameHeight - y
	}
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return PixelRect{X: x, Y: y, Width: w, Height: h}
}
