// Package luma holds the zero-copy descriptor of a decoded frame's Y plane
// and the normalised region-of-interest type used throughout the pipeline.
package luma

import (
	"fmt"
	"time"
)

// Plane is a read-only view over one decoded frame's luma (Y) channel.
//
// IMMUTABILITY CONTRACT: the decoder adapter that produces a Plane MUST NOT
// write to Data again once the Plane has been handed to the pipeline, and no
// pipeline stage may write to Data either. Stages that need to retain pixels
// past the Plane's lifetime (the Comparator's Feature extraction) must copy
// them, never hold a slice into Data.
type Plane struct {
	Width  int
	Height int
	Stride int
	Data   []byte
	PTS    time.Duration
}

// Validate checks the structural invariant stride*height <= len(Data) and
// that dimensions are positive. A Plane failing this check is degenerate;
// callers should treat it as producing no regions rather than panicking.
func (p Plane) Validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("luma: non-positive dimensions %dx%d", p.Width, p.Height)
	}
	if p.Stride < p.Width {
		return fmt.Errorf("luma: stride %d smaller than width %d", p.Stride, p.Width)
	}
	required := p.Stride * p.Height
	if len(p.Data) < required {
		return fmt.Errorf("luma: buffer too small: have %d bytes, need %d", len(p.Data), required)
	}
	return nil
}

// At returns the luma sample at pixel (x, y). Callers are expected to have
// validated the plane and bounds-checked x/y; this is a hot path called per
// pixel by the detector and comparator, so it does not re-validate.
func (p Plane) At(x, y int) byte {
	return p.Data[y*p.Stride+x]
}

// Row returns the byte slice backing row y, width p.Width bytes wide. The
// returned slice aliases Data and must not be retained beyond the caller's
// use of this Plane.
func (p Plane) Row(y int) []byte {
	off := y * p.Stride
	return p.Data[off : off+p.Width]
}
