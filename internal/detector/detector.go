// Package detector performs per-sample region-of-interest analysis,
// proposing candidate subtitle bands with a confidence score.
//
// Detection never fails fatally: a degenerate frame yields zero regions
// rather than an error bubbling up the pipeline. Detect still returns an
// error for genuinely structural problems (malformed planes) so callers can
// count the anomaly and skip the frame.
package detector

import (
	"fmt"

	"github.com/care/hardsub/internal/luma"
)

// MaxRegions is the cap on candidate regions returned per frame.
const MaxRegions = 4

// MinConfidence below which a candidate is rejected outright.
const MinConfidence = 0.2

// Region is a candidate subtitle band within one sampled frame.
type Region struct {
	Rect       luma.PixelRect
	Confidence float64
	Index      int
}

// Detector proposes 0..MaxRegions candidate Regions for one luma plane,
// restricted to the resolved ROI.
type Detector interface {
	Detect(plane luma.Plane, roi luma.Roi) ([]Region, error)
}

// New builds a Detector for the named backend. Unknown names are a
// configuration error, resolved at startup, not per-frame.
func New(name string, target, delta uint8) (Detector, error) {
	switch name {
	case "luma-band", "":
		return NewLumaBand(target, delta), nil
	case "integral-band":
		return NewIntegralBand(target, delta), nil
	case "auto":
		return NewAuto(target, delta), nil
	default:
		return nil, fmt.Errorf("detector: unknown backend %q", name)
	}
}

// Auto wraps LumaBand as the primary detector and falls back to
// IntegralBand once LumaBand has returned zero candidates on two
// consecutive frames. While the fallback is active only IntegralBand runs;
// the first non-empty IntegralBand result switches the next frame back to
// LumaBand.
type Auto struct {
	primary     *LumaBand
	fallback    *IntegralBand
	misses      int
	useFallback bool
}

// NewAuto constructs the auto-selecting detector.
func NewAuto(target, delta uint8) *Auto {
	return &Auto{
		primary:  NewLumaBand(target, delta),
		fallback: NewIntegralBand(target, delta),
	}
}

// Detect implements Detector.
func (a *Auto) Detect(plane luma.Plane, roi luma.Roi) ([]Region, error) {
	if a.useFallback {
		regions, err := a.fallback.Detect(plane, roi)
		if err != nil {
			return nil, err
		}
		if len(regions) > 0 {
			a.useFallback = false
			a.misses = 0
		}
		return regions, nil
	}

	regions, err := a.primary.Detect(plane, roi)
	if err != nil {
		return nil, err
	}
	if len(regions) == 0 {
		a.misses++
		if a.misses >= 2 {
			a.useFallback = true
			return a.fallback.Detect(plane, roi)
		}
		return regions, nil
	}
	a.misses = 0
	return regions, nil
}
