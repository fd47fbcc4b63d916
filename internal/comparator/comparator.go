// Package comparator turns a detected region into a compact, comparable
// Feature and decides whether two features describe the same subtitle line.
//
// Features are only comparable within the backend and preprocess settings
// that produced them; comparing features from different backends is a
// programming error and panics rather than silently misbehaving.
package comparator

import (
	"fmt"

	"github.com/care/hardsub/internal/luma"
)

// Feature is an opaque, backend-tagged bag of bytes extracted from a region.
// It copies the pixels it needs so the originating plane can be released
// independently.
type Feature struct {
	backend string
	rect    luma.PixelRect

	// bitset-cover fields
	mask     []bool
	maskW    int
	maskH    int
	centroid point

	// sparse-chamfer fields
	edges     []point
	distField []float64
	dfW       int
	dfH       int
}

type point struct{ x, y int }

// CompareReport is the verdict produced by comparing two features extracted
// by the same backend.
type CompareReport struct {
	SameSegment bool
	Score       float64
	DriftX      int
	DriftY      int
}

// Comparator extracts Features from regions and compares pairs of them.
type Comparator interface {
	Extract(plane luma.Plane, rect luma.PixelRect) (Feature, error)
	Compare(reference, candidate Feature) CompareReport
}

// New builds a Comparator for the named backend.
func New(name string, target, delta uint8) (Comparator, error) {
	switch name {
	case "bitset-cover", "":
		return NewBitsetCover(target, delta), nil
	case "sparse-chamfer":
		return NewSparseChamfer(target, delta), nil
	default:
		return nil, fmt.Errorf("comparator: unknown backend %q", name)
	}
}

// requireSameBackend panics when either feature was not produced by backend:
// this is a programming error, not a runtime condition callers are expected
// to recover from. Features store no target/delta, so features produced by
// the same backend under different settings are not detected here.
func requireSameBackend(a, b Feature, backend string) {
	if a.backend != backend || b.backend != backend {
		panic(fmt.Sprintf("comparator: cannot compare features from backend %q and %q as %q", a.backend, b.backend, backend))
	}
}
