package comparator

import (
	"sort"

	"github.com/care/hardsub/internal/luma"
)

const sparseChamferBackend = "sparse-chamfer"

// maxEdgePoints caps the edge-point set extracted per feature.
const maxEdgePoints = 512

// sobelThreshold is the gradient-magnitude cutoff for an edge pixel.
const sobelThreshold = 64

// chamferDistancePx is the distance tolerance for a matching edge point.
const chamferDistancePx = 2

// sparseChamferThreshold is the matched-fraction verdict cutoff.
const sparseChamferThreshold = 0.70

// SparseChamfer extracts Sobel edge points from a region and compares
// features by how many of a candidate's edge points fall within
// chamferDistancePx of an edge in the reference's distance transform.
type SparseChamfer struct{}

// NewSparseChamfer constructs a sparse-chamfer comparator. It does not use
// the detector's target/delta (edges are threshold-independent) but accepts
// them for interface symmetry with the other backends.
func NewSparseChamfer(_, _ uint8) *SparseChamfer {
	return &SparseChamfer{}
}

// Extract implements Comparator.
func (c *SparseChamfer) Extract(plane luma.Plane, rect luma.PixelRect) (Feature, error) {
	if err := plane.Validate(); err != nil {
		return Feature{}, err
	}
	w, h := rect.Width, rect.Height
	mag := sobelMagnitude(plane, rect)

	var edges []point
	var cx, cy float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if mag[y*w+x] > sobelThreshold {
				edges = append(edges, point{x: x, y: y})
			}
		}
	}
	if len(edges) > maxEdgePoints {
		// Keep the strongest edges by magnitude when over budget.
		sort.Slice(edges, func(i, j int) bool {
			return mag[edges[i].y*w+edges[i].x] > mag[edges[j].y*w+edges[j].x]
		})
		edges = edges[:maxEdgePoints]
	}
	for _, p := range edges {
		cx += float64(p.x)
		cy += float64(p.y)
	}
	centroid := point{}
	if len(edges) > 0 {
		centroid = point{x: int(cx/float64(len(edges)) + 0.5), y: int(cy/float64(len(edges)) + 0.5)}
	}

	df, dfW, dfH := buildDistanceTransform(edges, w, h)

	return Feature{
		backend:   sparseChamferBackend,
		rect:      rect,
		edges:     edges,
		distField: df,
		dfW:       dfW,
		dfH:       dfH,
		centroid:  centroid,
	}, nil
}

// Compare implements Comparator. The reference's distance transform is the
// match target; the candidate's edge points (aligned by centroid) are the
// probes, scored by the fraction landing within chamferDistancePx of a
// reference edge.
func (c *SparseChamfer) Compare(reference, candidate Feature) CompareReport {
	requireSameBackend(reference, candidate, sparseChamferBackend)

	dx := reference.centroid.x - candidate.centroid.x
	dy := reference.centroid.y - candidate.centroid.y

	if len(candidate.edges) == 0 {
		return CompareReport{SameSegment: false, Score: 0, DriftX: dx, DriftY: dy}
	}

	matched := 0
	for _, p := range candidate.edges {
		rx, ry := p.x+dx, p.y+dy
		if rx < 0 || rx >= reference.dfW || ry < 0 || ry >= reference.dfH {
			continue
		}
		if reference.distField[ry*reference.dfW+rx] <= chamferDistancePx {
			matched++
		}
	}
	fraction := float64(matched) / float64(len(candidate.edges))

	return CompareReport{
		SameSegment: fraction >= sparseChamferThreshold,
		Score:       fraction,
		DriftX:      dx,
		DriftY:      dy,
	}
}

// sobelMagnitude computes the Sobel gradient magnitude, as the unclamped
// sum |gx|+|gy|, for every pixel in rect, using the plane directly as the source so
// edges at the rect boundary still see real neighbouring pixels.
func sobelMagnitude(plane luma.Plane, rect luma.PixelRect) []int {
	w, h := rect.Width, rect.Height
	mag := make([]int, w*h)
	sample := func(x, y int) int {
		px, py := rect.X+x, rect.Y+y
		if px < 0 {
			px = 0
		}
		if px >= plane.Width {
			px = plane.Width - 1
		}
		if py < 0 {
			py = 0
		}
		if py >= plane.Height {
			py = plane.Height - 1
		}
		return int(plane.At(px, py))
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gx := -sample(x-1, y-1) - 2*sample(x-1, y) - sample(x-1, y+1) +
				sample(x+1, y-1) + 2*sample(x+1, y) + sample(x+1, y+1)
			gy := -sample(x-1, y-1) - 2*sample(x, y-1) - sample(x+1, y-1) +
				sample(x-1, y+1) + 2*sample(x, y+1) + sample(x+1, y+1)
			if gx < 0 {
				gx = -gx
			}
			if gy < 0 {
				gy = -gy
			}
			mag[y*w+x] = gx + gy
		}
	}
	return mag
}

// buildDistanceTransform computes, for every pixel in a w x h grid, the
// Chebyshev distance to the nearest point in pts via a two-pass raster
// sweep. Good enough for the small regions this backend operates on and
// avoids pulling in an external image-processing dependency for a single
// primitive.
func buildDistanceTransform(pts []point, w, h int) ([]float64, int, int) {
	const inf = 1 << 30
	dist := make([]int, w*h)
	for i := range dist {
		dist[i] = inf
	}
	for _, p := range pts {
		if p.x >= 0 && p.x < w && p.y >= 0 && p.y < h {
			dist[p.y*w+p.x] = 0
		}
	}

	at := func(x, y int) int {
		if x < 0 || x >= w || y < 0 || y >= h {
			return inf
		}
		return dist[y*w+x]
	}
	set := func(x, y, v int) {
		if v < dist[y*w+x] {
			dist[y*w+x] = v
		}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			best := dist[y*w+x]
			for _, n := range [][2]int{{-1, 0}, {0, -1}, {-1, -1}, {1, -1}} {
				if v := at(x+n[0], y+n[1]); v+1 < best {
					best = v + 1
				}
			}
			set(x, y, best)
		}
	}
	for y := h - 1; y >= 0; y-- {
		for x := w - 1; x >= 0; x-- {
			best := dist[y*w+x]
			for _, n := range [][2]int{{1, 0}, {0, 1}, {1, 1}, {-1, 1}} {
				if v := at(x+n[0], y+n[1]); v+1 < best {
					best = v + 1
				}
			}
			set(x, y, best)
		}
	}

	out := make([]float64, w*h)
	for i, v := range dist {
		out[i] = float64(v)
	}
	return out, w, h
}
