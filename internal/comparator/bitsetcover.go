package comparator

import "github.com/care/hardsub/internal/luma"

const bitsetCoverBackend = "bitset-cover"

// bitsetCoverThreshold is the IoU verdict cutoff.
const bitsetCoverThreshold = 0.60

// BitsetCover binarises a region with the detector's target/delta, dilates
// by a 3x3 structuring element to absorb sub-pixel shifts, and compares two
// masks by intersection-over-union after aligning their centroids.
type BitsetCover struct {
	target uint8
	delta  uint8
}

// NewBitsetCover constructs a bitset-cover comparator. target and delta
// must be the detector's own binarisation parameters so both stages see
// the same mask.
func NewBitsetCover(target, delta uint8) *BitsetCover {
	return &BitsetCover{target: target, delta: delta}
}

func (c *BitsetCover) bright(v byte) bool {
	diff := int(v) - int(c.target)
	if diff < 0 {
		diff = -diff
	}
	return diff <= int(c.delta)
}

// Extract implements Comparator.
func (c *BitsetCover) Extract(plane luma.Plane, rect luma.PixelRect) (Feature, error) {
	if err := plane.Validate(); err != nil {
		return Feature{}, err
	}
	w, h := rect.Width, rect.Height
	raw := make([]bool, w*h)
	for y := 0; y < h; y++ {
		row := plane.Row(rect.Y + y)
		for x := 0; x < w; x++ {
			raw[y*w+x] = c.bright(row[rect.X+x])
		}
	}

	mask := dilate3x3(raw, w, h)
	cx, cy, n := 0.0, 0.0, 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if mask[y*w+x] {
				cx += float64(x)
				cy += float64(y)
				n++
			}
		}
	}
	centroid := point{}
	if n > 0 {
		centroid = point{x: int(cx/float64(n) + 0.5), y: int(cy/float64(n) + 0.5)}
	}

	return Feature{
		backend:  bitsetCoverBackend,
		rect:     rect,
		mask:     mask,
		maskW:    w,
		maskH:    h,
		centroid: centroid,
	}, nil
}

// Compare implements Comparator.
func (c *BitsetCover) Compare(reference, candidate Feature) CompareReport {
	requireSameBackend(reference, candidate, bitsetCoverBackend)

	dx := reference.centroid.x - candidate.centroid.x
	dy := reference.centroid.y - candidate.centroid.y

	var intersection int
	for y := 0; y < candidate.maskH; y++ {
		for x := 0; x < candidate.maskW; x++ {
			if !candidate.mask[y*candidate.maskW+x] {
				continue
			}
			rx, ry := x+dx, y+dy
			if rx >= 0 && rx < reference.maskW && ry >= 0 && ry < reference.maskH &&
				reference.mask[ry*reference.maskW+rx] {
				intersection++
			}
		}
	}

	refArea := countTrue(reference.mask)
	candArea := countTrue(candidate.mask)
	union := refArea + candArea - intersection

	var iou float64
	if union > 0 {
		iou = float64(intersection) / float64(union)
	}

	return CompareReport{
		SameSegment: iou >= bitsetCoverThreshold,
		Score:       iou,
		DriftX:      dx,
		DriftY:      dy,
	}
}

func countTrue(mask []bool) int {
	n := 0
	for _, v := range mask {
		if v {
			n++
		}
	}
	return n
}

// dilate3x3 returns a mask where each true pixel is true if any of its 3x3
// neighbours (including itself) was true in src.
func dilate3x3(src []bool, w, h int) []bool {
	out := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			found := false
			for ny := y - 1; ny <= y+1 && !found; ny++ {
				if ny < 0 || ny >= h {
					continue
				}
				for nx := x - 1; nx <= x+1; nx++ {
					if nx < 0 || nx >= w {
						continue
					}
					if src[ny*w+nx] {
						found = true
						break
					}
				}
			}
			out[y*w+x] = found
		}
	}
	return out
}
