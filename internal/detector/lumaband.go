package detector

import (
	"math"
	"sort"

	"github.com/care/hardsub/internal/luma"
)

// Preferred aspect ratio band for subtitle text blobs.
const (
	minAspect = 3.0
	maxAspect = 25.0
	minFill   = 0.05

	// mergeOverlapFraction is the bounding-box intersection threshold (as a
	// fraction of the smaller box's area) above which two blobs are merged.
	mergeOverlapFraction = 0.30

	// rowOverlapFraction is the horizontal-overlap threshold used when
	// deciding whether a row's bright run belongs to an in-progress blob.
	rowOverlapFraction = 0.50
)

// LumaBand is the default detector: threshold + row-run connected-component
// grouping + heuristic scoring.
type LumaBand struct {
	target uint8
	delta  uint8
}

// NewLumaBand constructs a luma-band detector with the given threshold
// parameters (defaults target=230, delta=12).
func NewLumaBand(target, delta uint8) *LumaBand {
	return &LumaBand{target: target, delta: delta}
}

// bright reports whether sample v passes the |luma-target|<=delta test.
func (d *LumaBand) bright(v byte) bool {
	diff := int(v) - int(d.target)
	if diff < 0 {
		diff = -diff
	}
	return diff <= int(d.delta)
}

// blob accumulates a connected component while scanning rows top to bottom.
type blob struct {
	minX, minY, maxX, maxY int
	brightPixels           int
	touchedThisRow         bool
}

func (b *blob) rect() luma.PixelRect {
	return luma.PixelRect{X: b.minX, Y: b.minY, Width: b.maxX - b.minX + 1, Height: b.maxY - b.minY + 1}
}

func (b *blob) absorb(x0, x1, y int) {
	if x0 < b.minX {
		b.minX = x0
	}
	if x1 > b.maxX {
		b.maxX = x1
	}
	if y < b.minY {
		b.minY = y
	}
	if y > b.maxY {
		b.maxY = y
	}
	b.brightPixels += x1 - x0 + 1
	b.touchedThisRow = true
}

// Detect implements Detector.
func (d *LumaBand) Detect(plane luma.Plane, roi luma.Roi) ([]Region, error) {
	if err := plane.Validate(); err != nil {
		return nil, err
	}
	rect := roi.Resolve(plane.Width, plane.Height)
	if rect.Width <= 0 || rect.Height <= 0 {
		return nil, nil
	}

	var active []*blob
	var finished []*blob

	closeUntouched := func() {
		kept := active[:0]
		for _, b := range active {
			if b.touchedThisRow {
				b.touchedThisRow = false
				kept = append(kept, b)
			} else {
				finished = append(finished, b)
			}
		}
		active = kept
	}

	for ry := 0; ry < rect.Height; ry++ {
		y := rect.Y + ry
		row := plane.Row(y)
		runs := brightRuns(row, rect.X, rect.Width, d.bright)

		for _, run := range runs {
			merged := false
			for _, b := range active {
				if horizontalOverlap(b.minX, b.maxX, run.start, run.end) >= rowOverlapFraction {
					b.absorb(run.start, run.end, y)
					merged = true
					break
				}
			}
			if !merged {
				nb := &blob{minX: run.start, maxX: run.end, minY: y, maxY: y, touchedThisRow: true}
				nb.brightPixels = run.end - run.start + 1
				active = append(active, nb)
			}
		}
		closeUntouched()
	}
	finished = append(finished, active...)

	merged := mergeOverlappingBlobs(finished)

	regions := make([]Region, 0, len(merged))
	for _, b := range merged {
		r := b.rect()
		conf := score(r, b.brightPixels, rect)
		if conf < MinConfidence {
			continue
		}
		regions = append(regions, Region{Rect: r, Confidence: conf})
	}

	sort.Slice(regions, func(i, j int) bool { return regions[i].Confidence > regions[j].Confidence })
	if len(regions) > MaxRegions {
		regions = regions[:MaxRegions]
	}
	// Slot indices follow vertical position, assigned here.
	sort.Slice(regions, func(i, j int) bool { return regions[i].Rect.Y < regions[j].Rect.Y })
	for i := range regions {
		regions[i].Index = i
	}
	return regions, nil
}

type runSpan struct{ start, end int }

// brightRuns returns the contiguous bright-pixel runs in row[xOff:xOff+w),
// with coordinates expressed in absolute frame-column space.
func brightRuns(row []byte, xOff, w int, bright func(byte) bool) []runSpan {
	var runs []runSpan
	inRun := false
	start := 0
	for i := 0; i < w; i++ {
		on := bright(row[xOff+i])
		switch {
		case on && !inRun:
			inRun = true
			start = i
		case !on && inRun:
			inRun = false
			runs = append(runs, runSpan{start: xOff + start, end: xOff + i - 1})
		}
	}
	if inRun {
		runs = append(runs, runSpan{start: xOff + start, end: xOff + w - 1})
	}
	return runs
}

// horizontalOverlap returns the overlap between [aMin,aMax] and [bMin,bMax]
// as a fraction of the narrower span's width.
func horizontalOverlap(aMin, aMax, bMin, bMax int) float64 {
	lo := max(aMin, bMin)
	hi := min(aMax, bMax)
	if hi < lo {
		return 0
	}
	overlap := float64(hi - lo + 1)
	aw := float64(aMax - aMin + 1)
	bw := float64(bMax - bMin + 1)
	narrower := aw
	if bw < narrower {
		narrower = bw
	}
	if narrower <= 0 {
		return 0
	}
	return overlap / narrower
}

// mergeOverlappingBlobs merges blobs whose bounding boxes intersect by at
// least mergeOverlapFraction of the smaller box's area.
func mergeOverlappingBlobs(blobs []*blob) []*blob {
	changed := true
	for changed {
		changed = false
		for i := 0; i < len(blobs); i++ {
			for j := i + 1; j < len(blobs); j++ {
				ri, rj := blobs[i].rect(), blobs[j].rect()
				inter := ri.IntersectionArea(rj)
				smaller := ri.Area()
				if rj.Area() < smaller {
					smaller = rj.Area()
				}
				if smaller == 0 {
					continue
				}
				if float64(inter)/float64(smaller) >= mergeOverlapFraction {
					blobs[i].minX = min(blobs[i].minX, blobs[j].minX)
					blobs[i].minY = min(blobs[i].minY, blobs[j].minY)
					blobs[i].maxX = max(blobs[i].maxX, blobs[j].maxX)
					blobs[i].maxY = max(blobs[i].maxY, blobs[j].maxY)
					blobs[i].brightPixels += blobs[j].brightPixels
					blobs = append(blobs[:j], blobs[j+1:]...)
					changed = true
					break
				}
			}
			if changed {
				break
			}
		}
	}
	return blobs
}

// score computes the four sub-scores (area, aspect, fill density, vertical
// position) and combines them as a normalised product (geometric mean).
func score(rect luma.PixelRect, brightPixels int, roi luma.PixelRect) float64 {
	area := rect.Area()
	if area == 0 {
		return 0
	}

	roiArea := roi.Area()
	areaScore := float64(area) / (0.15 * float64(roiArea))
	if areaScore > 1 {
		areaScore = 1
	}

	aspect := float64(rect.Width) / float64(rect.Height)
	aspectScore := aspectBandScore(aspect)

	density := float64(brightPixels) / float64(area)
	var densityScore float64
	if density >= minFill {
		densityScore = density / 0.15
		if densityScore > 1 {
			densityScore = 1
		}
	}

	// Vertical position within the ROI: subtitles anchor toward the bottom
	// of the resolved band, so centre-of-mass near the bottom scores higher.
	centerY := float64(rect.Y-roi.Y) + float64(rect.Height)/2
	posFraction := 0.5
	if roi.Height > 0 {
		posFraction = centerY / float64(roi.Height)
	}
	positionScore := 0.5 + 0.5*posFraction
	if positionScore > 1 {
		positionScore = 1
	}
	if positionScore < 0 {
		positionScore = 0
	}

	product := areaScore * aspectScore * densityScore * positionScore
	if product <= 0 {
		return 0
	}
	return math.Pow(product, 0.25)
}

func aspectBandScore(aspect float64) float64 {
	if aspect >= minAspect && aspect <= maxAspect {
		return 1
	}
	if aspect < minAspect {
		if aspect <= 0 {
			return 0
		}
		return aspect / minAspect
	}
	// aspect > maxAspect: decay gradually rather than hard-cutting to 0.
	return maxAspect / aspect
}
