package detector

import (
	"sort"

	"github.com/care/hardsub/internal/luma"
)

// candidateHeightFractions are the adaptive window heights tried by
// IntegralBand, expressed as a fraction of the resolved ROI height.
var candidateHeightFractions = []float64{0.08, 0.12, 0.18, 0.25, 0.35}

// IntegralBand is the fallback detector: a summed-area table over the
// thresholded mask lets it evaluate bright-pixel density for any
// full-width horizontal band in O(1) per query, so it can cheaply scan many
// candidate band heights and pick local density maxima.
type IntegralBand struct {
	target uint8
	delta  uint8
}

// NewIntegralBand constructs the integral-image fallback detector.
func NewIntegralBand(target, delta uint8) *IntegralBand {
	return &IntegralBand{target: target, delta: delta}
}

func (d *IntegralBand) bright(v byte) bool {
	diff := int(v) - int(d.target)
	if diff < 0 {
		diff = -diff
	}
	return diff <= int(d.delta)
}

// Detect implements Detector.
func (d *IntegralBand) Detect(plane luma.Plane, roi luma.Roi) ([]Region, error) {
	if err := plane.Validate(); err != nil {
		return nil, err
	}
	rect := roi.Resolve(plane.Width, plane.Height)
	if rect.Width <= 0 || rect.Height <= 0 {
		return nil, nil
	}

	table := buildIntegralTable(plane, rect, d.bright)

	type candidate struct {
		y0, h   int
		density float64
	}
	var candidates []candidate

	for _, frac := range candidateHeightFractions {
		h := int(frac * float64(rect.Height))
		if h < 1 {
			h = 1
		}
		if h > rect.Height {
			h = rect.Height
		}
		step := h / 4
		if step < 1 {
			step = 1
		}

		densities := make([]float64, 0, rect.Height/step+1)
		ys := make([]int, 0, cap(densities))
		for y0 := 0; y0+h <= rect.Height; y0 += step {
			sum := table.rectSum(0, y0, rect.Width, h)
			densities = append(densities, float64(sum)/float64(rect.Width*h))
			ys = append(ys, y0)
		}

		for i, dens := range densities {
			if dens < minFill {
				continue
			}
			leftOK := i == 0 || dens >= densities[i-1]
			rightOK := i == len(densities)-1 || dens >= densities[i+1]
			if leftOK && rightOK {
				candidates = append(candidates, candidate{y0: ys[i], h: h, density: dens})
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].density > candidates[j].density })

	var blobs []*blob
	for _, c := range candidates {
		rectC := luma.PixelRect{X: rect.X, Y: rect.Y + c.y0, Width: rect.Width, Height: c.h}
		overlapsExisting := false
		for _, b := range blobs {
			br := b.rect()
			inter := br.IntersectionArea(rectC)
			smaller := br.Area()
			if rectC.Area() < smaller {
				smaller = rectC.Area()
			}
			if smaller > 0 && float64(inter)/float64(smaller) >= mergeOverlapFraction {
				overlapsExisting = true
				break
			}
		}
		if overlapsExisting {
			continue
		}
		brightCount := int(c.density * float64(rectC.Area()))
		blobs = append(blobs, &blob{
			minX: rectC.X, minY: rectC.Y,
			maxX: rectC.X + rectC.Width - 1, maxY: rectC.Y + rectC.Height - 1,
			brightPixels: brightCount,
		})
	}

	regions := make([]Region, 0, len(blobs))
	for _, b := range blobs {
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
	sort.Slice(regions, func(i, j int) bool { return regions[i].Rect.Y < regions[j].Rect.Y })
	for i := range regions {
		regions[i].Index = i
	}
	return regions, nil
}

// integralTable is a 2D summed-area table over a rectangular region of a
// luma plane's thresholded mask.
type integralTable struct {
	sums []int64
	w, h int
}

func buildIntegralTable(plane luma.Plane, rect luma.PixelRect, bright func(byte) bool) *integralTable {
	w, h := rect.Width, rect.Height
	t := &integralTable{sums: make([]int64, (w+1)*(h+1)), w: w, h: h}
	stride := w + 1
	for y := 0; y < h; y++ {
		row := plane.Row(rect.Y + y)
		var rowSum int64
		for x := 0; x < w; x++ {
			if bright(row[rect.X+x]) {
				rowSum++
			}
			t.sums[(y+1)*stride+(x+1)] = t.sums[y*stride+(x+1)] + rowSum
		}
	}
	return t
}

// rectSum returns the count of bright pixels within [x0,x0+w)×[y0,y0+h).
func (t *integralTable) rectSum(x0, y0, w, h int) int64 {
	x1, y1 := x0+w, y0+h
	stride := t.w + 1
	return t.sums[y1*stride+x1] - t.sums[y0*stride+x1] - t.sums[y1*stride+x0] + t.sums[y0*stride+x0]
}
