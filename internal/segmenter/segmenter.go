// Package segmenter holds the temporal state machine that turns per-sample
// detector regions into closed subtitle intervals, one Segment per slot,
// ready for OCR dispatch.
package segmenter

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/care/hardsub/internal/comparator"
	"github.com/care/hardsub/internal/detector"
	"github.com/care/hardsub/internal/luma"
)

// state is a slot's position in the Idle/Candidate/Open/Closing machine.
type state int

const (
	stateIdle state = iota
	stateCandidate
	stateOpen
)

// slotAssignCutoff is the maximum vertical-centre distance, as a fraction of
// frame height, at which a region may be assigned to an existing slot.
const slotAssignCutoff = 0.15

// mergeOverlapFraction is the bbox-overlap threshold above which two Open
// segments are merged.
const mergeOverlapFraction = 0.70

// roiAreaFraction, minDimensionPx and minSegmentSpan are the combined
// minimum-viability floor a closed segment must clear before it is emitted:
// an anchor smaller than 0.1% of the resolved region of interest, thinner
// than 15px in either dimension, or spanning less time than the larger of
// 200ms and half a confirmation window is flicker or noise, not subtitle text.
// roiAreaFraction is checked against the resolved ROI's pixel area rather
// than the full frame, so it stays meaningful under a narrowed ROI.
const roiAreaFraction = 0.001
const minDimensionPx = 15
const minSegmentSpan = 200 * time.Millisecond

// Segment is a closed subtitle interval ready for OCR. AnchorPlane is a
// cropped copy of the anchor frame's pixels (rect normalised to its own
// origin) so OCR can run without holding a reference to the originating
// decoder plane.
type Segment struct {
	Slot           int
	StartPTS       time.Duration
	EndPTS         time.Duration
	AnchorRect     luma.PixelRect
	AnchorPlane    luma.Plane
	AnchorFeature  comparator.Feature
	BestConfidence float64
}

// slot tracks one persistent region lineage across samples.
type slot struct {
	st state

	seen int // consecutive matching samples while Candidate

	startPTS       time.Duration
	lastSeenPTS    time.Duration
	anchorRect     luma.PixelRect
	anchorPlane    luma.Plane
	anchorFeature  comparator.Feature
	bestConfidence float64

	missStreak int
}

func (s *slot) vcenter() float64 {
	return float64(s.anchorRect.Y) + float64(s.anchorRect.Height)/2
}

// Segmenter runs the per-slot state machine: a region seen across K
// consecutive matching samples opens a segment, M consecutive misses close
// it, and the best-confidence sighting becomes the anchor handed to OCR.
type Segmenter struct {
	cmp          comparator.Comparator
	k            int
	m            int
	slotCount    int
	samplePeriod time.Duration

	roi       luma.Roi
	roiAreaPx int

	slots   []slot
	history *history

	lastPTS   time.Duration
	seeded    bool
	opened    atomic.Uint64
	discarded atomic.Uint64
}

// New constructs a Segmenter. k is the consecutive-match count to confirm an
// Open segment, m the consecutive-miss count to confirm a close, slotCount
// the number of concurrent region lineages tracked (1..4), samplePeriod the
// Sampler's fixed cadence (used for the flicker-span floor and the
// half-period close offset). roi is the Detector's configured region of
// interest, resolved against each sample's frame dimensions to size the
// minimum-viability area floor.
func New(cmp comparator.Comparator, k, m, slotCount int, samplePeriod time.Duration, roi luma.Roi) *Segmenter {
	return &Segmenter{
		cmp:          cmp,
		k:            k,
		m:            m,
		slotCount:    slotCount,
		samplePeriod: samplePeriod,
		roi:          roi,
		slots:        make([]slot, slotCount),
		history:      newHistory(4),
	}
}

// Opened returns the number of segments confirmed Open so far.
func (s *Segmenter) Opened() uint64 { return s.opened.Load() }

// Discarded returns the number of closed segments dropped by the
// minimum-viability floor instead of being emitted.
func (s *Segmenter) Discarded() uint64 { return s.discarded.Load() }

// candidateRegion pairs a detector Region with its extracted feature for one
// sample.
type candidateRegion struct {
	region  detector.Region
	feature comparator.Feature
}

// Step feeds one sample's detector regions (with their pre-extracted
// comparator features) through the state machine and returns any segments
// that closed as a result of this sample. plane is the full sampled frame,
// used only to crop a retained copy behind whichever region becomes (or
// stays) a slot's anchor. A sample repeating the previous pts is ignored,
// so replaying a sample changes no state.
func (s *Segmenter) Step(pts time.Duration, plane luma.Plane, regions []detector.Region, features []comparator.Feature, frameWidth, frameHeight int) []Segment {
	if len(regions) != len(features) {
		panic("segmenter: regions and features must be the same length")
	}
	if s.seeded && pts == s.lastPTS {
		return nil
	}
	s.seeded = true
	s.lastPTS = pts

	if frameWidth > 0 && frameHeight > 0 {
		s.roiAreaPx = s.roi.Resolve(frameWidth, frameHeight).Area()
	}

	cand := make([]candidateRegion, len(regions))
	for i := range regions {
		cand[i] = candidateRegion{region: regions[i], feature: features[i]}
	}
	s.history.push(pts, cand)

	assignment, usedRegion := s.assignByDistance(cand, frameHeight)

	var closed []Segment
	for i := range s.slots {
		sl := &s.slots[i]
		regionIdx, ok := assignment[i]

		switch sl.st {
		case stateIdle:
			// handled below via leftover regions

		case stateCandidate:
			if ok && s.cmp.Compare(sl.anchorFeature, cand[regionIdx].feature).SameSegment {
				sl.seen++
				if cand[regionIdx].region.Confidence > sl.bestConfidence {
					sl.bestConfidence = cand[regionIdx].region.Confidence
					sl.anchorRect = cand[regionIdx].region.Rect
					sl.anchorFeature = cand[regionIdx].feature
					sl.anchorPlane = cropPlane(plane, cand[regionIdx].region.Rect)
				}
				sl.lastSeenPTS = pts
				if sl.seen >= s.k {
					sl.st = stateOpen
					sl.startPTS = s.determineStart(i, pts)
					sl.missStreak = 0
					s.opened.Add(1)
				}
			} else {
				*sl = slot{}
			}

		case stateOpen:
			if ok && s.cmp.Compare(sl.anchorFeature, cand[regionIdx].feature).SameSegment {
				sl.missStreak = 0
				sl.lastSeenPTS = pts
				if cand[regionIdx].region.Confidence > sl.bestConfidence {
					sl.bestConfidence = cand[regionIdx].region.Confidence
					sl.anchorRect = cand[regionIdx].region.Rect
					sl.anchorFeature = cand[regionIdx].feature
					sl.anchorPlane = cropPlane(plane, cand[regionIdx].region.Rect)
				}
			} else {
				sl.missStreak++
				if sl.missStreak >= s.m {
					if seg, emit := s.closeSlot(i, pts, sl.lastSeenPTS); emit {
						closed = append(closed, seg)
					}
					*sl = slot{}
				}
			}
		}
	}

	// Leftover unmatched regions open fresh Candidates in free slots.
	for idx, c := range cand {
		if usedRegion[idx] {
			continue
		}
		for i := range s.slots {
			if s.slots[i].st == stateIdle {
				s.slots[i] = slot{
					st:             stateCandidate,
					seen:           1,
					startPTS:       pts,
					lastSeenPTS:    pts,
					anchorRect:     c.region.Rect,
					anchorFeature:  c.feature,
					anchorPlane:    cropPlane(plane, c.region.Rect),
					bestConfidence: c.region.Confidence,
				}
				break
			}
		}
	}

	closed = append(closed, s.mergeOverlappingOpen()...)
	return closed
}

// Flush closes every still-Open slot at end of stream.
func (s *Segmenter) Flush(lastPTS time.Duration) []Segment {
	var closed []Segment
	for i := range s.slots {
		sl := &s.slots[i]
		if sl.st == stateOpen {
			if seg, emit := s.closeSlot(i, lastPTS, sl.lastSeenPTS); emit {
				closed = append(closed, seg)
			}
		}
		*sl = slot{}
	}
	return closed
}

// closeSlot builds the Closing transition: applies end-pts refinement and
// the minimum-viability floor (ROI area fraction, per-dimension size, and
// span), dropping anything that fails it instead of emitting.
func (s *Segmenter) closeSlot(i int, pts, lastSeenPTS time.Duration) (Segment, bool) {
	sl := &s.slots[i]
	endPTS := s.refineEnd(i, lastSeenPTS)

	if s.roiAreaPx > 0 && float64(sl.anchorRect.Area()) < roiAreaFraction*float64(s.roiAreaPx) {
		s.discarded.Add(1)
		return Segment{}, false
	}
	if sl.anchorRect.Width < minDimensionPx || sl.anchorRect.Height < minDimensionPx {
		s.discarded.Add(1)
		return Segment{}, false
	}

	span := endPTS - sl.startPTS
	minSpan := time.Duration(float64(s.samplePeriod) * float64(s.k) / 2)
	if minSpan < minSegmentSpan {
		minSpan = minSegmentSpan
	}
	if span < minSpan {
		s.discarded.Add(1)
		return Segment{}, false
	}

	return Segment{
		Slot:           i,
		StartPTS:       sl.startPTS,
		EndPTS:         endPTS,
		AnchorRect:     sl.anchorRect,
		AnchorPlane:    sl.anchorPlane,
		AnchorFeature:  sl.anchorFeature,
		BestConfidence: sl.bestConfidence,
	}, true
}

// cropPlane copies the pixels under rect into a new, independently-owned
// plane with its origin normalised to (0,0), so a retained anchor never
// keeps the full decoder frame alive.
func cropPlane(plane luma.Plane, rect luma.PixelRect) luma.Plane {
	data := make([]byte, rect.Width*rect.Height)
	for y := 0; y < rect.Height; y++ {
		row := plane.Row(rect.Y + y)
		copy(data[y*rect.Width:(y+1)*rect.Width], row[rect.X:rect.X+rect.Width])
	}
	return luma.Plane{Width: rect.Width, Height: rect.Height, Stride: rect.Width, Data: data, PTS: plane.PTS}
}

// assignByDistance is a greedy bipartite vertical-centre match: candidate
// (slot, region) pairs within slotAssignCutoff of frame height, consumed in
// ascending distance order, each slot and region used at most once.
func (s *Segmenter) assignByDistance(cand []candidateRegion, frameHeight int) (map[int]int, map[int]bool) {
	type pair struct {
		slot, region int
		dist         float64
	}
	var pairs []pair
	cutoff := slotAssignCutoff * float64(frameHeight)

	for si := range s.slots {
		if s.slots[si].st == stateIdle {
			continue
		}
		sv := s.slots[si].vcenter()
		for ri, c := range cand {
			rv := float64(c.region.Rect.Y) + float64(c.region.Rect.Height)/2
			d := sv - rv
			if d < 0 {
				d = -d
			}
			if d <= cutoff {
				pairs = append(pairs, pair{slot: si, region: ri, dist: d})
			}
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].dist < pairs[j].dist })

	assignment := make(map[int]int)
	usedSlot := make(map[int]bool)
	usedRegion := make(map[int]bool)
	for _, p := range pairs {
		if usedSlot[p.slot] || usedRegion[p.region] {
			continue
		}
		assignment[p.slot] = p.region
		usedSlot[p.slot] = true
		usedRegion[p.region] = true
	}
	return assignment, usedRegion
}

// mergeOverlappingOpen merges Open slots whose anchor bounding boxes overlap
// by at least mergeOverlapFraction; the lower-confidence slot is folded into
// the higher one (shared anchor, max span) and freed.
func (s *Segmenter) mergeOverlappingOpen() []Segment {
	for i := 0; i < len(s.slots); i++ {
		if s.slots[i].st != stateOpen {
			continue
		}
		for j := i + 1; j < len(s.slots); j++ {
			if s.slots[j].st != stateOpen {
				continue
			}
			a, b := &s.slots[i], &s.slots[j]
			inter := a.anchorRect.IntersectionArea(b.anchorRect)
			smaller := a.anchorRect.Area()
			if b.anchorRect.Area() < smaller {
				smaller = b.anchorRect.Area()
			}
			if smaller == 0 || float64(inter)/float64(smaller) < mergeOverlapFraction {
				continue
			}
			winner, loser := a, b
			if b.bestConfidence > a.bestConfidence {
				winner, loser = b, a
			}
			if loser.startPTS < winner.startPTS {
				winner.startPTS = loser.startPTS
			}
			if loser.lastSeenPTS > winner.lastSeenPTS {
				winner.lastSeenPTS = loser.lastSeenPTS
			}
			*loser = slot{}
		}
	}
	return nil
}
