package segmenter

import "time"

// history is a small ring buffer of recent samples, kept so the state
// machine can look further back than the K/M counters alone would let it:
// pulling in lead-in frames skipped during confirmation, and checking for
// trailing evidence before committing an end_pts.
type history struct {
	entries []historyEntry
	cap     int
}

type historyEntry struct {
	pts    time.Duration
	region []candidateRegion
}

func newHistory(capacity int) *history {
	return &history{cap: capacity}
}

func (h *history) push(pts time.Duration, cand []candidateRegion) {
	h.entries = append(h.entries, historyEntry{pts: pts, region: cand})
	if len(h.entries) > h.cap {
		h.entries = h.entries[1:]
	}
}

// determineStart backtracks past the K samples already counted toward
// confirming slot i's Candidate, looking for earlier contiguous samples
// where some region already matched the slot's (about-to-be-final) anchor.
// Matching history gets folded into start_pts so the emitted segment isn't
// clipped by the confirmation delay.
func (s *Segmenter) determineStart(i int, confirmedAt time.Duration) time.Duration {
	sl := &s.slots[i]
	start := sl.startPTS

	for idx := len(s.history.entries) - 1; idx >= 0; idx-- {
		e := s.history.entries[idx]
		if e.pts >= confirmedAt {
			continue
		}
		if e.pts >= start {
			continue
		}
		matched := false
		for _, c := range e.region {
			if s.cmp.Compare(sl.anchorFeature, c.feature).SameSegment {
				matched = true
				break
			}
		}
		if !matched {
			break
		}
		start = e.pts
	}
	return start
}

// refineEnd scans the miss-streak window for a trailing sample that still
// verdicts same_segment against the anchor, and extends the close point to
// that sample instead of cutting off on the strictest possible
// last_seen_pts. Only the strict verdict counts, the same threshold
// determineStart applies backtracking in the other direction.
func (s *Segmenter) refineEnd(i int, lastSeenPTS time.Duration) time.Duration {
	sl := &s.slots[i]
	end := lastSeenPTS + s.samplePeriod/2

	for idx := len(s.history.entries) - 1; idx >= 0; idx-- {
		e := s.history.entries[idx]
		if e.pts <= lastSeenPTS {
			break
		}
		matched := false
		for _, c := range e.region {
			if s.cmp.Compare(sl.anchorFeature, c.feature).SameSegment {
				matched = true
				break
			}
		}
		if matched {
			candidate := e.pts + s.samplePeriod/2
			if candidate > end {
				end = candidate
			}
		}
	}
	return end
}
