package pipeline

import "sync/atomic"

// RunStats accumulates the counters the supervisor owns directly. Each
// counter is an independent atomic incremented off the hot path and read
// only at shutdown or by the progress poller; the segmenter and dispatcher
// keep their own counters, merged into the Snapshot by Supervisor.Stats.
type RunStats struct {
	framesDecoded     atomic.Uint64
	samplesEmitted    atomic.Uint64
	detectorAnomalies atomic.Uint64
	segmentsClosed    atomic.Uint64
	cuesWritten       atomic.Uint64
}

func (s *RunStats) incFramesDecoded()   { s.framesDecoded.Add(1) }
func (s *RunStats) incSamplesEmitted()  { s.samplesEmitted.Add(1) }
func (s *RunStats) incDetectorAnomaly() { s.detectorAnomalies.Add(1) }
func (s *RunStats) incSegmentClosed()   { s.segmentsClosed.Add(1) }
func (s *RunStats) incCueWritten()      { s.cuesWritten.Add(1) }

// Snapshot is a point-in-time, non-live copy of the run counters suitable
// for logging or display at shutdown.
type Snapshot struct {
	FramesDecoded     uint64
	SamplesEmitted    uint64
	DetectorAnomalies uint64
	SegmentsOpened    uint64
	SegmentsClosed    uint64
	SegmentsDiscarded uint64
	OcrRecoverable    uint64
	CuesWritten       uint64
}

// Snapshot returns the current counter values. Safe for concurrent use with
// any of the increment methods.
func (s *RunStats) Snapshot() Snapshot {
	return Snapshot{
		FramesDecoded:     s.framesDecoded.Load(),
		SamplesEmitted:    s.samplesEmitted.Load(),
		DetectorAnomalies: s.detectorAnomalies.Load(),
		SegmentsClosed:    s.segmentsClosed.Load(),
		CuesWritten:       s.cuesWritten.Load(),
	}
}
