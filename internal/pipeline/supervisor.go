package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/care/hardsub/internal/comparator"
	"github.com/care/hardsub/internal/decoder"
	"github.com/care/hardsub/internal/detector"
	"github.com/care/hardsub/internal/ocr"
	"github.com/care/hardsub/internal/segmenter"
	"github.com/care/hardsub/internal/settings"
	"github.com/care/hardsub/internal/srt"
)

// Channel capacities between the stages this package owns. The
// decoder-to-sampler capacity lives with the decoder adapters themselves
// (their Stream implementations size their own output channel), and the
// segmenter-to-OCR bound is the Dispatcher's own P+2 queue.
const (
	samplerToDetectorCap   = 16
	detectorToSegmenterCap = 8
)

// Supervisor owns one run of the extraction pipeline end to end: it wires
// the Decoder, Sampler, Detector, Segmenter, OCR Dispatcher, and SRT Writer
// together through bounded channels, and aggregates the run counters.
type Supervisor struct {
	dec        decoder.Decoder
	det        detector.Detector
	cmp        comparator.Comparator
	eng        ocr.Engine
	seg        *segmenter.Segmenter
	dispatcher *ocr.Dispatcher
	writer     *srt.Writer
	settings   settings.Settings
	log        *slog.Logger
	runID      string

	stats RunStats

	mu     sync.Mutex
	wg     sync.WaitGroup
	runErr error
}

// New constructs a Supervisor from already-built stage components; callers
// assemble the Detector/Comparator/Engine via their respective New(name,...)
// factories and pass the results in, so configuration errors surface before
// any goroutine starts rather than mid-run.
func New(dec decoder.Decoder, det detector.Detector, cmp comparator.Comparator, eng ocr.Engine, st settings.Settings, log *slog.Logger) *Supervisor {
	samplePeriod := time.Duration(st.Detection.SamplePeriod() * float64(time.Second))
	seg := segmenter.New(cmp, st.Segmenter.ConfirmOpenK, st.Segmenter.ConfirmCloseM, st.Segmenter.SlotCount, samplePeriod, st.Detection.Roi)
	timeout := time.Duration(st.Ocr.PerSegmentTimeoutMs) * time.Millisecond
	dispatcher := ocr.NewDispatcher(eng, st.Ocr.ConcurrencyP, timeout, log)
	runID := uuid.NewString()

	return &Supervisor{
		dec:        dec,
		det:        det,
		cmp:        cmp,
		eng:        eng,
		seg:        seg,
		dispatcher: dispatcher,
		writer:     srt.NewWriter(st.OutputPath, runID),
		settings:   st,
		log:        log,
		runID:      runID,
	}
}

// RunID returns the correlation id generated for this Supervisor, used in
// log lines and the staged SRT temp file name.
func (s *Supervisor) RunID() string { return s.runID }

// Stats returns a snapshot of the run counters, merging in the counters the
// segmenter and dispatcher track themselves.
func (s *Supervisor) Stats() Snapshot {
	snap := s.stats.Snapshot()
	snap.SegmentsOpened = s.seg.Opened()
	snap.SegmentsDiscarded = s.seg.Discarded()
	snap.OcrRecoverable = s.dispatcher.RecoverableFailures()
	return snap
}

// Run drives one extraction end to end: decode, sample, detect, segment,
// recognize, write. It blocks until the input is exhausted (or ctx is
// cancelled) and the SRT file has been flushed.
func (s *Supervisor) Run(ctx context.Context, inputPath string) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.eng.WarmUp(runCtx); err != nil {
		return &ocr.WarmUpError{Err: err}
	}

	stream, err := s.dec.Open(runCtx, inputPath)
	if err != nil {
		return s.asDecoderError(inputPath, err)
	}
	defer stream.Close()

	sampleCh := make(chan Sample, samplerToDetectorCap)
	type detectionBatch struct {
		sample  Sample
		regions []detector.Region
	}
	detectCh := make(chan detectionBatch, detectorToSegmenterCap)

	if s.log != nil {
		s.log.Info("pipeline starting", "run_id", s.runID, "input", inputPath)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(sampleCh)
		sampler := NewSampler(s.settings.Detection.SamplesPerSecond)
		for frame := range stream.Frames() {
			if frame.Err != nil {
				// A terminal decode error ends the input but the rest of the
				// pipeline still drains: open segments are force-closed at
				// the last seen pts, their cues recognized and written, and
				// the file finalised before the error is surfaced.
				s.setRunErr(frame.Err)
				return
			}
			s.stats.incFramesDecoded()
			sample, emitted, anom := sampler.Push(frame.Plane)
			if anom == anomalyPTSRegression {
				s.stats.incDetectorAnomaly()
				continue
			}
			if !emitted {
				continue
			}
			s.stats.incSamplesEmitted()
			select {
			case sampleCh <- sample:
			case <-runCtx.Done():
				return
			}
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(detectCh)
		for sample := range sampleCh {
			regions, err := s.det.Detect(sample.Plane, s.settings.Detection.Roi)
			if err != nil {
				s.stats.incDetectorAnomaly()
				continue
			}
			select {
			case detectCh <- detectionBatch{sample: sample, regions: regions}:
			case <-runCtx.Done():
				return
			}
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		var lastPTS time.Duration
		for batch := range detectCh {
			regions := make([]detector.Region, 0, len(batch.regions))
			features := make([]comparator.Feature, 0, len(batch.regions))
			for _, r := range batch.regions {
				f, err := s.cmp.Extract(batch.sample.Plane, r.Rect)
				if err != nil {
					s.stats.incDetectorAnomaly()
					continue
				}
				regions = append(regions, r)
				features = append(features, f)
			}
			lastPTS = batch.sample.Plane.PTS
			closed := s.seg.Step(batch.sample.Plane.PTS, batch.sample.Plane, regions, features, batch.sample.Plane.Width, batch.sample.Plane.Height)
			for _, seg := range closed {
				s.stats.incSegmentClosed()
				job := ocr.Job{Segment: seg, Plane: seg.AnchorPlane}
				if err := s.dispatcher.Submit(runCtx, job); err != nil {
					s.dispatcher.Close()
					return
				}
			}
		}
		for _, seg := range s.seg.Flush(lastPTS) {
			s.stats.incSegmentClosed()
			job := ocr.Job{Segment: seg, Plane: seg.AnchorPlane}
			_ = s.dispatcher.Submit(runCtx, job)
		}
		s.dispatcher.Close()
	}()

	go s.dispatcher.Run(runCtx, s.settings.Ocr.ConcurrencyP)

	for {
		select {
		case result, ok := <-s.dispatcher.Out:
			if !ok {
				s.wg.Wait()
				if err := s.writer.Flush(); err != nil {
					return err
				}
				if runErr := s.getRunErr(); runErr != nil {
					return s.asDecoderError(inputPath, runErr)
				}
				if s.log != nil {
					snap := s.Stats()
					s.log.Info("pipeline finished",
						"frames_decoded", snap.FramesDecoded,
						"samples_emitted", snap.SamplesEmitted,
						"segments_closed", snap.SegmentsClosed,
						"cues_written", snap.CuesWritten,
					)
				}
				return nil
			}
			s.writer.Append(result.Segment.StartPTS, result.Segment.EndPTS, result.Text)
			s.stats.incCueWritten()
		case fatal := <-s.dispatcher.Fatal():
			cancel()
			return fatal
		}
	}
}

// asDecoderError wraps err as a FailedError unless it already is one.
func (s *Supervisor) asDecoderError(inputPath string, err error) error {
	var failed *decoder.FailedError
	if errors.As(err, &failed) {
		return err
	}
	return &decoder.FailedError{Path: inputPath, Err: err}
}

func (s *Supervisor) setRunErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runErr == nil {
		s.runErr = err
	}
}

func (s *Supervisor) getRunErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runErr
}
