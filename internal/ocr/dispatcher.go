package ocr

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/care/hardsub/internal/luma"
	"github.com/care/hardsub/internal/segmenter"
)

// maxConsecutiveFailures is the recognition-failure streak treated as fatal.
const maxConsecutiveFailures = 16

// Job is one closed segment awaiting recognition, paired with its anchor
// plane: the cropped copy of the anchor rectangle's pixels, recognised as a
// whole.
type Job struct {
	Segment segmenter.Segment
	Plane   luma.Plane
}

// Result is a recognised segment, ready for the SRT writer.
type Result struct {
	Segment segmenter.Segment
	Text    string
}

// Dispatcher runs up to P recognitions concurrently and reorders results
// into start_pts-ascending order before they reach Out. Admission into the
// worker pool is the pipeline's only OCR-stage backpressure point: Submit
// blocks once P+2 jobs are queued behind the P being recognised, which in
// turn blocks the Segmenter
// and, transitively, the whole pipeline.
//
// The reordering mailbox holds a small completed-but-not-yet-emittable
// set, and the emitter blocks on a condition variable until the set's
// minimum start_pts is provably safe to release. A job counts against that
// safety check from the moment it is submitted, not from the moment a
// worker picks it up, so a job still sitting in the bounded queue can
// never be overtaken by a later-start result.
type Dispatcher struct {
	engine Engine
	log    *slog.Logger

	in  chan Job
	Out chan Result

	perSegmentTimeout time.Duration

	mu       sync.Mutex
	cond     *sync.Cond
	pending  map[time.Duration]int // start_pts -> submitted-but-unfinished count
	ready    []Result
	draining bool

	consecutiveFailures int
	recoverable         atomic.Uint64
	fatalOnce           sync.Once
	fatalCh             chan error
}

// NewDispatcher constructs a Dispatcher. p is the worker concurrency,
// perSegmentTimeout the soft deadline after which a recognition call is
// treated as a failure (empty-text cue, not an abort).
func NewDispatcher(engine Engine, p int, perSegmentTimeout time.Duration, log *slog.Logger) *Dispatcher {
	if p < 1 {
		p = 1
	}
	d := &Dispatcher{
		engine:            engine,
		log:               log,
		in:                make(chan Job, p+2),
		Out:               make(chan Result, p+2),
		perSegmentTimeout: perSegmentTimeout,
		pending:           make(map[time.Duration]int),
		fatalCh:           make(chan error, 1),
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Submit enqueues a job, blocking (propagating backpressure) once the
// bounded queue is full.
func (d *Dispatcher) Submit(ctx context.Context, job Job) error {
	d.addPending(job.Segment.StartPTS)
	select {
	case d.in <- job:
		return nil
	case <-ctx.Done():
		d.removePending(job.Segment.StartPTS)
		return ctx.Err()
	}
}

// Close stops accepting new jobs; already-queued jobs still drain through
// the worker pool before Run returns.
func (d *Dispatcher) Close() {
	close(d.in)
}

// Fatal returns a channel that receives the fatal OCR error, if any,
// exactly once: a streak of maxConsecutiveFailures recognition failures
// shuts the pipeline down rather than emitting empty cues forever.
func (d *Dispatcher) Fatal() <-chan error { return d.fatalCh }

// RecoverableFailures returns the number of single-segment recognition
// failures absorbed so far (each produced an empty-text cue).
func (d *Dispatcher) RecoverableFailures() uint64 { return d.recoverable.Load() }

// Run starts p worker goroutines and the reorder emitter, and blocks until
// every admitted job has drained (after Close) or ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, p int) {
	var wg sync.WaitGroup
	wg.Add(p)
	for i := 0; i < p; i++ {
		go func() {
			defer wg.Done()
			d.worker(ctx)
		}()
	}

	go func() {
		wg.Wait()
		d.mu.Lock()
		d.draining = true
		d.cond.Broadcast()
		d.mu.Unlock()
	}()

	d.emit(ctx)
}

func (d *Dispatcher) worker(ctx context.Context) {
	for {
		var job Job
		var ok bool
		select {
		case job, ok = <-d.in:
			if !ok {
				return
			}
		case <-ctx.Done():
			return
		}

		text := d.recognizeOne(ctx, job)

		d.mu.Lock()
		d.removePendingLocked(job.Segment.StartPTS)
		d.ready = append(d.ready, Result{Segment: job.Segment, Text: text})
		d.cond.Broadcast()
		d.mu.Unlock()
	}
}

// recognizeOne runs one recognition with the soft per-segment timeout,
// logging failures and returning an empty-text cue rather than propagating
// the error, while tracking the consecutive-failure streak that escalates
// to a fatal shutdown.
func (d *Dispatcher) recognizeOne(ctx context.Context, job Job) string {
	callCtx := ctx
	var cancel context.CancelFunc
	if d.perSegmentTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, d.perSegmentTimeout)
		defer cancel()
	}

	rect := luma.PixelRect{Width: job.Plane.Width, Height: job.Plane.Height}
	fragments, err := d.engine.Recognize(callCtx, job.Plane, []luma.PixelRect{rect})
	if err != nil || len(fragments) == 0 {
		d.recordFailure(err)
		return ""
	}

	d.recordSuccess()
	text := ""
	for _, f := range fragments[0] {
		if text != "" {
			text += " "
		}
		text += f.Text
	}
	return text
}

func (d *Dispatcher) recordFailure(err error) {
	d.recoverable.Add(1)
	d.mu.Lock()
	d.consecutiveFailures++
	n := d.consecutiveFailures
	d.mu.Unlock()

	if d.log != nil {
		d.log.Warn("ocr recognition failed", "error", err, "consecutive_failures", n)
	}
	if n >= maxConsecutiveFailures {
		d.fatalOnce.Do(func() {
			d.fatalCh <- errFatal(n)
		})
	}
}

func (d *Dispatcher) recordSuccess() {
	d.mu.Lock()
	d.consecutiveFailures = 0
	d.mu.Unlock()
}

func (d *Dispatcher) addPending(startPTS time.Duration) {
	d.mu.Lock()
	d.pending[startPTS]++
	d.mu.Unlock()
}

func (d *Dispatcher) removePending(startPTS time.Duration) {
	d.mu.Lock()
	d.removePendingLocked(startPTS)
	d.cond.Broadcast()
	d.mu.Unlock()
}

// removePendingLocked must be called with mu held.
func (d *Dispatcher) removePendingLocked(startPTS time.Duration) {
	if d.pending[startPTS] <= 1 {
		delete(d.pending, startPTS)
	} else {
		d.pending[startPTS]--
	}
}

// emit releases completed results in start_pts-ascending order, waiting
// whenever an earlier submitted job could still finish with a smaller
// start_pts than the smallest one currently ready.
func (d *Dispatcher) emit(ctx context.Context) {
	defer close(d.Out)
	for {
		d.mu.Lock()
		for {
			if len(d.ready) == 0 {
				if d.draining {
					d.mu.Unlock()
					return
				}
				d.cond.Wait()
				continue
			}
			minReadyIdx := minResultIndex(d.ready)
			if d.safeToEmit(d.ready[minReadyIdx].Segment.StartPTS) || d.draining {
				break
			}
			d.cond.Wait()
		}
		idx := minResultIndex(d.ready)
		r := d.ready[idx]
		d.ready = append(d.ready[:idx], d.ready[idx+1:]...)
		d.mu.Unlock()

		select {
		case d.Out <- r:
		case <-ctx.Done():
			return
		}
	}
}

// safeToEmit must be called with mu held: true when no submitted-but-
// unfinished job could still produce an earlier start_pts.
func (d *Dispatcher) safeToEmit(startPTS time.Duration) bool {
	for pendingStart := range d.pending {
		if pendingStart < startPTS {
			return false
		}
	}
	return true
}

func minResultIndex(results []Result) int {
	best := 0
	for i := 1; i < len(results); i++ {
		if results[i].Segment.StartPTS < results[best].Segment.StartPTS {
			best = i
		}
	}
	return best
}
