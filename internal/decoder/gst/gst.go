// Package gst decodes an H.264 file into a stream of luma planes using
// GStreamer, with a fixed, finite demux chain:
// filesrc ! qtdemux ! h264parse ! avdec_h264 ! videoconvert ! appsink.
package gst

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/care/hardsub/internal/decoder"
	"github.com/care/hardsub/internal/luma"
)

// Decoder opens local H.264-in-MP4/MOV files via GStreamer.
type Decoder struct {
	log *slog.Logger
}

// New constructs a file Decoder.
func New(log *slog.Logger) *Decoder {
	return &Decoder{log: log}
}

// Open implements decoder.Decoder.
func (d *Decoder) Open(ctx context.Context, inputPath string) (decoder.Stream, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, &decoder.FailedError{Path: inputPath, Err: fmt.Errorf("create pipeline: %w", err)}
	}

	filesrc, err := gst.NewElement("filesrc")
	if err != nil {
		return nil, &decoder.FailedError{Path: inputPath, Err: fmt.Errorf("create filesrc: %w", err)}
	}
	filesrc.SetProperty("location", inputPath)

	qtdemux, err := gst.NewElement("qtdemux")
	if err != nil {
		return nil, &decoder.FailedError{Path: inputPath, Err: fmt.Errorf("create qtdemux: %w", err)}
	}
	h264parse, err := gst.NewElement("h264parse")
	if err != nil {
		return nil, &decoder.FailedError{Path: inputPath, Err: fmt.Errorf("create h264parse: %w", err)}
	}
	avdec, err := gst.NewElement("avdec_h264")
	if err != nil {
		return nil, &decoder.FailedError{Path: inputPath, Err: fmt.Errorf("create avdec_h264: %w", err)}
	}
	avdec.SetProperty("max-threads", 0)
	videoconvert, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, &decoder.FailedError{Path: inputPath, Err: fmt.Errorf("create videoconvert: %w", err)}
	}
	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, &decoder.FailedError{Path: inputPath, Err: fmt.Errorf("create appsink: %w", err)}
	}
	appsink.SetProperty("sync", false)
	appsink.SetProperty("max-buffers", uint(8))
	appsink.SetProperty("drop", false)

	caps := gst.NewCapsFromString("video/x-raw,format=I420")
	appsink.SetProperty("caps", caps)

	if err := pipeline.AddMany(filesrc, qtdemux, h264parse, avdec, videoconvert, appsink.Element); err != nil {
		return nil, &decoder.FailedError{Path: inputPath, Err: fmt.Errorf("add elements: %w", err)}
	}
	if err := filesrc.Link(qtdemux); err != nil {
		return nil, &decoder.FailedError{Path: inputPath, Err: fmt.Errorf("link filesrc->qtdemux: %w", err)}
	}
	if err := gst.ElementLinkMany(h264parse, avdec, videoconvert, appsink.Element); err != nil {
		return nil, &decoder.FailedError{Path: inputPath, Err: fmt.Errorf("link decode chain: %w", err)}
	}

	// qtdemux has a dynamic video pad; link it to h264parse once it appears.
	qtdemux.Connect("pad-added", func(_ *gst.Element, pad *gst.Pad) {
		if len(pad.GetName()) < 5 || pad.GetName()[:5] != "video" {
			return
		}
		sinkPad := h264parse.GetStaticPad("sink")
		if sinkPad == nil {
			return
		}
		if ret := pad.Link(sinkPad); ret != gst.PadLinkOK {
			d.log.Error("gst: failed to link demuxed video pad", "ret", ret)
		}
	})

	s := &stream{
		pipeline: pipeline,
		sink:     appsink,
		out:      make(chan decoder.Frame, 32),
		stop:     make(chan struct{}),
		path:     inputPath,
		log:      d.log,
	}

	appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: s.onNewSample,
		EOSFunc:       s.onEOS,
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return nil, &decoder.FailedError{Path: inputPath, Err: fmt.Errorf("start pipeline: %w", err)}
	}

	go s.watchBus(ctx)

	return s, nil
}

type stream struct {
	pipeline *gst.Pipeline
	sink     *app.Sink
	out      chan decoder.Frame
	path     string
	log      *slog.Logger

	closed   atomic.Bool
	closeOut sync.Once
	stopOnce sync.Once
	stop     chan struct{}
}

func (s *stream) Frames() <-chan decoder.Frame { return s.out }

// finish closes the output channel exactly once: both the appsink's own EOS
// callback and the pipeline bus's EOS message can fire for the same
// end-of-stream, and early cancellation finishes the stream without either.
func (s *stream) finish() {
	s.closeOut.Do(func() { close(s.out) })
}

func (s *stream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.stopOnce.Do(func() { close(s.stop) })
	return s.pipeline.SetState(gst.StateNull)
}

func (s *stream) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}
	capsStruct := sample.GetCaps()
	width, height := capsDimensions(capsStruct)
	if width == 0 || height == 0 {
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	// I420's Y plane occupies the first width*height bytes, with stride
	// equal to width for byte-aligned dimensions (the common case here).
	yLen := width * height
	if len(data) < yLen {
		buffer.Unmap()
		return gst.FlowOK
	}
	yPlane := make([]byte, yLen)
	copy(yPlane, data[:yLen])
	buffer.Unmap()

	pts := time.Duration(buffer.PresentationTimestamp())

	plane := luma.Plane{Width: width, Height: height, Stride: width, Data: yPlane, PTS: pts}
	// Blocking send: a full channel must stall this GStreamer callback so
	// slow-consumer backpressure cascades all the way into the decode
	// chain. stop unblocks the wait on Close/cancellation instead of
	// dropping the frame.
	select {
	case s.out <- decoder.Frame{Plane: plane}:
	case <-s.stop:
	}
	return gst.FlowOK
}

func (s *stream) onEOS() {
	s.finish()
}

func (s *stream) watchBus(ctx context.Context) {
	bus := s.pipeline.GetBus()
	for {
		msg := bus.TimedPop(time.Second)
		if msg == nil {
			select {
			case <-ctx.Done():
				s.Close()
				s.finish()
				return
			default:
				continue
			}
		}
		switch msg.Type() {
		case gst.MessageEOS:
			s.finish()
			return
		case gst.MessageError:
			gerr := msg.ParseError()
			select {
			case s.out <- decoder.Frame{Err: &decoder.FailedError{Path: s.path, Err: gerr}}:
			case <-s.stop:
			}
			s.finish()
			return
		}
	}
}

func capsDimensions(caps *gst.Caps) (int, int) {
	if caps == nil || caps.GetSize() == 0 {
		return 0, 0
	}
	st := caps.GetStructureAt(0)
	if st == nil {
		return 0, 0
	}
	w, _ := st.GetValue("width")
	h, _ := st.GetValue("height")
	wi, _ := w.(int)
	hi, _ := h.(int)
	return wi, hi
}
