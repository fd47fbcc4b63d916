// Package synthetic provides an in-process Decoder that manufactures luma
// planes instead of decoding real video, so the pipeline can be exercised
// without an input file or a GStreamer runtime.
package synthetic

import (
	"context"
	"time"

	"github.com/care/hardsub/internal/decoder"
	"github.com/care/hardsub/internal/luma"
)

// Band describes a bright rectangle present for a contiguous pts range,
// used by tests to script a subtitle's lifetime.
type Band struct {
	Rect          luma.PixelRect
	Start, End    time.Duration
	Target, Delta uint8
}

// Decoder manufactures a fixed-length, fixed-framerate stream of frames
// with zero or more Bands painted onto an otherwise dark plane.
type Decoder struct {
	Width, Height int
	FPS           float64
	Duration      time.Duration
	Bands         []Band
}

// New constructs a synthetic Decoder.
func New(width, height int, fps float64, duration time.Duration, bands ...Band) *Decoder {
	return &Decoder{Width: width, Height: height, FPS: fps, Duration: duration, Bands: bands}
}

// Open implements decoder.Decoder. inputPath is ignored.
func (d *Decoder) Open(ctx context.Context, _ string) (decoder.Stream, error) {
	s := &stream{out: make(chan decoder.Frame, 32)}
	go s.run(ctx, d)
	return s, nil
}

type stream struct {
	out chan decoder.Frame
}

func (s *stream) Frames() <-chan decoder.Frame { return s.out }
func (s *stream) Close() error                 { return nil }

func (s *stream) run(ctx context.Context, d *Decoder) {
	defer close(s.out)
	frameInterval := time.Duration(float64(time.Second) / d.FPS)
	frameCount := int(d.Duration / frameInterval)

	for i := 0; i < frameCount; i++ {
		pts := time.Duration(i) * frameInterval
		data := make([]byte, d.Width*d.Height)
		for _, b := range d.Bands {
			if pts < b.Start || pts > b.End {
				continue
			}
			paint(data, d.Width, d.Height, b.Rect, b.Target)
		}
		plane := luma.Plane{Width: d.Width, Height: d.Height, Stride: d.Width, Data: data, PTS: pts}

		select {
		case s.out <- decoder.Frame{Plane: plane}:
		case <-ctx.Done():
			return
		}
	}
}

func paint(data []byte, w, h int, rect luma.PixelRect, value uint8) {
	for y := rect.Y; y < rect.Y+rect.Height && y < h; y++ {
		if y < 0 {
			continue
		}
		for x := rect.X; x < rect.X+rect.Width && x < w; x++ {
			if x < 0 {
				continue
			}
			data[y*w+x] = value
		}
	}
}

var _ decoder.Decoder = (*Decoder)(nil)
