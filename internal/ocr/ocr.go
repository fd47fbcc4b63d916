// Package ocr runs recognition on closed segments and delivers results
// back to the writer in monotonic segment-start order.
package ocr

import (
	"context"
	"fmt"

	"github.com/care/hardsub/internal/luma"
)

// Fragment is one recognised text span within a rectangle, with an optional
// confidence (negative means "not reported").
type Fragment struct {
	Text       string
	Confidence float64
}

// Engine is the OCR backend contract: a warm-up called once before the
// first recognition, and a batched recognition call over one plane and a
// set of pixel rectangles.
type Engine interface {
	WarmUp(ctx context.Context) error
	Recognize(ctx context.Context, plane luma.Plane, rects []luma.PixelRect) ([][]Fragment, error)
}

// New builds an Engine for the named backend. "auto" picks at construction
// time — the exec backend when a binary is configured, else noop — never
// via a runtime latency probe.
func New(name string, execBinary string) (Engine, error) {
	switch name {
	case "noop":
		return NoopEngine{}, nil
	case "exec":
		if execBinary == "" {
			return nil, fmt.Errorf("ocr: exec backend requires a binary path")
		}
		return NewExecEngine(execBinary), nil
	case "auto", "":
		if execBinary != "" {
			return NewExecEngine(execBinary), nil
		}
		return NoopEngine{}, nil
	default:
		return nil, fmt.Errorf("ocr: unknown backend %q", name)
	}
}

// NoopEngine recognises nothing; it exists so a pipeline can run end to end
// without a real OCR dependency, and as the auto backend's last resort.
type NoopEngine struct{}

// WarmUp implements Engine.
func (NoopEngine) WarmUp(ctx context.Context) error { return nil }

// Recognize implements Engine: returns an empty fragment list per rect.
func (NoopEngine) Recognize(ctx context.Context, plane luma.Plane, rects []luma.PixelRect) ([][]Fragment, error) {
	return make([][]Fragment, len(rects)), nil
}
