// Package decoder defines the external decoder contract consumed by the
// pipeline: open a file, get back a finite stream of luma planes in
// presentation order, terminated by either end-of-stream or a terminal
// error.
package decoder

import (
	"context"

	"github.com/care/hardsub/internal/luma"
)

// Frame is one element of a decoder's output stream: exactly one of Plane
// or Err is meaningful for a given element; Err marks stream termination.
type Frame struct {
	Plane luma.Plane
	Err   error
}

// Stream is a finite, presentation-ordered sequence of decoded frames.
type Stream interface {
	// Frames returns the channel frames arrive on. It is closed once the
	// stream ends, with the last element (if any) carrying a non-nil Err
	// when termination was caused by a decode failure.
	Frames() <-chan Frame
	// Close releases the decoder's resources. Safe to call after the
	// Frames channel has closed; safe to call to cancel early.
	Close() error
}

// Decoder opens an input file and produces a Stream.
type Decoder interface {
	Open(ctx context.Context, inputPath string) (Stream, error)
}

// FailedError wraps a decoder initialisation or mid-stream failure, mapped
// to exit code 3 by the CLI.
type FailedError struct {
	Path string
	Err  error
}

func (e *FailedError) Error() string {
	return "decoder: " + e.Path + ": " + e.Err.Error()
}

func (e *FailedError) Unwrap() error { return e.Err }
