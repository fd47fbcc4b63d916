package ocr

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/care/hardsub/internal/luma"
)

// commandContext is overridable in tests so the engine can be exercised
// against a helper process instead of a real recognizer binary.
var commandContext = exec.CommandContext

// ExecEngine drives an external OCR CLI over stdin/stdout: one JSON request
// line in, one JSON response line out. It never parses the external tool's
// own format beyond that envelope, so swapping the underlying OCR model only
// means swapping the binary.
type ExecEngine struct {
	binary string
	args   []string
}

// NewExecEngine constructs an ExecEngine for the given binary.
func NewExecEngine(binary string, args ...string) *ExecEngine {
	return &ExecEngine{binary: binary, args: args}
}

// WarmUp runs the binary with a --warm-up flag and waits for it to exit
// zero. A non-zero exit or start failure is fatal.
func (e *ExecEngine) WarmUp(ctx context.Context) error {
	cmd := commandContext(ctx, e.binary, append(append([]string{}, e.args...), "--warm-up")...) //nolint:gosec
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ocr: warm-up failed: %w", err)
	}
	return nil
}

type execRequest struct {
	Width  int        `json:"width"`
	Height int        `json:"height"`
	Stride int        `json:"stride"`
	Data   string     `json:"data"`
	Rects  []execRect `json:"rects"`
}

type execRect struct {
	X, Y, W, H int
}

type execResponseLine struct {
	Index     int            `json:"index"`
	Fragments []execFragment `json:"fragments"`
}

type execFragment struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
}

// Recognize serialises the plane and rectangles as one JSON request line on
// the child's stdin, and reads one JSON response line per rectangle from
// its stdout.
func (e *ExecEngine) Recognize(ctx context.Context, plane luma.Plane, rects []luma.PixelRect) ([][]Fragment, error) {
	req := execRequest{
		Width:  plane.Width,
		Height: plane.Height,
		Stride: plane.Stride,
		Data:   base64.StdEncoding.EncodeToString(plane.Data),
		Rects:  make([]execRect, len(rects)),
	}
	for i, r := range rects {
		req.Rects[i] = execRect{X: r.X, Y: r.Y, W: r.Width, H: r.Height}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("ocr: encode request: %w", err)
	}

	cmd := commandContext(ctx, e.binary, e.args...) //nolint:gosec
	cmd.Stdin = bytes.NewReader(append(payload, '\n'))
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ocr: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ocr: start: %w", err)
	}

	out := make([][]Fragment, len(rects))
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var line execResponseLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			continue
		}
		if line.Index < 0 || line.Index >= len(out) {
			continue
		}
		frags := make([]Fragment, len(line.Fragments))
		for i, f := range line.Fragments {
			conf := -1.0
			if f.Confidence != nil {
				conf = *f.Confidence
			}
			frags[i] = Fragment{Text: f.Text, Confidence: conf}
		}
		out[line.Index] = frags
	}
	if err := scanner.Err(); err != nil {
		_ = cmd.Wait()
		return nil, fmt.Errorf("ocr: read response: %w", err)
	}
	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("ocr: recognize failed: %w", err)
	}
	return out, nil
}

var _ Engine = (*ExecEngine)(nil)
