// Package srt writes timed subtitle cues to a SubRip (.srt) file.
package srt

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// tempPrefix formats the temp-file name segment carrying runID, so a crash
// mid-write leaves a file traceable back to the run that produced it via
// the same correlation id the run threads through its logs.
func tempPrefix(runID string) string {
	if runID == "" {
		return ".srt-*.tmp"
	}
	return ".srt-" + runID + "-*.tmp"
}

// Cue is one subtitle entry: ordinal, time span, and text.
type Cue struct {
	Ordinal int
	Start   time.Duration
	End     time.Duration
	Text    string
}

// Writer accumulates cues and atomically publishes them to a single .srt
// file. Ordinals are assigned at write time in the order cues are appended,
// so callers must append in start-pts ascending order (the OCR Dispatcher's
// emission guarantee).
type Writer struct {
	path  string
	runID string
	cues  []Cue
}

// NewWriter constructs a Writer targeting path. Nothing is written to disk
// until Flush. runID, if non-empty, is folded into the staged temp file's
// name for traceability; pass "" when no run correlation id is available.
func NewWriter(path, runID string) *Writer {
	return &Writer{path: path, runID: runID}
}

// Append adds one cue, assigning it the next ordinal and clamping a
// degenerate span (end <= start) to a 1ms minimum.
func (w *Writer) Append(start, end time.Duration, text string) {
	if end <= start {
		end = start + time.Millisecond
	}
	w.cues = append(w.cues, Cue{
		Ordinal: len(w.cues) + 1,
		Start:   start,
		End:     end,
		Text:    strings.TrimRight(text, " \t"),
	})
}

// Flush writes every accumulated cue to w.path via a temp-file-plus-rename,
// so a crash mid-write never leaves a truncated .srt behind.
func (w *Writer) Flush() error {
	dir := filepath.Dir(w.path)
	tmp, err := os.CreateTemp(dir, tempPrefix(w.runID))
	if err != nil {
		return fmt.Errorf("srt: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	bw := bufio.NewWriter(tmp)
	for _, c := range w.cues {
		if err := writeCue(bw, c); err != nil {
			tmp.Close()
			return fmt.Errorf("srt: write cue %d: %w", c.Ordinal, err)
		}
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("srt: flush: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("srt: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("srt: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		return fmt.Errorf("srt: rename into place: %w", err)
	}
	return nil
}

func writeCue(w *bufio.Writer, c Cue) error {
	if _, err := fmt.Fprintf(w, "%d\n%s --> %s\n", c.Ordinal, formatTimestamp(c.Start), formatTimestamp(c.End)); err != nil {
		return err
	}
	// An empty-text cue still gets a blank line so downstream tools can see
	// the gap.
	if _, err := fmt.Fprintf(w, "%s\n\n", c.Text); err != nil {
		return err
	}
	return nil
}

// formatTimestamp renders d as HH:MM:SS,mmm.
func formatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	hh := ms / 3_600_000
	ms -= hh * 3_600_000
	mm := ms / 60_000
	ms -= mm * 60_000
	ss := ms / 1_000
	ms -= ss * 1_000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hh, mm, ss, ms)
}
