package srt

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFormatTimestamp(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00:00,000"},
		{2*time.Second + 500*time.Millisecond, "00:00:02,500"},
		{time.Hour + 2*time.Minute + 3*time.Second + 4*time.Millisecond, "01:02:03,004"},
	}
	for _, c := range cases {
		if got := formatTimestamp(c.d); got != c.want {
			t.Errorf("formatTimestamp(%v) = %q, want %q", c.d, got, c.want)
		}
	}
}

func TestWriterClampsDegenerateSpan(t *testing.T) {
	w := NewWriter(filepath.Join(t.TempDir(), "out.srt"), "")
	w.Append(5*time.Second, 5*time.Second, "hello")
	if w.cues[0].End != 5*time.Second+time.Millisecond {
		t.Fatalf("End = %v, want start+1ms", w.cues[0].End)
	}
}

func TestWriterOrdinalsIncreaseFromOne(t *testing.T) {
	w := NewWriter(filepath.Join(t.TempDir(), "out.srt"), "")
	w.Append(0, time.Second, "a")
	w.Append(2*time.Second, 3*time.Second, "b")
	for i, c := range w.cues {
		if c.Ordinal != i+1 {
			t.Fatalf("cue %d ordinal = %d, want %d", i, c.Ordinal, i+1)
		}
	}
}

func TestWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.srt")
	w := NewWriter(path, "")
	w.Append(2*time.Second, 6*time.Second, "Hello, world!")
	w.Append(10*time.Second, 12*time.Second, "")
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	cues, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(cues) != 2 {
		t.Fatalf("got %d cues, want 2", len(cues))
	}
	if cues[1].Text != "" {
		t.Fatalf("second cue text = %q, want empty", cues[1].Text)
	}

	w2 := NewWriter(path, "")
	for _, c := range cues {
		w2.Append(c.Start, c.End, c.Text)
	}
	if err := w2.Flush(); err != nil {
		t.Fatalf("second Flush() error = %v", err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("round trip not byte-identical:\nfirst:\n%s\nsecond:\n%s", first, second)
	}
}

func TestWriterAtomicRenameLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.srt")
	w := NewWriter(path, "")
	w.Append(0, time.Second, "x")
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "out.srt" {
		t.Fatalf("expected only out.srt in directory, got %v", entries)
	}
}
