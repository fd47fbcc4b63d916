package settings

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default() invalid: %v", err)
	}
}

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Detection.SamplesPerSecond != Default().Detection.SamplesPerSecond {
		t.Fatalf("Load() without file should equal Default()")
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hardsub.yaml")
	content := "detection:\n  comparator: sparse-chamfer\n  samples_per_second: 10\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Detection.Comparator != "sparse-chamfer" {
		t.Fatalf("Detection.Comparator = %q, want sparse-chamfer", s.Detection.Comparator)
	}
	if s.Detection.SamplesPerSecond != 10 {
		t.Fatalf("Detection.SamplesPerSecond = %v, want 10", s.Detection.SamplesPerSecond)
	}
	if s.Ocr.ConcurrencyP != Default().Ocr.ConcurrencyP {
		t.Fatalf("unset sections should keep defaults")
	}
}

func TestValidateRejectsUnknownComparator(t *testing.T) {
	s := Default()
	s.Detection.Comparator = "nonsense"
	if err := s.Validate(); err == nil {
		t.Fatal("Validate() should reject unknown comparator")
	}
}

func TestValidateRejectsBadRoi(t *testing.T) {
	s := Default()
	s.Detection.Roi.Width = 2
	if err := s.Validate(); err == nil {
		t.Fatal("Validate() should reject out-of-range roi")
	}
}

func TestValidateRejectsSlotCountOutOfRange(t *testing.T) {
	s := Default()
	s.Segmenter.SlotCount = 5
	if err := s.Validate(); err == nil {
		t.Fatal("Validate() should reject slot_count > 4")
	}
}
