// Package settings loads and validates the configuration surface consumed
// by the pipeline. Settings is constructed once at startup and threaded
// explicitly to every stage; no package in this module reads configuration
// from a package-level global.
package settings

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/care/hardsub/internal/luma"
)

// Detection holds the Detector/Comparator configuration surface.
type Detection struct {
	SamplesPerSecond float64  `yaml:"samples_per_second"`
	Target           uint8    `yaml:"target"`
	Delta            uint8    `yaml:"delta"`
	Detector         string   `yaml:"detector"`
	Comparator       string   `yaml:"comparator"`
	Roi              luma.Roi `yaml:"roi"`
}

// Segmenter holds the temporal state machine configuration surface.
type Segmenter struct {
	ConfirmOpenK  int `yaml:"confirm_open_k"`
	ConfirmCloseM int `yaml:"confirm_close_m"`
	SlotCount     int `yaml:"slot_count"`
}

// Ocr holds the OCR dispatcher configuration surface.
type Ocr struct {
	Backend             string `yaml:"backend"`
	ConcurrencyP        int    `yaml:"concurrency_p"`
	PerSegmentTimeoutMs int    `yaml:"per_segment_timeout_ms"`
}

// Settings is the fully-resolved, immutable configuration threaded to every
// pipeline stage at construction.
type Settings struct {
	Detection Detection `yaml:"detection"`
	Segmenter Segmenter `yaml:"segmenter"`
	Ocr       Ocr       `yaml:"ocr"`

	InputPath  string `yaml:"-"`
	OutputPath string `yaml:"-"`
}

// Default returns the documented configuration defaults.
func Default() Settings {
	return Settings{
		Detection: Detection{
			SamplesPerSecond: 7,
			Target:           230,
			Delta:            12,
			Detector:         "luma-band",
			Comparator:       "bitset-cover",
			Roi:              luma.Roi{X: 0, Y: 0.75, Width: 1, Height: 0.25},
		},
		Segmenter: Segmenter{
			ConfirmOpenK:  2,
			ConfirmCloseM: 2,
			SlotCount:     4,
		},
		Ocr: Ocr{
			Backend:             "auto",
			ConcurrencyP:        2,
			PerSegmentTimeoutMs: 5000,
		},
	}
}

// Load reads a YAML configuration file, overlaying it on Default(), and
// validates the result. A missing file is not an error: Default() alone is
// returned, so the CLI works out of the box without a config file.
func Load(path string) (Settings, error) {
	s := Default()
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return Settings{}, &ConfigError{Reason: fmt.Sprintf("read config %s: %v", path, err)}
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, &ConfigError{Reason: fmt.Sprintf("parse config %s: %v", path, err)}
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// ConfigError marks an invalid configuration: fatal at startup, mapped to
// exit code 2 by the CLI.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "configuration invalid: " + e.Reason }

var validComparators = map[string]bool{"bitset-cover": true, "sparse-chamfer": true}
var validDetectors = map[string]bool{"luma-band": true, "integral-band": true, "auto": true}
var validOcrBackends = map[string]bool{"auto": true, "noop": true, "exec": true}

// Validate enforces the numeric ranges and backend-name constraints.
func (s Settings) Validate() error {
	if s.Detection.SamplesPerSecond <= 0 {
		return &ConfigError{Reason: "detection.samples_per_second must be > 0"}
	}
	if err := s.Detection.Roi.Validate(); err != nil {
		return &ConfigError{Reason: "detection.roi: " + err.Error()}
	}
	if !validComparators[s.Detection.Comparator] {
		return &ConfigError{Reason: fmt.Sprintf("unknown comparator %q", s.Detection.Comparator)}
	}
	if !validDetectors[s.Detection.Detector] {
		return &ConfigError{Reason: fmt.Sprintf("unknown detector %q", s.Detection.Detector)}
	}
	if !validOcrBackends[s.Ocr.Backend] {
		return &ConfigError{Reason: fmt.Sprintf("unknown OCR backend %q", s.Ocr.Backend)}
	}
	if s.Segmenter.ConfirmOpenK < 1 {
		return &ConfigError{Reason: "segmenter.confirm_open_k must be >= 1"}
	}
	if s.Segmenter.ConfirmCloseM < 1 {
		return &ConfigError{Reason: "segmenter.confirm_close_m must be >= 1"}
	}
	if s.Segmenter.SlotCount < 1 || s.Segmenter.SlotCount > 4 {
		return &ConfigError{Reason: "segmenter.slot_count must be in [1,4]"}
	}
	if s.Ocr.ConcurrencyP < 1 {
		return &ConfigError{Reason: "ocr.concurrency_p must be >= 1"}
	}
	if s.Ocr.PerSegmentTimeoutMs < 1 {
		return &ConfigError{Reason: "ocr.per_segment_timeout_ms must be >= 1"}
	}
	return nil
}

// SamplePeriod is the time between consecutive samples at the configured
// cadence.
func (d Detection) SamplePeriod() float64 { return 1.0 / d.SamplesPerSecond }
