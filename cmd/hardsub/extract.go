package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/care/hardsub/internal/comparator"
	"github.com/care/hardsub/internal/decoder/gst"
	"github.com/care/hardsub/internal/detector"
	"github.com/care/hardsub/internal/luma"
	"github.com/care/hardsub/internal/ocr"
	"github.com/care/hardsub/internal/pipeline"
	"github.com/care/hardsub/internal/settings"
)

func newExtractCommand(debug *bool) *cobra.Command {
	var (
		configPath     string
		outputPath     string
		detectorName   string
		comparatorName string
		ocrBackend     string
		ocrBinary      string
		roiX, roiY     float64
		roiW, roiH     float64
		noProgress     bool
	)

	cmd := &cobra.Command{
		Use:   "extract <input.mp4>",
		Short: "Run the extraction pipeline over one video file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := settings.Load(configPath)
			if err != nil {
				return err
			}

			st.InputPath = args[0]
			if outputPath != "" {
				st.OutputPath = outputPath
			} else if st.OutputPath == "" {
				st.OutputPath = defaultOutputPath(st.InputPath)
			}
			if detectorName != "" {
				st.Detection.Detector = detectorName
			}
			if comparatorName != "" {
				st.Detection.Comparator = comparatorName
			}
			if ocrBackend != "" {
				st.Ocr.Backend = ocrBackend
			}
			if roiW > 0 || roiH > 0 {
				st.Detection.Roi = luma.Roi{X: roiX, Y: roiY, Width: roiW, Height: roiH}
			}
			if err := st.Validate(); err != nil {
				return err
			}

			logLevel := slog.LevelInfo
			if *debug {
				logLevel = slog.LevelDebug
			}
			log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: logLevel}))

			det, err := detector.New(st.Detection.Detector, st.Detection.Target, st.Detection.Delta)
			if err != nil {
				return &settings.ConfigError{Reason: err.Error()}
			}
			cmp, err := comparator.New(st.Detection.Comparator, st.Detection.Target, st.Detection.Delta)
			if err != nil {
				return &settings.ConfigError{Reason: err.Error()}
			}
			eng, err := ocr.New(st.Ocr.Backend, ocrBinary)
			if err != nil {
				return &settings.ConfigError{Reason: err.Error()}
			}
			dec := gst.New(log)

			sup := pipeline.New(dec, det, cmp, eng, st, log)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				select {
				case sig := <-sigCh:
					log.Info("received shutdown signal", "signal", sig)
					cancel()
				case <-ctx.Done():
				}
			}()

			var bar *progressbar.ProgressBar
			if !noProgress && isatty.IsTerminal(os.Stdout.Fd()) {
				bar = progressbar.NewOptions(-1,
					progressbar.OptionSetDescription("extracting subtitles"),
					progressbar.OptionSpinnerType(14),
					progressbar.OptionClearOnFinish(),
				)
				done := make(chan struct{})
				defer func() { close(done) }()
				go pollProgress(ctx, done, sup, bar)
			}

			runErr := sup.Run(ctx, st.InputPath)
			if bar != nil {
				bar.Finish()
			}

			printSummary(cmd, sup.RunID(), sup.Stats())
			return runErr
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML configuration file")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output .srt path (default: input path with .srt extension)")
	cmd.Flags().StringVar(&detectorName, "detector", "", "Detector backend: luma-band, integral-band, auto")
	cmd.Flags().StringVar(&comparatorName, "comparator", "", "Comparator backend: bitset-cover, sparse-chamfer")
	cmd.Flags().StringVar(&ocrBackend, "ocr-backend", "", "OCR backend: noop, exec, auto")
	cmd.Flags().StringVar(&ocrBinary, "ocr-binary", "", "Path to the exec OCR backend's binary")
	cmd.Flags().Float64Var(&roiX, "roi-x", 0, "ROI x origin, as a fraction of frame width")
	cmd.Flags().Float64Var(&roiY, "roi-y", 0.75, "ROI y origin, as a fraction of frame height")
	cmd.Flags().Float64Var(&roiW, "roi-w", 0, "ROI width, as a fraction of frame width (with --roi-h also 0, the configured ROI is kept)")
	cmd.Flags().Float64Var(&roiH, "roi-h", 0, "ROI height, as a fraction of frame height (with --roi-w also 0, the configured ROI is kept)")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress spinner even on a terminal")

	return cmd
}

func defaultOutputPath(inputPath string) string {
	ext := ".srt"
	for i := len(inputPath) - 1; i >= 0 && inputPath[i] != '/'; i-- {
		if inputPath[i] == '.' {
			return inputPath[:i] + ext
		}
	}
	return inputPath + ext
}

func pollProgress(ctx context.Context, done <-chan struct{}, sup *pipeline.Supervisor, bar *progressbar.ProgressBar) {
	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			bar.Set64(int64(sup.Stats().SamplesEmitted))
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func printSummary(cmd *cobra.Command, runID string, snap pipeline.Snapshot) {
	headers := []string{"metric", "count"}
	rows := [][]string{
		{"frames decoded", fmt.Sprint(snap.FramesDecoded)},
		{"samples emitted", fmt.Sprint(snap.SamplesEmitted)},
		{"detector anomalies", fmt.Sprint(snap.DetectorAnomalies)},
		{"segments opened", fmt.Sprint(snap.SegmentsOpened)},
		{"segments closed", fmt.Sprint(snap.SegmentsClosed)},
		{"segments discarded", fmt.Sprint(snap.SegmentsDiscarded)},
		{"ocr recoverable failures", fmt.Sprint(snap.OcrRecoverable)},
		{"cues written", fmt.Sprint(snap.CuesWritten)},
	}
	fmt.Fprintf(cmd.OutOrStdout(), "run %s\n", runID)
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, []columnAlignment{alignLeft, alignRight}))
}
