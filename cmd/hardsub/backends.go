package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newBackendsCommand lists the pluggable backends for each stage.
func newBackendsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List the available detector, comparator, and OCR backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"stage", "backend", "notes"},
				[][]string{
					{"detector", "luma-band", "connected-component row runs (default)"},
					{"detector", "integral-band", "summed-area-table sliding window, auto fallback target"},
					{"detector", "auto", "luma-band, falling back to integral-band after 2 empty frames"},
					{"comparator", "bitset-cover", "binarize + dilate + centroid-align + IoU (default)"},
					{"comparator", "sparse-chamfer", "Sobel edges + chamfer distance, for noisy backgrounds"},
					{"ocr", "noop", "recognizes nothing; for dry runs and detector/segmenter-only testing"},
					{"ocr", "exec", "delegates to an external binary over a JSON/stdio protocol"},
					{"ocr", "auto", "exec if --ocr-binary is set, else noop; no runtime probing"},
				},
				[]columnAlignment{alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
}
