package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var debug bool

	rootCmd := &cobra.Command{
		Use:           "hardsub",
		Short:         "Extract hard-coded (burned-in) subtitles from H.264 video",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newExtractCommand(&debug))
	rootCmd.AddCommand(newBackendsCommand())

	return rootCmd
}
