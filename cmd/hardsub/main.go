package main

import (
	"errors"
	"os"

	"github.com/care/hardsub/internal/decoder"
	"github.com/care/hardsub/internal/ocr"
	"github.com/care/hardsub/internal/settings"
)

// Exit codes: 0 success, 2 configuration error, 3 decoder failure, 4 OCR
// fatal (warm-up or consecutive-failure streak), 1 any other fatal error.
const (
	exitSuccess     = 0
	exitOtherFatal  = 1
	exitConfigError = 2
	exitDecoderFail = 3
	exitOcrFatal    = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	cmd := newRootCommand()
	err := cmd.Execute()
	if err == nil {
		return exitSuccess
	}

	cmd.PrintErrln("error:", err)

	var configErr *settings.ConfigError
	var decoderErr *decoder.FailedError
	var ocrFatal *ocr.FatalError
	var ocrWarmUp *ocr.WarmUpError

	switch {
	case errors.As(err, &configErr):
		return exitConfigError
	case errors.As(err, &decoderErr):
		return exitDecoderFail
	case errors.As(err, &ocrFatal), errors.As(err, &ocrWarmUp):
		return exitOcrFatal
	default:
		return exitOtherFatal
	}
}
