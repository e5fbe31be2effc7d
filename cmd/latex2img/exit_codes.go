package main

import (
	"errors"
	"os"

	latex2img "github.com/alnah/go-latex2img"
	"github.com/alnah/go-latex2img/internal/config"
	"github.com/alnah/go-latex2img/internal/logging"
)

// Exit codes for latex2img CLI.
// Follows Unix conventions: 0=success, 1=general, 2=usage, and custom codes < 126.
// Formulas that fail to render do not change the exit code on their own.
const (
	ExitSuccess = 0 // Run completed, even with failed formulas
	ExitGeneral = 1 // General/unexpected error
	ExitUsage   = 2 // Invalid flags, config, or validation
	ExitIO      = 3 // Document or image directory could not be read or written
)

// exitCodeFor returns the appropriate exit code for an error.
// It uses errors.Is to check wrapped errors, so callers must use fmt.Errorf("%w", err).
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	// I/O errors (exit 3)
	if errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, latex2img.ErrReadDocument) ||
		errors.Is(err, latex2img.ErrWriteDocument) ||
		errors.Is(err, latex2img.ErrWritePreview) ||
		errors.Is(err, latex2img.ErrAssetsDir) ||
		errors.Is(err, ErrNoInput) {
		return ExitIO
	}

	// Usage/config/validation errors (exit 2)
	if errors.Is(err, config.ErrConfigNotFound) ||
		errors.Is(err, config.ErrConfigParse) ||
		errors.Is(err, config.ErrInvalidValue) ||
		errors.Is(err, config.ErrEmptyConfigName) ||
		errors.Is(err, latex2img.ErrInvalidOption) ||
		errors.Is(err, latex2img.ErrInvalidWorkers) ||
		errors.Is(err, logging.ErrUnknownFormat) ||
		errors.Is(err, ErrInvalidExtension) ||
		errors.Is(err, ErrInvalidFlag) {
		return ExitUsage
	}

	return ExitGeneral
}
