package latex2img

import (
	"errors"

	"github.com/alnah/go-latex2img/internal/naming"
	"github.com/alnah/go-latex2img/internal/render"
)

// Sentinel errors for library operations.
var (
	ErrEmptyPath     = errors.New("document path cannot be empty")
	ErrReadDocument  = errors.New("failed to read document")
	ErrWriteDocument = errors.New("failed to write document")
	ErrWritePreview  = errors.New("failed to write HTML preview")
	ErrAssetsDir     = errors.New("failed to create image directory")
	ErrPanic         = errors.New("internal error while processing document")

	// Option validation errors.
	ErrInvalidWorkers = errors.New("invalid worker count")
	ErrInvalidOption  = errors.New("invalid option")
)

// Per-block failure causes, re-exported so callers can classify
// RenderOutcome.Err with errors.Is.
var (
	ErrToolNotFound  = render.ErrToolNotFound
	ErrCompile       = render.ErrCompile
	ErrConvert       = render.ErrConvert
	ErrMissingOutput = render.ErrMissingOutput
	ErrRenderTimeout = render.ErrRenderTimeout
	ErrPathCollision = naming.ErrPathCollision
)
