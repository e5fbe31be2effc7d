// Package render turns one LaTeX math fragment into a PNG image.
//
// Rendering is two external commands: a DVI-producing compiler (latex by
// default) and a DVI-to-PNG converter (dvipng by default). Each call works in
// its own scratch directory, which is removed on every path, so concurrent
// renders never see each other's intermediates. The finished image is moved
// into place atomically.
package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alnah/go-latex2img/internal/fileutil"
)

// Sentinel errors for rendering.
var (
	ErrEmptyContent  = errors.New("math content cannot be empty")
	ErrEmptyOutput   = errors.New("output path cannot be empty")
	ErrToolNotFound  = errors.New("render tool not found")
	ErrCompile       = errors.New("LaTeX compilation failed")
	ErrConvert       = errors.New("DVI to PNG conversion failed")
	ErrMissingOutput = errors.New("render tool reported success but produced no output")
	ErrRenderTimeout = errors.New("render timed out")
)

// Default tool configuration.
const (
	DefaultCompiler  = "latex"
	DefaultConverter = "dvipng"
	DefaultDPI       = 300
	DefaultTimeout   = 30 * time.Second
)

// jobName is the basename of every intermediate file in a scratch directory.
const jobName = "formula"

// diagnosticLines bounds the tool output kept in an error message.
const diagnosticLines = 6

// Renderer renders math content to an image file at outputPath.
type Renderer interface {
	Render(ctx context.Context, content, outputPath string) error
}

// TeX renders through a LaTeX compiler and a DVI-to-PNG converter.
type TeX struct {
	Runner    CommandRunner
	Compiler  string
	Converter string
	DPI       int
	Timeout   time.Duration // per render, covering both commands; zero disables
	Preamble  string
}

// Compile-time interface implementation check.
var _ Renderer = (*TeX)(nil)

// Option configures a TeX renderer.
type Option func(*TeX)

// WithRunner sets the command runner.
func WithRunner(r CommandRunner) Option {
	return func(t *TeX) {
		if r != nil {
			t.Runner = r
		}
	}
}

// WithCompiler sets the DVI-producing compiler command.
func WithCompiler(name string) Option {
	return func(t *TeX) {
		if name != "" {
			t.Compiler = name
		}
	}
}

// WithConverter sets the DVI-to-PNG converter command.
func WithConverter(name string) Option {
	return func(t *TeX) {
		if name != "" {
			t.Converter = name
		}
	}
}

// WithDPI sets the output resolution.
func WithDPI(dpi int) Option {
	return func(t *TeX) {
		if dpi > 0 {
			t.DPI = dpi
		}
	}
}

// WithTimeout sets the per-render time limit.
func WithTimeout(d time.Duration) Option {
	return func(t *TeX) {
		if d > 0 {
			t.Timeout = d
		}
	}
}

// WithPreamble adds extra preamble lines to every document.
func WithPreamble(preamble string) Option {
	return func(t *TeX) {
		t.Preamble = preamble
	}
}

// NewTeX creates a TeX renderer with defaults applied before opts.
func NewTeX(opts ...Option) *TeX {
	t := &TeX{
		Runner:    &ExecRunner{},
		Compiler:  DefaultCompiler,
		Converter: DefaultConverter,
		DPI:       DefaultDPI,
		Timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Render typesets content and writes the image to outputPath.
// The directory of outputPath must already exist. Nothing is written to
// outputPath unless both commands succeed.
func (t *TeX) Render(ctx context.Context, content, outputPath string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	if outputPath == "" {
		return ErrEmptyOutput
	}

	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	scratch, cleanup, err := fileutil.ScratchDir("latex2img-*")
	if err != nil {
		return err
	}
	defer cleanup()

	src, err := Document(t.Preamble, content)
	if err != nil {
		return err
	}
	texFile := jobName + ".tex"
	if err := os.WriteFile(filepath.Join(scratch, texFile), []byte(src), fileutil.FilePermissions); err != nil {
		return fmt.Errorf("writing TeX source: %w", err)
	}

	stdout, stderr, err := t.Runner.Run(ctx, scratch, t.Compiler,
		"-interaction=nonstopmode",
		"-halt-on-error",
		texFile,
	)
	if err != nil {
		return t.stageError(ctx, ErrCompile, t.Compiler, err, texDiagnostic(stdout, stderr))
	}
	dviFile := jobName + ".dvi"
	if !fileutil.FileExists(filepath.Join(scratch, dviFile)) {
		return fmt.Errorf("%w: %s wrote no %s", ErrMissingOutput, t.Compiler, dviFile)
	}

	pngFile := jobName + ".png"
	_, stderr, err = t.Runner.Run(ctx, scratch, t.Converter,
		"-q",
		"-D", strconv.Itoa(t.DPI),
		"-T", "tight",
		"-bg", "Transparent",
		"-o", pngFile,
		dviFile,
	)
	if err != nil {
		return t.stageError(ctx, ErrConvert, t.Converter, err, tail(stderr, diagnosticLines))
	}
	pngPath := filepath.Join(scratch, pngFile)
	if !fileutil.FileExists(pngPath) {
		return fmt.Errorf("%w: %s wrote no %s", ErrMissingOutput, t.Converter, pngFile)
	}

	if err := fileutil.MoveFile(pngPath, outputPath); err != nil {
		return fmt.Errorf("installing image: %w", err)
	}
	return nil
}

// stageError classifies a failed command. Timeouts and missing tools take
// precedence over the stage sentinel.
func (t *TeX) stageError(ctx context.Context, stage error, tool string, err error, detail string) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w after %v (%s was killed)", ErrRenderTimeout, t.Timeout, tool)
	case errors.Is(ctx.Err(), context.Canceled):
		return fmt.Errorf("%s: %w", tool, ctx.Err())
	case errors.Is(err, exec.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrToolNotFound, tool)
	}
	if detail != "" {
		return fmt.Errorf("%w: %s: %v\n%s", stage, tool, err, detail)
	}
	return fmt.Errorf("%w: %s: %v", stage, tool, err)
}

// texDiagnostic extracts the error lines TeX prints to its log on stdout.
// Falls back to the tail of stderr, then stdout.
func texDiagnostic(stdout, stderr string) string {
	lines := strings.Split(stdout, "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "!") {
			end := min(i+3, len(lines))
			return strings.TrimSpace(strings.Join(lines[i:end], "\n"))
		}
	}
	if s := tail(stderr, diagnosticLines); s != "" {
		return s
	}
	return tail(stdout, diagnosticLines)
}

// tail returns the last n non-empty lines of s.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
