package render

// Notes:
// - fakeRunner stands in for latex and dvipng: it records calls, writes the
//   files a real tool would write into the scratch directory, and can fail
//   or hang on demand.
// - TestTeX_RealTools runs only when latex and dvipng are on PATH.
// These are acceptable gaps: we test observable behavior, not implementation details.

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type call struct {
	dir  string
	name string
	args []string
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []call

	missing     map[string]bool // tools LookPath and Run cannot find
	failTool    string          // tool whose Run returns an error
	failStdout  string
	failStderr  string
	silentTool  string // tool that succeeds but writes nothing
	hangTool    string // tool that blocks until ctx is done
	versionLine string
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	if f.missing[name] {
		return "", &exec.Error{Name: name, Err: exec.ErrNotFound}
	}
	return "/usr/bin/" + name, nil
}

func (f *fakeRunner) Run(ctx context.Context, dir, name string, args ...string) (string, string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{dir: dir, name: name, args: args})
	f.mu.Unlock()

	base := filepath.Base(name)
	if f.missing[base] {
		return "", "", &exec.Error{Name: name, Err: exec.ErrNotFound}
	}
	if len(args) == 1 && args[0] == "--version" {
		return f.versionLine + "\nmore text\n", "", nil
	}
	if base == f.hangTool {
		<-ctx.Done()
		return "", "", errors.New("signal: killed")
	}
	if base == f.failTool {
		return f.failStdout, f.failStderr, errors.New("exit status 1")
	}
	if base == f.silentTool {
		return "", "", nil
	}

	switch base {
	case DefaultCompiler:
		if err := os.WriteFile(filepath.Join(dir, jobName+".dvi"), []byte("dvi"), 0o644); err != nil {
			return "", "", err
		}
	case DefaultConverter:
		out := args[len(args)-2] // "-o", <png>, <dvi>
		if err := os.WriteFile(filepath.Join(dir, out), []byte("\x89PNG fake"), 0o644); err != nil {
			return "", "", err
		}
	}
	return "", "", nil
}

func (f *fakeRunner) scratchDirs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var dirs []string
	for _, c := range f.calls {
		if c.dir != "" {
			dirs = append(dirs, c.dir)
		}
	}
	return dirs
}

func assertScratchRemoved(t *testing.T, f *fakeRunner) {
	t.Helper()
	for _, dir := range f.scratchDirs() {
		if _, err := os.Stat(dir); !os.IsNotExist(err) {
			t.Errorf("scratch directory %s still exists (stat err = %v)", dir, err)
		}
	}
}

// ---------------------------------------------------------------------------
// TestTeX_Render - Success path
// ---------------------------------------------------------------------------

func TestTeX_Render_Success(t *testing.T) {
	t.Parallel()

	f := &fakeRunner{}
	r := NewTeX(WithRunner(f), WithDPI(150))
	out := filepath.Join(t.TempDir(), "latex_x_1.png")

	if err := r.Render(context.Background(), "x = 1", out); err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	if !strings.HasPrefix(string(data), "\x89PNG") {
		t.Errorf("output = %q, want PNG bytes", data)
	}

	if len(f.calls) != 2 {
		t.Fatalf("got %d calls, want 2", len(f.calls))
	}
	if f.calls[0].name != "latex" || f.calls[1].name != "dvipng" {
		t.Errorf("commands = %s, %s; want latex, dvipng", f.calls[0].name, f.calls[1].name)
	}
	if f.calls[0].dir != f.calls[1].dir {
		t.Error("both commands should run in the same scratch directory")
	}
	if got := strings.Join(f.calls[1].args, " "); !strings.Contains(got, "-D 150") {
		t.Errorf("converter args %q missing -D 150", got)
	}
	assertScratchRemoved(t, f)
}

func TestTeX_Render_WritesTemplate(t *testing.T) {
	t.Parallel()

	var source string
	f := &fakeRunner{}
	r := NewTeX(WithRunner(&captureRunner{fakeRunner: f, source: &source}), WithPreamble(`\usepackage{bm}`))

	if err := r.Render(context.Background(), `\frac{a}{b}`, filepath.Join(t.TempDir(), "o.png")); err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	for _, want := range []string{`\documentclass`, `\usepackage{amsmath}`, `\usepackage{bm}`, `\frac{a}{b}`, `\end{document}`} {
		if !strings.Contains(source, want) {
			t.Errorf("TeX source missing %q:\n%s", want, source)
		}
	}
}

// captureRunner reads the .tex file before delegating to the compiler fake.
type captureRunner struct {
	*fakeRunner
	source *string
}

func (c *captureRunner) Run(ctx context.Context, dir, name string, args ...string) (string, string, error) {
	if name == DefaultCompiler {
		data, err := os.ReadFile(filepath.Join(dir, jobName+".tex"))
		if err != nil {
			return "", "", err
		}
		*c.source = string(data)
	}
	return c.fakeRunner.Run(ctx, dir, name, args...)
}

// ---------------------------------------------------------------------------
// TestTeX_Render - Failure paths
// ---------------------------------------------------------------------------

func TestTeX_Render_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		runner  *fakeRunner
		content string
		wantErr error
		wantMsg string
	}{
		{
			name:    "empty content",
			runner:  &fakeRunner{},
			content: "  ",
			wantErr: ErrEmptyContent,
		},
		{
			name:    "compiler missing",
			runner:  &fakeRunner{missing: map[string]bool{"latex": true}},
			content: "x",
			wantErr: ErrToolNotFound,
		},
		{
			name:    "converter missing",
			runner:  &fakeRunner{missing: map[string]bool{"dvipng": true}},
			content: "x",
			wantErr: ErrToolNotFound,
		},
		{
			name: "compile error keeps TeX diagnostic",
			runner: &fakeRunner{
				failTool:   "latex",
				failStdout: "This is pdfTeX\n! Undefined control sequence.\nl.6 $\\displaystyle \\foo\n",
			},
			content: `\foo`,
			wantErr: ErrCompile,
			wantMsg: "Undefined control sequence",
		},
		{
			name:    "convert error keeps stderr",
			runner:  &fakeRunner{failTool: "dvipng", failStderr: "dvipng: fatal: bad DVI"},
			content: "x",
			wantErr: ErrConvert,
			wantMsg: "bad DVI",
		},
		{
			name:    "compiler writes nothing",
			runner:  &fakeRunner{silentTool: "latex"},
			content: "x",
			wantErr: ErrMissingOutput,
		},
		{
			name:    "converter writes nothing",
			runner:  &fakeRunner{silentTool: "dvipng"},
			content: "x",
			wantErr: ErrMissingOutput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out := filepath.Join(t.TempDir(), "o.png")
			err := NewTeX(WithRunner(tt.runner)).Render(context.Background(), tt.content, out)

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Render() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q should contain %q", err, tt.wantMsg)
			}
			if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
				t.Error("output must not exist after a failed render")
			}
			assertScratchRemoved(t, tt.runner)
		})
	}
}

func TestTeX_Render_EmptyOutputPath(t *testing.T) {
	t.Parallel()

	err := NewTeX(WithRunner(&fakeRunner{})).Render(context.Background(), "x", "")
	if !errors.Is(err, ErrEmptyOutput) {
		t.Errorf("Render() error = %v, want ErrEmptyOutput", err)
	}
}

func TestTeX_Render_Timeout(t *testing.T) {
	t.Parallel()

	f := &fakeRunner{hangTool: "latex"}
	r := NewTeX(WithRunner(f), WithTimeout(50*time.Millisecond))

	start := time.Now()
	err := r.Render(context.Background(), "x", filepath.Join(t.TempDir(), "o.png"))

	if !errors.Is(err, ErrRenderTimeout) {
		t.Fatalf("Render() error = %v, want ErrRenderTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Render() took %v, timeout not enforced", elapsed)
	}
	assertScratchRemoved(t, f)
}

func TestTeX_Render_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	f := &fakeRunner{hangTool: "latex"}
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := NewTeX(WithRunner(f)).Render(ctx, "x", filepath.Join(t.TempDir(), "o.png"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Render() error = %v, want context.Canceled", err)
	}
}

func TestTeX_Render_ConcurrentScratchIsolation(t *testing.T) {
	t.Parallel()

	f := &fakeRunner{}
	r := NewTeX(WithRunner(f))
	dir := t.TempDir()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = r.Render(context.Background(), fmt.Sprintf("x_%d", i), filepath.Join(dir, fmt.Sprintf("%d.png", i)))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("render %d: %v", i, err)
		}
	}
	seen := make(map[string]bool)
	for _, c := range f.calls {
		if c.name == DefaultCompiler {
			if seen[c.dir] {
				t.Errorf("scratch directory %s reused", c.dir)
			}
			seen[c.dir] = true
		}
	}
	assertScratchRemoved(t, f)
}

// ---------------------------------------------------------------------------
// TestNewTeX - Options
// ---------------------------------------------------------------------------

func TestNewTeX_Defaults(t *testing.T) {
	t.Parallel()

	r := NewTeX(WithCompiler(""), WithDPI(0), WithTimeout(-1), WithRunner(nil))
	if r.Compiler != DefaultCompiler || r.Converter != DefaultConverter {
		t.Errorf("tools = %s/%s, want defaults", r.Compiler, r.Converter)
	}
	if r.DPI != DefaultDPI {
		t.Errorf("DPI = %d, want %d", r.DPI, DefaultDPI)
	}
	if r.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", r.Timeout, DefaultTimeout)
	}
	if _, ok := r.Runner.(*ExecRunner); !ok {
		t.Errorf("Runner = %T, want *ExecRunner", r.Runner)
	}
}

// ---------------------------------------------------------------------------
// TestCheck - Doctor probe
// ---------------------------------------------------------------------------

func TestTeX_Check(t *testing.T) {
	t.Parallel()

	f := &fakeRunner{versionLine: "pdfTeX 3.141592653", missing: map[string]bool{"dvipng": true}}
	statuses := NewTeX(WithRunner(f)).Check(context.Background())

	if len(statuses) != 2 {
		t.Fatalf("got %d statuses, want 2", len(statuses))
	}
	compiler, converter := statuses[0], statuses[1]

	if !compiler.OK() || compiler.Version != "pdfTeX 3.141592653" || compiler.Path != "/usr/bin/latex" {
		t.Errorf("compiler status = %+v", compiler)
	}
	if converter.OK() || !errors.Is(converter.Err, ErrToolNotFound) || converter.Error == "" {
		t.Errorf("converter status = %+v, want not found", converter)
	}
}

// ---------------------------------------------------------------------------
// TestHelpers
// ---------------------------------------------------------------------------

func TestTail(t *testing.T) {
	t.Parallel()

	if got := tail("a\nb\nc\n", 2); got != "b\nc" {
		t.Errorf("tail() = %q", got)
	}
	if got := tail("   ", 2); got != "" {
		t.Errorf("tail(blank) = %q", got)
	}
}

func TestDocument(t *testing.T) {
	t.Parallel()

	src, err := Document("", "E = mc^2")
	if err != nil {
		t.Fatalf("Document() error = %v", err)
	}
	if !strings.Contains(src, `$\displaystyle E = mc^2$`) {
		t.Errorf("Document() missing math line:\n%s", src)
	}
	if strings.Contains(src, "\n\n") {
		t.Errorf("empty preamble should not leave a blank line:\n%s", src)
	}
}

// ---------------------------------------------------------------------------
// TestTeX_RealTools - Integration with an installed TeX
// ---------------------------------------------------------------------------

func TestTeX_RealTools(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping TeX integration in short mode")
	}
	for _, tool := range []string{DefaultCompiler, DefaultConverter} {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("%s not installed", tool)
		}
	}
	t.Parallel()

	r := NewTeX()
	out := filepath.Join(t.TempDir(), "real.png")
	if err := r.Render(context.Background(), `\int_0^1 x^2\,dx = \frac{1}{3}`, out); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "\x89PNG") {
		t.Error("output is not a PNG")
	}

	err = r.Render(context.Background(), `\notacommand{`, filepath.Join(t.TempDir(), "bad.png"))
	if !errors.Is(err, ErrCompile) {
		t.Errorf("Render(bad) error = %v, want ErrCompile", err)
	}
}
