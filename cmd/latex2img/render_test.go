package main

// Notes:
// - runRender: exercised end to end against fakeTeX, which writes the files
//   latex and dvipng would write. Real TeX output is covered in internal/render.
// - Signal-driven cancellation is not tested here; processDocuments is tested
//   with an already cancelled context instead.
// - Unwritable documents are not tested: permission bits do not stop root,
//   and tests may run as root in containers.
// These are acceptable gaps: we test observable behavior, not implementation details.

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	latex2img "github.com/alnah/go-latex2img"
	"github.com/alnah/go-latex2img/internal/config"
)

// renderFor parses args like the render command and runs it without env vars.
func renderFor(t *testing.T, env *Environment, args ...string) error {
	t.Helper()
	flags, positional, err := parseRenderFlags(args, io.Discard)
	if err != nil {
		t.Fatalf("parseRenderFlags(%v): %v", args, err)
	}
	return runRender(context.Background(), positional, flags, loadEnvConfig(noEnv), new(config.Config), env)
}

// ---------------------------------------------------------------------------
// TestRunRender - End-to-end runs over a directory
// ---------------------------------------------------------------------------

func TestRunRender_Directory(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	good := writeDoc(t, root, "good.md", "Energy: $$E = mc^2$$\n")
	mixed := writeDoc(t, root, "sub/mixed.md", "Ok \\[a+b\\] and bad $$\\undefined$$\n")
	plain := writeDoc(t, root, "plain.markdown", "No math here.\n")
	writeDoc(t, root, "notes.txt", "$$ignored$$")

	env, stdout, stderr := testEnv(nil)
	if err := renderFor(t, env, root); err != nil {
		t.Fatalf("runRender() error = %v\nstderr: %s", err, stderr)
	}

	if got := readDoc(t, good); !strings.Contains(got, "![LaTeX Image](assets/latex_E___mc_2_") || !strings.Contains(got, "```latex\nE = mc^2\n```") {
		t.Errorf("good.md = %q", got)
	}

	got := readDoc(t, mixed)
	if !strings.Contains(got, "](../assets/latex_a_b_") {
		t.Errorf("mixed.md should reference the shared image dir relatively, got %q", got)
	}
	if !strings.Contains(got, "$$\\undefined$$") {
		t.Errorf("failed span should stay verbatim, got %q", got)
	}

	if got := readDoc(t, plain); got != "No math here.\n" {
		t.Errorf("plain.markdown changed: %q", got)
	}
	if got := readDoc(t, filepath.Join(root, "notes.txt")); got != "$$ignored$$" {
		t.Errorf("notes.txt should not be scanned, got %q", got)
	}

	entries, err := os.ReadDir(filepath.Join(root, "assets"))
	if err != nil {
		t.Fatalf("ReadDir(assets): %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("assets has %d images, want 2", len(entries))
	}

	for _, want := range []string{"good.md: 1 found, 1 rendered, rewritten", "1 failed", "no math found", "3 document(s)"} {
		if !strings.Contains(stdout.String(), want) {
			t.Errorf("stdout should contain %q, got:\n%s", want, stdout)
		}
	}
	for _, want := range []string{"FAILED", "Undefined control sequence", "hint: check the formula"} {
		if !strings.Contains(stderr.String(), want) {
			t.Errorf("stderr should contain %q, got:\n%s", want, stderr)
		}
	}
}

func TestRunRender_SecondRunReusesImages(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	doc := writeDoc(t, root, "a.md", "$$x^2$$ and $$y^2$$\n")

	env, _, _ := testEnv(nil)
	if err := renderFor(t, env, root); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first := readDoc(t, doc)

	// Restore the source so the second run sees the same spans.
	writeDoc(t, root, "a.md", "$$x^2$$ and $$y^2$$\n")
	env, stdout, _ := testEnv(nil)
	if err := renderFor(t, env, root); err != nil {
		t.Fatalf("second run: %v", err)
	}

	if got := readDoc(t, doc); got != first {
		t.Errorf("second run output differs:\n%q\nvs\n%q", got, first)
	}
	if !strings.Contains(stdout.String(), "2 reused") {
		t.Errorf("stdout should report reused images, got %q", stdout)
	}
}

func TestRunRender_SingleFile(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	doc := writeDoc(t, root, "docs/page.md", "$$a$$")

	env, _, _ := testEnv(nil)
	if err := renderFor(t, env, "--no-provenance", "-a", "img", doc); err != nil {
		t.Fatalf("runRender() error = %v", err)
	}

	got := readDoc(t, doc)
	if !strings.HasPrefix(got, "![LaTeX Image](img/latex_a_") || strings.Contains(got, "```") {
		t.Errorf("page.md = %q", got)
	}
	if _, err := os.Stat(filepath.Join(root, "docs", "img")); err != nil {
		t.Errorf("image dir should be created next to the file: %v", err)
	}
}

func TestRunRender_DryRun(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	doc := writeDoc(t, root, "a.md", "$$a$$ \\[b\\]")

	env, stdout, _ := testEnv(nil)
	if err := renderFor(t, env, "--dry-run", root); err != nil {
		t.Fatalf("runRender() error = %v", err)
	}

	if got := readDoc(t, doc); got != "$$a$$ \\[b\\]" {
		t.Errorf("dry run changed the document: %q", got)
	}
	if _, err := os.Stat(filepath.Join(root, "assets")); !os.IsNotExist(err) {
		t.Errorf("dry run should not create the image dir, stat err = %v", err)
	}
	for _, want := range []string{"2 block(s)", "render  $$a$$ -> assets/latex_a_", "dry run"} {
		if !strings.Contains(stdout.String(), want) {
			t.Errorf("stdout should contain %q, got:\n%s", want, stdout)
		}
	}
}

func TestRunRender_MissingConverter(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	doc := writeDoc(t, root, "a.md", "$$a$$")

	env, _, stderr := testEnv(&fakeTeX{missing: map[string]bool{"dvipng": true}})
	if err := renderFor(t, env, root); err != nil {
		t.Fatalf("render failures alone should not fail the run, got %v", err)
	}

	if got := readDoc(t, doc); got != "$$a$$" {
		t.Errorf("document should be unchanged, got %q", got)
	}
	if !strings.Contains(stderr.String(), "render.converter") {
		t.Errorf("stderr should carry the converter hint, got:\n%s", stderr)
	}
	if n := strings.Count(stderr.String(), "hint:"); n != 1 {
		t.Errorf("hint printed %d times, want 1", n)
	}
}

func TestRunRender_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		setup    func(t *testing.T, root string) []string
		wantErr  error
		wantCode int
	}{
		{
			name:     "no input",
			setup:    func(*testing.T, string) []string { return nil },
			wantErr:  ErrNoInput,
			wantCode: ExitIO,
		},
		{
			name: "missing input",
			setup: func(_ *testing.T, root string) []string {
				return []string{filepath.Join(root, "nope.md")}
			},
			wantErr:  os.ErrNotExist,
			wantCode: ExitIO,
		},
		{
			name: "no documents",
			setup: func(_ *testing.T, root string) []string {
				return []string{root}
			},
			wantErr:  ErrNoDocuments,
			wantCode: ExitGeneral,
		},
		{
			name: "wrong extension",
			setup: func(t *testing.T, root string) []string {
				return []string{writeDoc(t, root, "a.txt", "$$a$$")}
			},
			wantErr:  ErrInvalidExtension,
			wantCode: ExitUsage,
		},
		{
			name: "dpi out of range",
			setup: func(t *testing.T, root string) []string {
				writeDoc(t, root, "a.md", "$$a$$")
				return []string{"--dpi", "10", root}
			},
			wantErr:  config.ErrInvalidValue,
			wantCode: ExitUsage,
		},
		{
			name: "unknown grammar",
			setup: func(t *testing.T, root string) []string {
				writeDoc(t, root, "a.md", "$$a$$")
				return []string{"-g", "dollar", root}
			},
			wantErr:  config.ErrInvalidValue,
			wantCode: ExitUsage,
		},
		{
			name: "bad log format",
			setup: func(t *testing.T, root string) []string {
				writeDoc(t, root, "a.md", "$$a$$")
				return []string{"--log-format", "xml", root}
			},
			wantErr:  nil, // checked by code only
			wantCode: ExitUsage,
		},
		{
			name: "assets dir blocked by a file",
			setup: func(t *testing.T, root string) []string {
				writeDoc(t, root, "a.md", "$$a$$")
				writeDoc(t, root, "assets", "not a directory")
				return []string{root}
			},
			wantErr:  latex2img.ErrAssetsDir,
			wantCode: ExitIO,
		},
		{
			name: "two inputs",
			setup: func(_ *testing.T, root string) []string {
				return []string{root, root}
			},
			wantErr:  ErrInvalidFlag,
			wantCode: ExitUsage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			root := t.TempDir()
			env, _, _ := testEnv(nil)
			err := renderFor(t, env, tt.setup(t, root)...)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if got := exitCodeFor(err); got != tt.wantCode {
				t.Errorf("exitCodeFor(%v) = %d, want %d", err, got, tt.wantCode)
			}
		})
	}
}

func TestRunRender_HTMLPreviewAndLogFile(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	doc := writeDoc(t, root, "a.md", "# Title\n\n$$a$$\n")
	logFile := filepath.Join(t.TempDir(), "run.log")

	env, _, _ := testEnv(nil)
	if err := renderFor(t, env, "--html", "--log-file", logFile, root); err != nil {
		t.Fatalf("runRender() error = %v", err)
	}

	html := readDoc(t, strings.TrimSuffix(doc, ".md")+".html")
	if !strings.Contains(html, "<img") {
		t.Errorf("preview should contain the image, got %q", html)
	}
	if log := readDoc(t, logFile); !strings.Contains(log, `"run_id"`) || !strings.Contains(log, "document rewritten") {
		t.Errorf("log file = %q", log)
	}
}

// ---------------------------------------------------------------------------
// TestMergeFlags - CLI flags override config values
// ---------------------------------------------------------------------------

func TestMergeFlags(t *testing.T) {
	t.Parallel()

	flags, _, err := parseRenderFlags([]string{
		"--ext", ".mdx", "-a", "img", "-g", "display,bracket", "-w", "0",
		"-t", "1m", "--dpi", "600", "--force", "--policy", "first",
		"--no-provenance", "--html",
	}, io.Discard)
	if err != nil {
		t.Fatalf("parseRenderFlags: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Workers = 4
	mergeFlags(flags, cfg)

	if len(cfg.Input.Extensions) != 1 || cfg.Input.Extensions[0] != ".mdx" {
		t.Errorf("Extensions = %v", cfg.Input.Extensions)
	}
	if cfg.Assets.Dir != "img" {
		t.Errorf("Assets.Dir = %q", cfg.Assets.Dir)
	}
	if len(cfg.Grammars) != 2 || cfg.Grammars[1] != "bracket" {
		t.Errorf("Grammars = %v", cfg.Grammars)
	}
	if cfg.Workers != 0 {
		t.Errorf("Workers = %d, want explicit 0 to win", cfg.Workers)
	}
	if cfg.Render.Timeout != "1m" || cfg.Render.DPI != 600 || !cfg.Render.Force {
		t.Errorf("Render = %+v", cfg.Render)
	}
	if cfg.Rewrite.Policy != "first" || cfg.Rewrite.Provenance || !cfg.Rewrite.HTMLPreview {
		t.Errorf("Rewrite = %+v", cfg.Rewrite)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("merged config should validate: %v", err)
	}
}

func TestMergeFlags_UnsetFlagsKeepConfig(t *testing.T) {
	t.Parallel()

	flags, _, err := parseRenderFlags(nil, io.Discard)
	if err != nil {
		t.Fatalf("parseRenderFlags: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Workers = 4
	cfg.Render.DPI = 150
	want := *cfg
	mergeFlags(flags, cfg)

	if cfg.Workers != want.Workers || cfg.Render != want.Render || cfg.Rewrite != want.Rewrite || cfg.Assets != want.Assets {
		t.Errorf("config changed without flags: %+v", cfg)
	}
}

// ---------------------------------------------------------------------------
// TestSplitWorkers - Worker budget across documents and blocks
// ---------------------------------------------------------------------------

func TestSplitWorkers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name               string
		n, docs            int
		wantDocs, wantBlks int
	}{
		{"one document gets block workers", 4, 1, 1, 4},
		{"several documents get document workers", 4, 3, 4, 1},
		{"capped", 99, 2, latex2img.MaxWorkers, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d, b := splitWorkers(tt.n, tt.docs)
			if d != tt.wantDocs || b != tt.wantBlks {
				t.Errorf("splitWorkers(%d, %d) = %d, %d, want %d, %d", tt.n, tt.docs, d, b, tt.wantDocs, tt.wantBlks)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestProcessDocuments - Cancellation and ordering
// ---------------------------------------------------------------------------

func TestProcessDocuments_Cancelled(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	files := []string{
		writeDoc(t, root, "a.md", "$$a$$"),
		writeDoc(t, root, "b.md", "$$b$$"),
	}

	p, err := latex2img.NewProcessor(latex2img.WithRenderer(nil))
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := processDocuments(ctx, p, files, 2, false, time.Now)
	for i, r := range results {
		if r.Path != files[i] {
			t.Errorf("results[%d].Path = %q, want %q", i, r.Path, files[i])
		}
		if !errors.Is(r.Err, context.Canceled) {
			t.Errorf("results[%d].Err = %v, want context.Canceled", i, r.Err)
		}
	}
	if got := readDoc(t, files[0]); got != "$$a$$" {
		t.Errorf("cancelled run wrote %q", got)
	}
}

// ---------------------------------------------------------------------------
// TestBatchError - Exit code classification through Unwrap
// ---------------------------------------------------------------------------

func TestBatchError(t *testing.T) {
	t.Parallel()

	err := &batchError{total: 3, errs: []error{
		errors.New("a.md: boom"),
		latex2img.ErrWriteDocument,
	}}

	if err.Error() != "2 of 3 document(s) failed" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, latex2img.ErrWriteDocument) {
		t.Error("errors.Is should see ErrWriteDocument")
	}
	if got := exitCodeFor(err); got != ExitIO {
		t.Errorf("exitCodeFor() = %d, want %d", got, ExitIO)
	}
}

// ---------------------------------------------------------------------------
// TestSummaryHelpers - Span previews and report lines
// ---------------------------------------------------------------------------

func TestPreviewSpan(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short", "$$a$$", "$$a$$"},
		{"newlines folded", "$$\na +\n b\n$$", "$$ a + b $$"},
		{"long truncated", "$$" + strings.Repeat("x", 60) + "$$", "$$" + strings.Repeat("x", 37) + "…"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := previewSpan(tt.in); got != tt.want {
				t.Errorf("previewSpan(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDescribeReport(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rep  latex2img.Report
		want string
	}{
		{"nothing", latex2img.Report{}, "no math found"},
		{"all rendered", latex2img.Report{Found: 2, Succeeded: 2, Written: true}, "2 found, 2 rendered, rewritten"},
		{"mixed", latex2img.Report{Found: 4, Succeeded: 3, Skipped: 1, Failed: 1, Written: true}, "4 found, 2 rendered, 1 reused, 1 failed, rewritten"},
		{"all failed", latex2img.Report{Found: 1, Failed: 1}, "1 found, 0 rendered, 1 failed, unchanged"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := describeReport(tt.rep); got != tt.want {
				t.Errorf("describeReport() = %q, want %q", got, tt.want)
			}
		})
	}
}
