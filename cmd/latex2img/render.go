package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	latex2img "github.com/alnah/go-latex2img"
	"github.com/alnah/go-latex2img/internal/config"
	"github.com/alnah/go-latex2img/internal/fileutil"
	"github.com/alnah/go-latex2img/internal/hints"
	"github.com/alnah/go-latex2img/internal/logging"
	"github.com/alnah/go-latex2img/internal/render"
)

// spanPreviewLen bounds how much of a math span a summary line shows.
const spanPreviewLen = 40

// docResult holds the outcome of one document.
type docResult struct {
	Path     string
	Doc      *latex2img.Document
	Err      error
	Duration time.Duration
}

// batchError reports documents that could not be processed.
// Each one was already printed; Unwrap exposes the causes for exit codes.
type batchError struct {
	total int
	errs  []error
}

func (e *batchError) Error() string {
	return fmt.Sprintf("%d of %d document(s) failed", len(e.errs), e.total)
}

func (e *batchError) Unwrap() []error {
	return e.errs
}

// runRenderCmd parses flags, runs the render command and maps its error.
func runRenderCmd(args []string, env *Environment) int {
	flags, positional, err := parseRenderFlags(args, env.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitSuccess
		}
		fmt.Fprintf(env.Stderr, "error: %v\n", err)
		return ExitUsage
	}

	warnUnknownEnvVars(env.Stderr, os.Environ())

	ctx, stop := notifyContext(context.Background())
	defer stop()

	cfg := new(config.Config)
	if err := runRender(ctx, positional, flags, loadEnvConfig(os.Getenv), cfg, env); err != nil {
		fmt.Fprintf(env.Stderr, "error: %v%s\n", err, hintFor(err, flags.common.config, cfg))
		return exitCodeFor(err)
	}
	return ExitSuccess
}

// runRender orchestrates a render run. The effective config is stored in
// out so the caller can phrase hints against it.
func runRender(ctx context.Context, args []string, flags *renderFlags, envCfg *envConfig, out *config.Config, env *Environment) error {
	cfg, err := resolveConfig(flags.common.config, envCfg, env.Config)
	if err != nil {
		return err
	}
	mergeFlags(flags, cfg)
	*out = *cfg
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(flags, envCfg, env.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	inputPath, err := resolveInputPath(args, cfg)
	if err != nil {
		return err
	}
	root, files, err := discoverDocuments(inputPath, cfg.Input.Extensions)
	if err != nil {
		return err
	}
	logger.Debug("discovered documents", "root", root, "count", len(files))

	// One image directory for the whole batch; without it no document can succeed.
	assetsDir := filepath.Join(root, cfg.Assets.Dir)
	if !flags.input.dryRun {
		if err := os.MkdirAll(assetsDir, fileutil.DirPermissions); err != nil {
			return fmt.Errorf("%w: %v", latex2img.ErrAssetsDir, err)
		}
	}

	docWorkers, blockWorkers := splitWorkers(cfg.Workers, len(files))
	logger.Debug("workers resolved", "documents", docWorkers, "blocks", blockWorkers)

	p, err := newProcessor(cfg, assetsDir, blockWorkers, logger.Logger, env.runner())
	if err != nil {
		return err
	}

	results := processDocuments(ctx, p, files, docWorkers, flags.input.dryRun, env.Now)

	if flags.input.dryRun {
		printPlan(env.Stdout, results, root)
	} else {
		printResults(results, flags.common.quiet, flags.common.verbose, cfg, env)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("render interrupted: %w", err)
	}

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Path, r.Err))
		}
	}
	if len(errs) > 0 {
		return &batchError{total: len(results), errs: errs}
	}
	return nil
}

// mergeFlags copies explicitly set CLI flags over the config (CLI wins).
func mergeFlags(f *renderFlags, cfg *config.Config) {
	changed := f.changed
	if changed == nil {
		changed = func(string) bool { return false }
	}

	if len(f.input.extensions) > 0 {
		cfg.Input.Extensions = f.input.extensions
	}
	if f.input.assets != "" {
		cfg.Assets.Dir = f.input.assets
	}
	if len(f.tools.grammars) > 0 {
		cfg.Grammars = f.tools.grammars
	}
	if changed("workers") {
		cfg.Workers = f.tools.workers
	}
	if f.tools.timeout != "" {
		cfg.Render.Timeout = f.tools.timeout
	}
	if changed("dpi") {
		cfg.Render.DPI = f.tools.dpi
	}
	if f.tools.force {
		cfg.Render.Force = true
	}
	if f.rewrite.policy != "" {
		cfg.Rewrite.Policy = f.rewrite.policy
	}
	if f.rewrite.noProvenance {
		cfg.Rewrite.Provenance = false
	}
	if f.rewrite.html {
		cfg.Rewrite.HTMLPreview = true
	}
}

// newLogger builds the run logger: console on stderr, optional file.
func newLogger(flags *renderFlags, envCfg *envConfig, stderr io.Writer) (*logging.Logger, error) {
	format, err := logging.ParseFormat(flags.log.format)
	if err != nil {
		return nil, err
	}

	file := flags.log.file
	if file == "" {
		file = envCfg.LogFile
	}

	level := new(slog.LevelVar)
	level.Set(logging.LevelFor(flags.common.verbose, flags.common.quiet))

	return logging.New(logging.Options{
		Console:    stderr,
		Level:      level,
		File:       file,
		FileFormat: format,
	})
}

// newProcessor wires the TeX renderer and the processor from a validated config.
func newProcessor(cfg *config.Config, assetsDir string, workers int, logger *slog.Logger, runner render.CommandRunner) (*latex2img.Processor, error) {
	timeout, err := cfg.RenderTimeout()
	if err != nil {
		return nil, err
	}

	tex := render.NewTeX(
		render.WithRunner(runner),
		render.WithCompiler(cfg.Render.Compiler),
		render.WithConverter(cfg.Render.Converter),
		render.WithDPI(cfg.Render.DPI),
		render.WithTimeout(timeout),
		render.WithPreamble(cfg.Render.Preamble),
	)

	return latex2img.NewProcessor(
		latex2img.WithLogger(logger),
		latex2img.WithRenderer(tex),
		latex2img.WithGrammars(cfg.Grammars...),
		latex2img.WithAssetsDir(assetsDir),
		latex2img.WithNaming(cfg.Assets.Prefix, cfg.Assets.MaxNameLength),
		latex2img.WithAltText(cfg.Rewrite.AltText),
		latex2img.WithProvenance(cfg.Rewrite.Provenance),
		latex2img.WithPolicy(latex2img.Policy(cfg.Rewrite.Policy)),
		latex2img.WithWorkers(workers),
		latex2img.WithForce(cfg.Render.Force),
		latex2img.WithHTMLPreview(cfg.Rewrite.HTMLPreview),
	)
}

// splitWorkers spends the worker budget across documents when there are
// several, and across the blocks of the document when there is one.
func splitWorkers(n, docs int) (docWorkers, blockWorkers int) {
	w := latex2img.ResolveWorkers(n)
	if docs > 1 {
		return w, latex2img.MinWorkers
	}
	return latex2img.MinWorkers, w
}

// processDocuments runs every document independently with at most workers
// in flight. Results keep the order of files.
func processDocuments(ctx context.Context, p *latex2img.Processor, files []string, workers int, dryRun bool, now func() time.Time) []docResult {
	results := make([]docResult, len(files))

	var g errgroup.Group
	g.SetLimit(workers)

	for i, path := range files {
		g.Go(func() error {
			r := docResult{Path: path}
			if err := ctx.Err(); err != nil {
				r.Err = err
				results[i] = r
				return nil
			}

			start := now()
			if dryRun {
				r.Doc, r.Err = p.Plan(ctx, path)
			} else {
				r.Doc, r.Err = p.Process(ctx, path)
			}
			r.Duration = now().Sub(start)
			results[i] = r
			return nil
		})
	}

	_ = g.Wait()
	return results
}

// runSummary holds totals across a batch.
type runSummary struct {
	Documents int
	Rewritten int
	Failed    int // documents that could not be processed
	Found     int
	Rendered  int
	Reused    int
	Broken    int // formulas that failed to render
}

// summarize tallies a batch.
func summarize(results []docResult) runSummary {
	s := runSummary{Documents: len(results)}
	for _, r := range results {
		if r.Err != nil {
			s.Failed++
		}
		if r.Doc == nil {
			continue
		}
		rep := r.Doc.Report()
		s.Found += rep.Found
		s.Rendered += rep.Succeeded - rep.Skipped
		s.Reused += rep.Skipped
		s.Broken += rep.Failed
		if rep.Written {
			s.Rewritten++
		}
	}
	return s
}

// printResults outputs one line per document, the failed formulas of each,
// and deduplicated hints for the failure causes seen.
func printResults(results []docResult, quiet, verbose bool, cfg *config.Config, env *Environment) runSummary {
	var seenHints []string
	addHint := func(h string) {
		if h == "" {
			return
		}
		for _, s := range seenHints {
			if s == h {
				return
			}
		}
		seenHints = append(seenHints, h)
	}

	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(env.Stderr, "FAILED %s: %v\n", r.Path, r.Err)
			addHint(hintFor(r.Err, "", cfg))
		}
		if r.Doc == nil {
			continue
		}

		rep := r.Doc.Report()
		if !quiet && r.Err == nil {
			fmt.Fprintf(env.Stdout, "%s: %s", r.Path, describeReport(rep))
			if verbose {
				fmt.Fprintf(env.Stdout, " (%v)", r.Duration.Round(time.Millisecond))
			}
			fmt.Fprintln(env.Stdout)
			if verbose && r.Doc.PreviewPath != "" {
				fmt.Fprintf(env.Stdout, "  preview %s\n", r.Doc.PreviewPath)
			}
		}

		for _, f := range rep.Failures {
			fmt.Fprintf(env.Stderr, "  FAILED %s #%d %s: %v\n", r.Path, f.Index+1, previewSpan(f.Span), f.Err)
			addHint(blockHint(f.Err, cfg))
		}
	}

	summary := summarize(results)
	if !quiet && len(results) > 1 {
		fmt.Fprintf(env.Stdout, "\n%d document(s): %d rewritten, %d failed; %d formula(s): %d rendered, %d reused, %d failed\n",
			summary.Documents, summary.Rewritten, summary.Failed,
			summary.Found, summary.Rendered, summary.Reused, summary.Broken)
	}

	for _, h := range seenHints {
		fmt.Fprintln(env.Stderr, strings.TrimPrefix(h, "\n"))
	}
	return summary
}

// describeReport renders the counts of one document.
func describeReport(rep latex2img.Report) string {
	if rep.Found == 0 {
		return "no math found"
	}
	s := fmt.Sprintf("%d found, %d rendered", rep.Found, rep.Succeeded-rep.Skipped)
	if rep.Skipped > 0 {
		s += fmt.Sprintf(", %d reused", rep.Skipped)
	}
	if rep.Failed > 0 {
		s += fmt.Sprintf(", %d failed", rep.Failed)
	}
	if rep.Written {
		s += ", rewritten"
	} else {
		s += ", unchanged"
	}
	return s
}

// printPlan outputs what a render would do, block by block.
func printPlan(w io.Writer, results []docResult, root string) {
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(w, "%s: error: %v\n", r.Path, r.Err)
			continue
		}
		fmt.Fprintf(w, "%s: %d block(s)\n", r.Path, len(r.Doc.Blocks))
		for _, b := range r.Doc.Blocks {
			switch {
			case b.Err != nil:
				fmt.Fprintf(w, "  error   %s: %v\n", previewSpan(b.Block.Span), b.Err)
			case b.Skipped:
				fmt.Fprintf(w, "  reuse   %s -> %s\n", previewSpan(b.Block.Span), displayPath(root, b.Asset.FilePath))
			default:
				fmt.Fprintf(w, "  render  %s -> %s\n", previewSpan(b.Block.Span), displayPath(root, b.Asset.FilePath))
			}
		}
	}
	fmt.Fprintln(w, "dry run: nothing rendered or written")
}

// displayPath shows p relative to root when it lies below it.
func displayPath(root, p string) string {
	rel, err := filepath.Rel(root, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return p
	}
	return filepath.ToSlash(rel)
}

// previewSpan shortens a span to one bounded line.
func previewSpan(span string) string {
	s := strings.Join(strings.Fields(span), " ")
	r := []rune(s)
	if len(r) > spanPreviewLen {
		return string(r[:spanPreviewLen-1]) + "…"
	}
	return s
}

// blockHint returns the hint for a formula failure cause, or "".
func blockHint(err error, cfg *config.Config) string {
	switch {
	case errors.Is(err, latex2img.ErrToolNotFound):
		tool := ""
		if cfg != nil {
			tool = cfg.Render.Compiler
			if strings.HasSuffix(err.Error(), ": "+cfg.Render.Converter) {
				tool = cfg.Render.Converter
			}
		}
		return hints.ForToolNotFound(tool)
	case errors.Is(err, latex2img.ErrRenderTimeout):
		return hints.ForTimeout()
	case errors.Is(err, latex2img.ErrCompile):
		return hints.ForCompile()
	default:
		return ""
	}
}

// hintFor returns the hint for a run-level error, or "".
func hintFor(err error, configName string, cfg *config.Config) string {
	switch {
	case errors.Is(err, config.ErrConfigNotFound):
		return hints.ForConfigNotFound(configSearchPaths(configName))
	case errors.Is(err, latex2img.ErrAssetsDir):
		return hints.ForAssetsDirectory()
	default:
		return blockHint(err, cfg)
	}
}
