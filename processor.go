package latex2img

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"github.com/alnah/go-latex2img/internal/extract"
	"github.com/alnah/go-latex2img/internal/fileutil"
	"github.com/alnah/go-latex2img/internal/logging"
	"github.com/alnah/go-latex2img/internal/naming"
	"github.com/alnah/go-latex2img/internal/preview"
	"github.com/alnah/go-latex2img/internal/render"
	"github.com/alnah/go-latex2img/internal/rewrite"
)

// Compile-time interface implementation check.
var _ Renderer = (*render.TeX)(nil)

// Processor finds math in documents, renders it and rewrites the documents.
// Create with NewProcessor. A Processor is safe for concurrent use; all
// documents it processes share one collision registry.
type Processor struct {
	logger       *slog.Logger
	renderer     Renderer
	grammarNames []string
	grammars     extract.Set
	assetsDir    string
	prefix       string
	maxNameLen   int
	rewriteOpts  rewrite.Options
	workers      int
	force        bool
	htmlPreview  bool

	registry  *naming.Registry
	previewer *preview.Converter
}

// NewProcessor creates a Processor with default configuration:
// display and escaped-bracket grammars, images under "assets" next to each
// document, provenance fences on, sequential rendering through latex and dvipng.
func NewProcessor(opts ...Option) (*Processor, error) {
	p := &Processor{
		logger:       logging.Discard(),
		grammarNames: extract.DefaultSet().Names(),
		prefix:       DefaultPrefix,
		maxNameLen:   DefaultMaxNameLength,
		rewriteOpts:  rewrite.DefaultOptions(),
		workers:      MinWorkers,
	}

	for _, opt := range opts {
		opt(p)
	}

	set, err := extract.ParseGrammars(p.grammarNames)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOption, err)
	}
	p.grammars = set

	policy, err := rewrite.ParsePolicy(string(p.rewriteOpts.Policy))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOption, err)
	}
	p.rewriteOpts.Policy = policy

	if p.workers < 0 || p.workers > MaxWorkers {
		return nil, fmt.Errorf("%w: %d (want 0 to %d)", ErrInvalidWorkers, p.workers, MaxWorkers)
	}
	p.workers = ResolveWorkers(p.workers)

	if p.maxNameLen <= 0 {
		p.maxNameLen = DefaultMaxNameLength
	}

	if p.assetsDir != "" {
		abs, err := filepath.Abs(p.assetsDir)
		if err != nil {
			return nil, fmt.Errorf("%w: assets dir: %v", ErrInvalidOption, err)
		}
		p.assetsDir = abs
	}

	if p.renderer == nil {
		p.renderer = render.NewTeX()
	}
	if p.htmlPreview {
		p.previewer = preview.NewConverter()
	}
	p.registry = naming.NewRegistry(naming.Allocator{Prefix: p.prefix, MaxLen: p.maxNameLen})

	return p, nil
}

// Process renders the math in the document at path and rewrites it in place.
// The document is written only if at least one block succeeded and the text
// changed. Block failures are reported in the returned Document, not as an
// error; the error covers reading, writing and cancellation.
func (p *Processor) Process(ctx context.Context, path string) (*Document, error) {
	return p.processFile(ctx, path, false)
}

// Plan extracts and allocates like Process but renders and writes nothing.
// Outcomes of blocks whose image already exists are marked Skipped.
func (p *Processor) Plan(ctx context.Context, path string) (*Document, error) {
	return p.processFile(ctx, path, true)
}

func (p *Processor) processFile(ctx context.Context, path string, dryRun bool) (doc *Document, err error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	defer p.recoverPanic(path, &err)

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadDocument, err)
	}
	data, err := os.ReadFile(path) // #nosec G304 -- path is the document being processed
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadDocument, err)
	}

	doc, err = p.run(ctx, filepath.Dir(path), string(data), dryRun)
	if doc != nil {
		doc.Path = path
	}
	if err != nil || dryRun {
		return doc, err
	}

	if doc.Succeeded() == 0 || !doc.Changed() {
		p.logger.Debug("document unchanged", "doc", path, "blocks", len(doc.Blocks))
		return doc, nil
	}

	if err := fileutil.WriteFileAtomic(path, []byte(doc.RewrittenText), info.Mode().Perm()); err != nil {
		return doc, fmt.Errorf("%w: %v", ErrWriteDocument, err)
	}
	doc.Written = true
	p.logger.Info("document rewritten", "doc", path, "succeeded", doc.Succeeded(), "blocks", len(doc.Blocks))

	if p.previewer != nil {
		out, err := p.previewer.WriteFile(ctx, path, doc.RewrittenText)
		if err != nil {
			return doc, fmt.Errorf("%w: %v", ErrWritePreview, err)
		}
		doc.PreviewPath = out
	}
	return doc, nil
}

// ProcessText renders the math in text without touching any document file.
// docDir is the directory image references are made relative to.
func (p *Processor) ProcessText(ctx context.Context, docDir, text string) (doc *Document, err error) {
	defer p.recoverPanic(docDir, &err)
	return p.run(ctx, docDir, text, false)
}

func (p *Processor) recoverPanic(where string, err *error) {
	if r := recover(); r != nil {
		p.logger.Error("panic while processing document", "doc", where, "panic", r, "stack", string(debug.Stack()))
		*err = fmt.Errorf("%w: %s: %v", ErrPanic, where, r)
	}
}

// job is one distinct content of a document and its shared outcome.
type job struct {
	content  string
	filePath string
	relPath  string
	err      error
	skipped  bool
}

func (p *Processor) run(ctx context.Context, docDir, text string, dryRun bool) (*Document, error) {
	doc := &Document{OriginalText: text, RewrittenText: text}

	blocks := extract.Extract(text, p.grammars)
	if len(blocks) == 0 {
		return doc, nil
	}

	absDocDir, err := filepath.Abs(docDir)
	if err != nil {
		return doc, fmt.Errorf("%w: %v", ErrReadDocument, err)
	}
	assetsDir := p.assetsDir
	if assetsDir == "" {
		assetsDir = filepath.Join(absDocDir, DefaultAssetsDir)
	}

	jobs, byContent := p.plan(blocks, absDocDir, assetsDir)

	if !dryRun {
		if err := os.MkdirAll(assetsDir, fileutil.DirPermissions); err != nil {
			return doc, fmt.Errorf("%w: %v", ErrAssetsDir, err)
		}
		p.renderAll(ctx, jobs)
		if err := ctx.Err(); err != nil {
			return doc, err
		}
	}

	subs := make([]rewrite.Substitution, len(blocks))
	doc.Blocks = make([]RenderOutcome, len(blocks))
	for i, b := range blocks {
		j := byContent[b.Content]
		outcome := RenderOutcome{Block: b, Err: j.err, Skipped: j.skipped}
		if j.err == nil {
			outcome.Asset = &ImageAsset{RelativePath: j.relPath, FilePath: j.filePath, SourceContent: j.content}
			subs[i] = rewrite.Substitution{Block: b, Ref: j.relPath}
		} else {
			subs[i] = rewrite.Substitution{Block: b}
		}
		doc.Blocks[i] = outcome
	}

	if !dryRun {
		doc.RewrittenText = rewrite.Rewrite(text, subs, p.rewriteOpts)
	}
	return doc, nil
}

// plan allocates one job per distinct content, in order of first appearance.
func (p *Processor) plan(blocks []MathBlock, docDir, assetsDir string) ([]*job, map[string]*job) {
	alloc := naming.Allocator{Dir: filepath.ToSlash(assetsDir), Prefix: p.prefix, MaxLen: p.maxNameLen}

	var jobs []*job
	byContent := make(map[string]*job)
	for _, b := range blocks {
		if _, ok := byContent[b.Content]; ok {
			continue
		}
		j := &job{content: b.Content}
		byContent[b.Content] = j
		jobs = append(jobs, j)

		slashPath := alloc.Path(b.Content)
		if err := p.registry.Claim(slashPath, b.Content); err != nil {
			j.err = err
			continue
		}
		j.filePath = filepath.FromSlash(slashPath)
		rel, err := fileutil.SlashRel(docDir, j.filePath)
		if err != nil {
			j.err = fmt.Errorf("image path not reachable from document: %w", err)
			continue
		}
		j.relPath = rel
		j.skipped = !p.force && fileutil.FileExists(j.filePath)
	}
	return jobs, byContent
}

// renderAll renders every pending job with at most p.workers in flight.
// Failures are recorded per job; one failure never stops the others.
func (p *Processor) renderAll(ctx context.Context, jobs []*job) {
	var g errgroup.Group
	g.SetLimit(p.workers)

	for _, j := range jobs {
		if j.err != nil || j.skipped {
			if j.skipped {
				p.logger.Debug("image exists, reusing", "path", j.filePath)
			}
			continue
		}
		g.Go(func() error {
			j.err = p.renderOne(ctx, j)
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Processor) renderOne(ctx context.Context, j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic in renderer", "path", j.filePath, "panic", r)
			err = fmt.Errorf("%w: renderer: %v", ErrPanic, r)
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	err = p.renderer.Render(ctx, j.content, j.filePath)
	switch {
	case err == nil:
		p.logger.Debug("rendered", "path", j.filePath)
	case errors.Is(err, context.Canceled):
	default:
		p.logger.Info("render failed", "path", j.filePath, "error", err)
	}
	return err
}
