package latex2img

import (
	"context"

	"github.com/alnah/go-latex2img/internal/extract"
	"github.com/alnah/go-latex2img/internal/rewrite"
)

// MathBlock is one recognized span of math markup.
// Span occurs verbatim in the source at [Start, End).
type MathBlock = extract.Block

// GrammarKind identifies the delimiter grammar a block was matched by.
type GrammarKind = extract.Kind

// Delimiter grammars, highest priority first.
const (
	GrammarDisplay        = extract.Display        // $$ … $$
	GrammarEscapedBracket = extract.EscapedBracket // \[ … \]
	GrammarBracket        = extract.Bracket        // [ … ], opt-in
)

// Policy selects how many verbatim occurrences of a rendered span are replaced.
type Policy = rewrite.Policy

// Rewrite policies.
const (
	PolicyAll   = rewrite.PolicyAll   // every occurrence, same image
	PolicyFirst = rewrite.PolicyFirst // only the occurrence each block came from
)

// Renderer turns math content into an image file.
// A non-nil error means the image at outputPath was not produced.
type Renderer interface {
	Render(ctx context.Context, content, outputPath string) error
}

// ImageAsset is a rendered image.
type ImageAsset struct {
	RelativePath  string // slash-separated, relative to the document's directory
	FilePath      string // location on disk
	SourceContent string
}

// RenderOutcome is the result for one block.
// The block succeeded iff Err is nil.
type RenderOutcome struct {
	Block   MathBlock
	Asset   *ImageAsset
	Err     error
	Skipped bool // image already existed and was reused
}

// OK reports whether the block was rendered or reused.
func (o RenderOutcome) OK() bool {
	return o.Err == nil
}

// Document is the state of one processed document.
type Document struct {
	Path          string
	OriginalText  string
	RewrittenText string
	Blocks        []RenderOutcome
	Written       bool   // rewritten text was saved to Path
	PreviewPath   string // HTML preview written, if any
}

// Changed reports whether rewriting altered the text.
func (d *Document) Changed() bool {
	return d.RewrittenText != d.OriginalText
}

// Succeeded returns the number of successful blocks.
func (d *Document) Succeeded() int {
	n := 0
	for _, o := range d.Blocks {
		if o.OK() {
			n++
		}
	}
	return n
}

// BlockFailure describes a block whose render failed.
type BlockFailure struct {
	Index int
	Span  string
	Err   error
}

// Report summarizes a document for display.
type Report struct {
	Path      string
	Found     int
	Succeeded int
	Failed    int
	Skipped   int
	Failures  []BlockFailure
	Written   bool
}

// Report summarizes d.
func (d *Document) Report() Report {
	r := Report{Path: d.Path, Found: len(d.Blocks), Written: d.Written}
	for _, o := range d.Blocks {
		switch {
		case !o.OK():
			r.Failed++
			r.Failures = append(r.Failures, BlockFailure{Index: o.Block.Index, Span: o.Block.Span, Err: o.Err})
		case o.Skipped:
			r.Skipped++
			r.Succeeded++
		default:
			r.Succeeded++
		}
	}
	return r
}
