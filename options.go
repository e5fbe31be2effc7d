package latex2img

import (
	"log/slog"
	"runtime"
)

// Worker bounds for per-document rendering.
const (
	// MinWorkers renders blocks one at a time.
	MinWorkers = 1

	// MaxWorkers caps concurrent TeX processes per document.
	MaxWorkers = 16
)

// Naming defaults.
const (
	DefaultAssetsDir     = "assets"
	DefaultPrefix        = "latex_"
	DefaultMaxNameLength = 40
)

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the structured logger. Nil keeps the discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithRenderer replaces the TeX renderer, e.g. with a fake in tests.
func WithRenderer(r Renderer) Option {
	return func(p *Processor) {
		p.renderer = r
	}
}

// WithGrammars selects the delimiter grammars by name
// ("display", "escaped-bracket", "bracket"). Priority is fixed regardless
// of order.
func WithGrammars(names ...string) Option {
	return func(p *Processor) {
		p.grammarNames = names
	}
}

// WithAssetsDir sets the directory images are written to. A relative dir is
// resolved against the working directory. When unset, each document uses
// DefaultAssetsDir next to itself.
func WithAssetsDir(dir string) Option {
	return func(p *Processor) {
		p.assetsDir = dir
	}
}

// WithNaming sets the filename prefix and the bound on the readable part
// of each filename.
func WithNaming(prefix string, maxLen int) Option {
	return func(p *Processor) {
		p.prefix = prefix
		p.maxNameLen = maxLen
	}
}

// WithAltText sets the alt text of generated image references.
func WithAltText(alt string) Option {
	return func(p *Processor) {
		p.rewriteOpts.AltText = alt
	}
}

// WithProvenance toggles the fenced copy of the math source after each image.
func WithProvenance(on bool) Option {
	return func(p *Processor) {
		p.rewriteOpts.Provenance = on
	}
}

// WithPolicy sets the rewrite policy for spans written more than once.
func WithPolicy(policy Policy) Option {
	return func(p *Processor) {
		p.rewriteOpts.Policy = policy
	}
}

// WithWorkers sets how many blocks of one document render concurrently.
// Zero resolves from GOMAXPROCS; the default is sequential.
func WithWorkers(n int) Option {
	return func(p *Processor) {
		p.workers = n
	}
}

// WithForce re-renders images that already exist.
func WithForce(force bool) Option {
	return func(p *Processor) {
		p.force = force
	}
}

// WithHTMLPreview writes an HTML rendering of each rewritten document
// next to it.
func WithHTMLPreview(on bool) Option {
	return func(p *Processor) {
		p.htmlPreview = on
	}
}

// ResolveWorkers returns n if positive, otherwise a count derived from
// GOMAXPROCS (container-aware when automaxprocs is loaded), clamped to
// [MinWorkers, MaxWorkers].
func ResolveWorkers(n int) int {
	if n > 0 {
		return min(n, MaxWorkers)
	}
	return max(MinWorkers, min(runtime.GOMAXPROCS(0), MaxWorkers))
}
