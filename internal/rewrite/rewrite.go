// Package rewrite substitutes rendered math spans with image references.
//
// Two policies exist. PolicyAll replaces every verbatim occurrence of a
// successful span, so a formula written twice becomes two references to the
// same image; the substitution happens in one pass and its result does not
// depend on the order of substitutions. PolicyFirst replaces only the
// occurrence each block was extracted from.
//
// Failed blocks are never touched under either policy.
package rewrite

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/alnah/go-latex2img/internal/extract"
)

// ErrUnknownPolicy is returned by ParsePolicy for unrecognized names.
var ErrUnknownPolicy = errors.New("unknown rewrite policy")

// Policy selects how many occurrences of a span are replaced.
type Policy string

// Supported policies.
const (
	PolicyAll   Policy = "all"
	PolicyFirst Policy = "first"
)

// DefaultAltText is the image alt text when none is configured.
const DefaultAltText = "LaTeX Image"

// ParsePolicy maps a config value to a Policy. Empty means PolicyAll.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", PolicyAll:
		return PolicyAll, nil
	case PolicyFirst:
		return PolicyFirst, nil
	default:
		return "", fmt.Errorf("%w: %q (want all or first)", ErrUnknownPolicy, s)
	}
}

// Options controls the replacement text.
type Options struct {
	AltText    string
	Provenance bool // append a fenced copy of the math source
	Policy     Policy
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{AltText: DefaultAltText, Provenance: true, Policy: PolicyAll}
}

// Substitution pairs an extracted block with the reference to its image.
// An empty Ref marks a failed render.
type Substitution struct {
	Block extract.Block
	Ref   string
}

// OK reports whether the block was rendered.
func (s Substitution) OK() bool {
	return s.Ref != ""
}

// Replacement returns the text that stands in for a successful block.
func Replacement(content, ref string, opts Options) string {
	alt := opts.AltText
	if alt == "" {
		alt = DefaultAltText
	}

	var b strings.Builder
	b.WriteString("![")
	b.WriteString(alt)
	b.WriteString("](")
	b.WriteString(destination(ref))
	b.WriteString(")")

	if opts.Provenance {
		fence := fenceFor(content)
		b.WriteString("\n\n")
		b.WriteString(fence)
		b.WriteString("latex\n")
		b.WriteString(content)
		b.WriteString("\n")
		b.WriteString(fence)
		b.WriteString("\n")
	}
	return b.String()
}

// destination wraps refs that a bare link destination cannot hold.
func destination(ref string) string {
	if strings.ContainsAny(ref, " ()<>") {
		return "<" + ref + ">"
	}
	return ref
}

// fenceFor returns a backtick fence longer than any run inside content.
func fenceFor(content string) string {
	fence := "```"
	for strings.Contains(content, fence) {
		fence += "`"
	}
	return fence
}

// Rewrite applies subs to text under opts.Policy.
// Text outside replaced spans is returned byte for byte.
func Rewrite(text string, subs []Substitution, opts Options) string {
	if !hasSuccess(subs) {
		return text
	}
	if opts.Policy == PolicyFirst {
		return rewriteOccurrences(text, subs, opts)
	}
	return rewriteAll(text, subs, opts)
}

func hasSuccess(subs []Substitution) bool {
	for _, s := range subs {
		if s.OK() {
			return true
		}
	}
	return false
}

// rewriteAll replaces every verbatim occurrence of each successful span.
// Failed spans are cut out of the search so a successful span can never
// be replaced inside one.
func rewriteAll(text string, subs []Substitution, opts Options) string {
	replacer := newReplacer(subs, opts)
	protected := failedRanges(text, subs)

	var b strings.Builder
	b.Grow(len(text))
	pos := 0
	for _, r := range protected {
		b.WriteString(replacer.Replace(text[pos:r.start]))
		b.WriteString(text[r.start:r.end])
		pos = r.end
	}
	b.WriteString(replacer.Replace(text[pos:]))
	return b.String()
}

// newReplacer builds a single-pass replacer. Spans are ordered longest
// first, then lexicographically, so the result is the same whatever order
// subs arrive in.
func newReplacer(subs []Substitution, opts Options) *strings.Replacer {
	repl := make(map[string]string)
	for _, s := range subs {
		if s.OK() {
			repl[s.Block.Span] = Replacement(s.Block.Content, s.Ref, opts)
		}
	}

	spans := make([]string, 0, len(repl))
	for span := range repl {
		spans = append(spans, span)
	}
	sort.Slice(spans, func(i, j int) bool {
		if len(spans[i]) != len(spans[j]) {
			return len(spans[i]) > len(spans[j])
		}
		return spans[i] < spans[j]
	})

	pairs := make([]string, 0, 2*len(spans))
	for _, span := range spans {
		pairs = append(pairs, span, repl[span])
	}
	return strings.NewReplacer(pairs...)
}

type byteRange struct{ start, end int }

// failedRanges returns the in-bounds, non-overlapping ranges of failed
// blocks whose offsets still locate their span, sorted by start.
func failedRanges(text string, subs []Substitution) []byteRange {
	var ranges []byteRange
	for _, s := range subs {
		if s.OK() || !locates(text, s.Block) {
			continue
		}
		ranges = append(ranges, byteRange{s.Block.Start, s.Block.End})
	}
	return disjoint(ranges)
}

// rewriteOccurrences replaces each successful block at its own offsets.
func rewriteOccurrences(text string, subs []Substitution, opts Options) string {
	type edit struct {
		byteRange
		with string
	}
	var edits []edit
	var ranges []byteRange
	for _, s := range subs {
		if !s.OK() || !locates(text, s.Block) {
			continue
		}
		r := byteRange{s.Block.Start, s.Block.End}
		ranges = append(ranges, r)
		edits = append(edits, edit{r, Replacement(s.Block.Content, s.Ref, opts)})
	}

	keep := make(map[byteRange]bool)
	for _, r := range disjoint(ranges) {
		keep[r] = true
	}
	sort.Slice(edits, func(i, j int) bool { return edits[i].start < edits[j].start })

	var b strings.Builder
	pos := 0
	for _, e := range edits {
		if !keep[e.byteRange] {
			continue
		}
		delete(keep, e.byteRange)
		b.WriteString(text[pos:e.start])
		b.WriteString(e.with)
		pos = e.end
	}
	b.WriteString(text[pos:])
	return b.String()
}

// locates reports whether the block's offsets still point at its span in text.
func locates(text string, blk extract.Block) bool {
	return blk.Start >= 0 && blk.End <= len(text) && blk.Start < blk.End &&
		text[blk.Start:blk.End] == blk.Span
}

// disjoint sorts ranges and drops any that overlap an earlier one.
func disjoint(ranges []byteRange) []byteRange {
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].start < ranges[j].start })
	out := ranges[:0]
	end := -1
	for _, r := range ranges {
		if r.start < end {
			continue
		}
		out = append(out, r)
		end = r.end
	}
	return out
}
