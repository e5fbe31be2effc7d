// Package extract finds delimited math spans in plain text.
//
// Documents are treated as opaque text: there is no Markdown parsing, only
// a left-to-right scan for opening and closing delimiters. At each position
// the enabled grammars are tried in a fixed priority order (display math,
// escaped brackets, plain brackets); the first grammar that matches consumes
// its span and scanning resumes after it, so no byte is ever claimed by two
// grammars.
//
// The plain bracket grammar cannot tell "[ a + b ]" from "[see above]" or
// from the bracket half of a Markdown link. It is opt-in for that reason.
package extract

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Sentinel errors for grammar selection.
var (
	ErrUnknownGrammar = errors.New("unknown grammar")
	ErrNoGrammars     = errors.New("at least one grammar is required")
)

// Kind identifies a delimiter grammar. Lower values have higher priority.
type Kind int

const (
	Display        Kind = iota // $$ … $$
	EscapedBracket             // \[ … \]
	Bracket                    // [ … ]
)

// grammar describes one delimiter pair.
type grammar struct {
	kind  Kind
	name  string
	open  string
	close string
	// lineBounded grammars may not span newlines or contain their own opener.
	lineBounded bool
}

// grammars is ordered by priority, highest first.
var grammars = []grammar{
	{kind: Display, name: "display", open: "$$", close: "$$"},
	{kind: EscapedBracket, name: "escaped-bracket", open: `\[`, close: `\]`},
	{kind: Bracket, name: "bracket", open: "[", close: "]", lineBounded: true},
}

// String returns the config name of the grammar.
func (k Kind) String() string {
	for _, g := range grammars {
		if g.kind == k {
			return g.name
		}
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Set is a collection of enabled grammars.
type Set uint8

// DefaultSet enables display math and escaped brackets.
func DefaultSet() Set {
	return Set(0).With(Display).With(EscapedBracket)
}

// With returns s with k enabled.
func (s Set) With(k Kind) Set {
	return s | 1<<uint(k)
}

// Has reports whether k is enabled.
func (s Set) Has(k Kind) bool {
	return s&(1<<uint(k)) != 0
}

// Names returns the enabled grammar names in priority order.
func (s Set) Names() []string {
	var names []string
	for _, g := range grammars {
		if s.Has(g.kind) {
			names = append(names, g.name)
		}
	}
	return names
}

// ParseGrammars builds a Set from config names. Order in names is ignored:
// priority is fixed.
func ParseGrammars(names []string) (Set, error) {
	var s Set
	for _, name := range names {
		k, ok := lookup(strings.ToLower(strings.TrimSpace(name)))
		if !ok {
			return 0, fmt.Errorf("%w: %q (want display, escaped-bracket or bracket)", ErrUnknownGrammar, name)
		}
		s = s.With(k)
	}
	if s == 0 {
		return 0, ErrNoGrammars
	}
	return s, nil
}

func lookup(name string) (Kind, bool) {
	for _, g := range grammars {
		if g.name == name {
			return g.kind, true
		}
	}
	return 0, false
}

// Block is one matched math span.
type Block struct {
	Span    string // full match including delimiters, verbatim from the source
	Content string // inner markup, surrounding whitespace trimmed
	Index   int    // position in the returned sequence
	Kind    Kind
	Start   int // byte offset of Span in the source
	End     int // byte offset just past Span
}

// Extract returns the math blocks of text in document order.
// Unbalanced openers yield nothing; spans with blank content are consumed
// but not reported.
func Extract(text string, set Set) []Block {
	var blocks []Block
	pos := 0
	for pos < len(text) {
		end, g, ok := matchAt(text, pos, set)
		if !ok {
			_, size := utf8.DecodeRuneInString(text[pos:])
			pos += size
			continue
		}

		inner := text[pos+len(g.open) : end-len(g.close)]
		if content := strings.TrimSpace(inner); content != "" {
			blocks = append(blocks, Block{
				Span:    text[pos:end],
				Content: content,
				Index:   len(blocks),
				Kind:    g.kind,
				Start:   pos,
				End:     end,
			})
		}
		pos = end
	}
	return blocks
}

// matchAt tries every enabled grammar at pos in priority order.
func matchAt(text string, pos int, set Set) (int, grammar, bool) {
	for _, g := range grammars {
		if !set.Has(g.kind) {
			continue
		}
		if end, ok := g.match(text, pos); ok {
			return end, g, true
		}
	}
	return 0, grammar{}, false
}

// match returns the end offset of the shortest span opening at pos.
func (g grammar) match(text string, pos int) (int, bool) {
	if !strings.HasPrefix(text[pos:], g.open) {
		return 0, false
	}
	start := pos + len(g.open)
	rest := text[start:]
	i := strings.Index(rest, g.close)
	if i < 0 {
		return 0, false
	}
	if g.lineBounded && strings.ContainsAny(rest[:i], "\n"+g.open) {
		return 0, false
	}
	return start + i + len(g.close), true
}
