// Package naming derives deterministic image filenames from math content.
//
// A name is prefix + sanitized content + "_" + the first eight hex digits of
// the content's BLAKE3 digest + ".png". The readable part alone collides
// whenever two formulas share a long prefix; the digest keeps distinct
// contents apart, and Registry catches the residual chance that two digests
// agree on their first eight digits.
package naming

import (
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"unicode"

	"github.com/zeebo/blake3"
	"golang.org/x/text/unicode/norm"
)

// ErrPathCollision means two distinct contents were allocated the same path.
var ErrPathCollision = errors.New("image path collision")

// Placeholder replaces every rune outside the safe alphabet.
const Placeholder = '_'

// FingerprintLen is the number of hex digits of the digest used in names.
const FingerprintLen = 8

// Extension is appended to every allocated name.
const Extension = ".png"

// Fingerprint returns the hex BLAKE3-256 digest of content.
func Fingerprint(content string) string {
	sum := blake3.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Sanitize folds content to ASCII where a compatibility decomposition exists,
// replaces runes outside [A-Za-z0-9-] with Placeholder and truncates the
// result to maxLen bytes. maxLen <= 0 means no limit.
func Sanitize(content string, maxLen int) string {
	var b strings.Builder
	for _, r := range norm.NFKD.String(content) {
		switch {
		case unicode.Is(unicode.Mn, r):
			// combining marks left over from decomposition: "é" -> "e"
		case isSafe(r):
			b.WriteRune(r)
		default:
			b.WriteRune(Placeholder)
		}
		if maxLen > 0 && b.Len() >= maxLen {
			break
		}
	}
	s := b.String()
	if maxLen > 0 && len(s) > maxLen {
		s = s[:maxLen]
	}
	return s
}

func isSafe(r rune) bool {
	return r >= 'a' && r <= 'z' ||
		r >= 'A' && r <= 'Z' ||
		r >= '0' && r <= '9' ||
		r == '-'
}

// Allocator maps content to a slash-separated path under Dir.
type Allocator struct {
	Dir    string // e.g. "assets"
	Prefix string // e.g. "latex_"
	MaxLen int    // bound on the sanitized part
}

// Name returns the base filename for content.
func (a Allocator) Name(content string) string {
	return a.Prefix + Sanitize(content, a.MaxLen) + "_" + Fingerprint(content)[:FingerprintLen] + Extension
}

// Path returns Dir joined with Name(content), using forward slashes.
func (a Allocator) Path(content string) string {
	return path.Join(a.Dir, a.Name(content))
}

// Registry remembers which content owns each allocated path during one run.
// It is safe for concurrent use.
type Registry struct {
	Allocator Allocator

	mu     sync.Mutex
	owners map[string]string
}

// NewRegistry creates an empty Registry for alloc.
func NewRegistry(alloc Allocator) *Registry {
	return &Registry{Allocator: alloc, owners: make(map[string]string)}
}

// Allocate returns the path for content. The same content always gets the
// same path; a different content landing on an owned path is an
// ErrPathCollision and the path is not handed out.
func (r *Registry) Allocate(content string) (string, error) {
	p := r.Allocator.Path(content)
	if err := r.Claim(p, content); err != nil {
		return "", err
	}
	return p, nil
}

// Claim records content as the owner of p, which may come from any
// Allocator. Claiming an owned path for different content is an
// ErrPathCollision.
func (r *Registry) Claim(p, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.owners[p]; ok && owner != content {
		return fmt.Errorf("%w: %s already holds %q", ErrPathCollision, p, abbreviate(owner, 40))
	}
	r.owners[p] = content
	return nil
}

// Len returns the number of distinct paths allocated so far.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.owners)
}

func abbreviate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
